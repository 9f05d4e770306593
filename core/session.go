package core

import "time"

const (
	// AccessTokenTTL is the lifetime of an access token.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the lifetime of a refresh token.
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Session is a signed-in principal's active grant to a client
// application. A token pair shares one fingerprint; rotation replaces
// tokens, ids and fingerprint together, so every previously issued
// token dies with the old fingerprint. Epoch fields are milliseconds.
type Session struct {
	ID                    string
	Address               string
	ClientID              string
	AccessToken           string
	RefreshToken          string
	AccessTokenID         string
	RefreshTokenID        string
	Fingerprint           string
	AccessTokenExpiresAt  int64
	RefreshTokenExpiresAt int64
	CreatedAt             int64
	LastUsedAt            int64
	IsActive              bool
}

// TokenPair is the result of one token issuance.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	Fingerprint      string
	AccessTokenID    string
	RefreshTokenID   string
	AccessExpiresAt  int64
	RefreshExpiresAt int64
}

// GenerateFingerprint returns the random value shared by a token pair
// and stored on the session row.
func GenerateFingerprint() (string, error) {
	return randomHex(32)
}
