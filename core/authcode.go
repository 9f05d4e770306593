package core

import "time"

// AuthCodeTTL is the lifetime of an authorization code.
const AuthCodeTTL = 5 * time.Minute

// AuthorizationCode is the single-use bridge between signature
// verification and session creation.
type AuthorizationCode struct {
	Code      string
	Address   string
	ClientID  string
	CreatedAt int64
	ExpiresAt int64
	Used      bool
}

// GenerateAuthCode returns a random authorization code.
func GenerateAuthCode() (string, error) {
	return randomHex(32)
}
