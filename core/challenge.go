package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// ChallengeTTL is how long a freshly issued challenge stays valid.
const ChallengeTTL = 5 * time.Minute

// Challenge is a one-time authentication prompt. The wallet signs
// Message; the PKCE pair binds the later verification step to the
// client that requested the challenge. All epoch fields are
// milliseconds.
type Challenge struct {
	ID            string
	Message       string
	ClientID      string
	CreatedAt     int64
	ExpiresAt     int64
	CodeVerifier  string
	CodeChallenge string
	State         string
	Nonce         string
	IssuedAt      string // RFC 3339, mirrors the "Issued At:" message line
	Used          bool
}

// Expired reports whether the challenge is past its expiry at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.UnixMilli() >= c.ExpiresAt
}

// ChallengeStats summarizes the challenge table for observability.
type ChallengeStats struct {
	Total   int64
	Active  int64
	Used    int64
	Expired int64
}

// GenerateCodeVerifier returns a high-entropy random PKCE code
// verifier: 32 random bytes hex-encoded, 64 characters, within the
// RFC 7636 length bounds.
func GenerateCodeVerifier() (string, error) {
	return randomHex(32)
}

// ComputeCodeChallenge derives the code challenge from a verifier:
// base64url (unpadded) of the SHA-256 digest, per the PKCE S256 method.
func ComputeCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateNonce returns a random nonce for the signed message.
func GenerateNonce() (string, error) {
	return randomHex(16)
}

// GenerateState returns a random correlation token for the flow.
func GenerateState() (string, error) {
	return randomHex(16)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
