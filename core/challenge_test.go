package core

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier(t *testing.T) {
	v1, err := GenerateCodeVerifier()
	require.NoError(t, err)
	v2, err := GenerateCodeVerifier()
	require.NoError(t, err)

	// RFC 7636 bounds the verifier to 43..128 characters.
	require.Len(t, v1, 64)
	require.NotEqual(t, v1, v2)
}

func TestComputeCodeChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	sum := sha256.Sum256([]byte(verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])

	require.Equal(t, want, ComputeCodeChallenge(verifier))
	require.NotContains(t, ComputeCodeChallenge(verifier), "=", "challenge must be unpadded")
}

func TestChallengeExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ch := Challenge{ExpiresAt: now.Add(ChallengeTTL).UnixMilli()}

	require.False(t, ch.Expired(now))
	require.False(t, ch.Expired(now.Add(ChallengeTTL-time.Millisecond)))
	require.True(t, ch.Expired(now.Add(ChallengeTTL)), "expiry boundary is inclusive")
	require.True(t, ch.Expired(now.Add(time.Hour)))
}
