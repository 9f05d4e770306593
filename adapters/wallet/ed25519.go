package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// Ed25519Verifier verifies signatures from Polkadot-native Ed25519
// accounts. Addresses are SS58-encoded public keys; signatures are
// hex, with or without a 0x prefix.
//
// Browser extensions wrap the signed payload in <Bytes> markers before
// signing, so both the raw message and the wrapped form are accepted.
type Ed25519Verifier struct{}

// NewEd25519Verifier creates the verifier.
func NewEd25519Verifier() ports.SignatureVerifier {
	return Ed25519Verifier{}
}

func (Ed25519Verifier) Verify(message, signature, address string) (bool, error) {
	pubkey, err := DecodeSS58(address)
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return false, fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}

	if ed25519.Verify(ed25519.PublicKey(pubkey), []byte(message), sig) {
		return true, nil
	}
	wrapped := "<Bytes>" + message + "</Bytes>"
	return ed25519.Verify(ed25519.PublicKey(pubkey), []byte(wrapped), sig), nil
}
