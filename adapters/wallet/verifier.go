package wallet

import (
	"strings"

	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// Verifier dispatches on address format: 0x-prefixed addresses go to
// the ECDSA verifier, everything else is treated as SS58/Ed25519.
// sr25519 accounts are not supported here; deployments that need them
// inject their own ports.SignatureVerifier.
type Verifier struct {
	ecdsa   ports.SignatureVerifier
	ed25519 ports.SignatureVerifier
}

// NewVerifier creates the dispatching verifier.
func NewVerifier() ports.SignatureVerifier {
	return &Verifier{
		ecdsa:   NewECDSAVerifier(),
		ed25519: NewEd25519Verifier(),
	}
}

func (v *Verifier) Verify(message, signature, address string) (bool, error) {
	if strings.HasPrefix(address, "0x") {
		return v.ecdsa.Verify(message, signature, address)
	}
	return v.ed25519.Verify(message, signature, address)
}
