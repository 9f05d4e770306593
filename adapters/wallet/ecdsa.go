package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// ECDSAVerifier verifies EIP-191 personal-sign signatures from
// EVM-compatible accounts (0x-prefixed 20-byte addresses). The signer
// address is recovered from the signature and compared to the claimed
// address.
type ECDSAVerifier struct{}

// NewECDSAVerifier creates the verifier.
func NewECDSAVerifier() ports.SignatureVerifier {
	return ECDSAVerifier{}
}

func (ECDSAVerifier) Verify(message, signature, address string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != 65 {
		return false, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	// Wallets emit V as 27/28; crypto.SigToPub expects 0/1.
	sig = append([]byte{}, sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	hash := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return false, nil
	}
	recovered := crypto.PubkeyToAddress(*pub)
	return recovered == common.HexToAddress(address), nil
}
