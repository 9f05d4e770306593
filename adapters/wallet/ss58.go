// Package wallet implements the signature-verification capability over
// the wallet address formats the service accepts: SS58-encoded
// Ed25519 accounts and 0x-prefixed ECDSA (EVM-compatible) accounts.
package wallet

import (
	"bytes"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ss58Prefix is the checksum preimage prefix from the SS58 spec.
var ss58Prefix = []byte("SS58PRE")

// DecodeSS58 decodes an SS58 address and returns the 32-byte public
// key. Supports one- and two-byte network prefixes; the trailing
// two-byte blake2b checksum is verified.
func DecodeSS58(address string) ([]byte, error) {
	raw, err := base58Decode(address)
	if err != nil {
		return nil, fmt.Errorf("ss58: %w", err)
	}
	if len(raw) < 35 {
		return nil, fmt.Errorf("ss58: address too short")
	}

	prefixLen := 1
	if raw[0] >= 64 {
		prefixLen = 2
	}
	body := raw[:len(raw)-2]
	checksum := raw[len(raw)-2:]
	pubkey := body[prefixLen:]
	if len(pubkey) != 32 {
		return nil, fmt.Errorf("ss58: unexpected public key length %d", len(pubkey))
	}

	sum := blake2b.Sum512(append(append([]byte{}, ss58Prefix...), body...))
	if !bytes.Equal(sum[:2], checksum) {
		return nil, fmt.Errorf("ss58: checksum mismatch")
	}
	return pubkey, nil
}

// EncodeSS58 encodes a 32-byte public key under a one-byte network
// prefix (0 for Polkadot, 42 for generic substrate).
func EncodeSS58(pubkey []byte, network byte) (string, error) {
	if len(pubkey) != 32 {
		return "", fmt.Errorf("ss58: public key must be 32 bytes")
	}
	if network >= 64 {
		return "", fmt.Errorf("ss58: multi-byte network prefixes are not supported")
	}
	body := append([]byte{network}, pubkey...)
	sum := blake2b.Sum512(append(append([]byte{}, ss58Prefix...), body...))
	return base58Encode(append(body, sum[:2]...)), nil
}

func base58Decode(s string) ([]byte, error) {
	result := new(big.Int)
	radix := big.NewInt(58)
	for _, r := range s {
		idx := bytes.IndexRune([]byte(base58Alphabet), r)
		if idx < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", r)
		}
		result.Mul(result, radix)
		result.Add(result, big.NewInt(int64(idx)))
	}
	decoded := result.Bytes()
	// Leading '1's encode leading zero bytes.
	for i := 0; i < len(s) && s[i] == '1'; i++ {
		decoded = append([]byte{0}, decoded...)
	}
	return decoded, nil
}

func base58Encode(b []byte) string {
	num := new(big.Int).SetBytes(b)
	radix := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, radix, mod)
		out = append([]byte{base58Alphabet[mod.Int64()]}, out...)
	}
	for i := 0; i < len(b) && b[i] == 0; i++ {
		out = append([]byte{'1'}, out...)
	}
	return string(out)
}
