package ports

// SignatureVerifier checks that signature was produced over message by
// the wallet controlling address. Implementations cover specific
// signature schemes; a false return with nil error means the signature
// simply does not verify, while an error reports malformed input or an
// unsupported address format.
type SignatureVerifier interface {
	Verify(message, signature, address string) (bool, error)
}
