package core

import "errors"

// Error is a protocol-level rejection. Reason is a stable
// machine-readable string that API consumers can branch on; it never
// changes once published. Infrastructure failures (storage, pool) are
// ordinary wrapped errors, not Errors.
type Error struct {
	Reason  string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// Validation
	ErrInvalidRequest = &Error{Reason: "invalid_request", Message: "missing or malformed input"}

	// Challenge
	ErrChallengeNotFound    = &Error{Reason: "challenge_not_found", Message: "challenge not found"}
	ErrChallengeExpired     = &Error{Reason: "challenge_expired", Message: "challenge has expired"}
	ErrChallengeAlreadyUsed = &Error{Reason: "challenge_already_used", Message: "challenge has already been used"}
	ErrStateMismatch        = &Error{Reason: "state_mismatch", Message: "state parameter does not match"}
	ErrInvalidCodeVerifier  = &Error{Reason: "invalid_code_verifier", Message: "code verifier does not match code challenge"}

	// Signature
	ErrInvalidSignature = &Error{Reason: "invalid_signature", Message: "signature verification failed"}

	// Session / token
	ErrSessionNotFound     = &Error{Reason: "session_not_found", Message: "session not found"}
	ErrSessionInactive     = &Error{Reason: "session_inactive", Message: "session is no longer active"}
	ErrFingerprintMismatch = &Error{Reason: "fingerprint_mismatch", Message: "token fingerprint does not match session"}
	ErrTokenExpired        = &Error{Reason: "token_expired", Message: "token has expired"}
	ErrInvalidToken        = &Error{Reason: "invalid_token", Message: "token is invalid"}

	// Authorization code
	ErrCodeNotFound    = &Error{Reason: "code_not_found", Message: "authorization code not found"}
	ErrCodeExpired     = &Error{Reason: "code_expired", Message: "authorization code has expired"}
	ErrCodeAlreadyUsed = &Error{Reason: "code_already_used", Message: "authorization code has already been used"}
	ErrClientMismatch  = &Error{Reason: "client_mismatch", Message: "authorization code was issued to a different client"}
)

// Reason extracts the machine-readable reason from err, or "" if err
// is not a protocol rejection.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
