package core

// Audit event types.
const (
	AuditAuthAttempt  = "auth_attempt"
	AuditAuthSuccess  = "auth_success"
	AuditAuthFailure  = "auth_failure"
	AuditTokenIssued  = "token_issued"
	AuditTokenRefresh = "token_refresh"
	AuditTokenRevoked = "token_revoked"
	AuditSecurity     = "security_violation"
)

// Audit event statuses.
const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// AuditEvent is one row in the append-only security event log.
type AuditEvent struct {
	ID          int64  `json:"id"`
	EventType   string `json:"event_type"`
	UserAddress string `json:"user_address,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Action      string `json:"action"`
	Status      string `json:"status"`
	Details     string `json:"details,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// AuditFilter selects audit rows for retrieval. Zero-valued fields
// match everything; Limit defaults to 100.
type AuditFilter struct {
	EventType   string
	UserAddress string
	ClientID    string
	Limit       int
	Offset      int
}
