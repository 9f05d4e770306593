package ports

import (
	"context"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
)

// ChallengeStore persists authentication challenges. Get returns the
// row regardless of used/expired state; the service layer applies
// validity rules so it can report distinct rejection reasons.
type ChallengeStore interface {
	Save(ctx context.Context, c *core.Challenge) error
	Get(ctx context.Context, id string) (*core.Challenge, error)

	// MarkUsed flips used from false to true exactly once. Returns
	// whether this call performed the flip.
	MarkUsed(ctx context.Context, id string) (bool, error)

	// DeleteExpired removes rows past their expiry, returning the
	// number deleted.
	DeleteExpired(ctx context.Context, now int64) (int, error)

	Stats(ctx context.Context, now int64) (core.ChallengeStats, error)
}

// SessionStore persists sessions keyed by (address, client_id).
type SessionStore interface {
	Save(ctx context.Context, s *core.Session) error

	// Get returns the most recent session for the pair, active or not.
	Get(ctx context.Context, address, clientID string) (*core.Session, error)

	// Update overwrites the token, id, fingerprint, expiry and
	// last-used fields of an existing row in one statement.
	Update(ctx context.Context, s *core.Session) error

	// Deactivate soft-deletes the session. Returns whether a live row
	// was flipped.
	Deactivate(ctx context.Context, id string) (bool, error)
}

// AuthCodeStore persists single-use authorization codes.
type AuthCodeStore interface {
	Save(ctx context.Context, c *core.AuthorizationCode) error

	// Consume atomically marks the code used and returns it. Fails
	// with core.ErrCodeNotFound, core.ErrCodeExpired or
	// core.ErrCodeAlreadyUsed.
	Consume(ctx context.Context, code string, now int64) (*core.AuthorizationCode, error)

	DeleteExpired(ctx context.Context, now int64) (int, error)
}

// AuditStore is the append-only security event log.
type AuditStore interface {
	Append(ctx context.Context, e *core.AuditEvent) error
	List(ctx context.Context, f core.AuditFilter) ([]core.AuditEvent, error)

	// Prune deletes events created before the given epoch-ms cutoff,
	// returning the number deleted.
	Prune(ctx context.Context, before int64) (int, error)
}
