package ports

import (
	"context"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
)

// EventPublisher fans security events out to other instances and
// external consumers. Publishing is best-effort: failures are logged
// by the caller and never propagate into the authentication path.
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, e *core.AuditEvent) error
}
