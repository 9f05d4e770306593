package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/internal/clock"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// AuditService is the append-only security event log. Recording is a
// side effect of the authentication path and must never break it:
// Record has no error return, storage and publish failures are logged
// and swallowed.
type AuditService struct {
	store     ports.AuditStore
	publisher ports.EventPublisher // optional
	clock     clock.Clock
	logger    *zap.Logger
}

// NewAuditService creates the audit service. publisher may be nil.
func NewAuditService(store ports.AuditStore, publisher ports.EventPublisher, clk clock.Clock, logger *zap.Logger) *AuditService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		store:     store,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// Record appends one security event and publishes it best-effort.
func (s *AuditService) Record(ctx context.Context, e core.AuditEvent) {
	e.CreatedAt = s.clock.Now().UnixMilli()

	if err := s.store.Append(ctx, &e); err != nil {
		s.logger.Warn("audit append failed",
			zap.String("event_type", e.EventType),
			zap.Error(err),
		)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAuditEvent(ctx, &e); err != nil {
		s.logger.Warn("audit publish failed",
			zap.String("event_type", e.EventType),
			zap.Error(err),
		)
	}
}

// List returns filtered, paginated audit events.
func (s *AuditService) List(ctx context.Context, f core.AuditFilter) ([]core.AuditEvent, error) {
	return s.store.List(ctx, f)
}

// Prune deletes events older than the retention period, returning the
// number deleted.
func (s *AuditService) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-retention).UnixMilli()
	return s.store.Prune(ctx, cutoff)
}

// StartRetention runs Prune every interval until the returned stop
// function is called.
func (s *AuditService) StartRetention(interval, retention time.Duration) (stop func()) {
	done := make(chan struct{})
	ticker := s.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := s.Prune(context.Background(), retention)
				if err != nil {
					s.logger.Warn("audit retention prune failed", zap.Error(err))
				} else if n > 0 {
					s.logger.Info("audit retention pruned events", zap.Int("count", n))
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
