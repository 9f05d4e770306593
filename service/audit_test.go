package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CoachCoe/polkadot-sso-sub002/adapters/sqlite"
	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/internal/clock"
)

type capturingPublisher struct {
	events []core.AuditEvent
	err    error
}

func (p *capturingPublisher) PublishAuditEvent(ctx context.Context, e *core.AuditEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *e)
	return nil
}

func newAuditFixture(t *testing.T, pub *capturingPublisher) (*AuditService, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	pool, err := sqlite.Open(sqlite.PoolConfig{
		Path:      filepath.Join(t.TempDir(), "audit.db"),
		MinConns:  1,
		MaxConns:  2,
		OnConnect: sqlite.ApplySchema,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	var svc *AuditService
	if pub != nil {
		svc = NewAuditService(sqlite.NewAuditStore(pool), pub, fake, zap.NewNop())
	} else {
		svc = NewAuditService(sqlite.NewAuditStore(pool), nil, fake, zap.NewNop())
	}
	return svc, fake
}

func TestAuditRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and publishes", func(t *testing.T) {
		pub := &capturingPublisher{}
		svc, fake := newAuditFixture(t, pub)

		svc.Record(ctx, core.AuditEvent{
			EventType:   core.AuditTokenIssued,
			UserAddress: "addr-1",
			ClientID:    "client-1",
			Action:      "create_session",
			Status:      core.AuditStatusSuccess,
		})

		events, err := svc.List(ctx, core.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, fake.Now().UnixMilli(), events[0].CreatedAt)

		require.Len(t, pub.events, 1)
		require.Equal(t, core.AuditTokenIssued, pub.events[0].EventType)
	})

	t.Run("publish failure does not lose the row", func(t *testing.T) {
		pub := &capturingPublisher{err: errors.New("broker down")}
		svc, _ := newAuditFixture(t, pub)

		svc.Record(ctx, core.AuditEvent{
			EventType: core.AuditSecurity,
			Action:    "test",
			Status:    core.AuditStatusFailure,
		})

		events, err := svc.List(ctx, core.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
	})

	t.Run("works without a publisher", func(t *testing.T) {
		svc, _ := newAuditFixture(t, nil)

		svc.Record(ctx, core.AuditEvent{
			EventType: core.AuditAuthAttempt,
			Action:    "test",
			Status:    core.AuditStatusSuccess,
		})

		events, err := svc.List(ctx, core.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
	})
}

func TestAuditPrune(t *testing.T) {
	ctx := context.Background()
	svc, fake := newAuditFixture(t, nil)

	svc.Record(ctx, core.AuditEvent{EventType: core.AuditAuthAttempt, Action: "old", Status: core.AuditStatusSuccess})
	fake.Advance(48 * time.Hour)
	svc.Record(ctx, core.AuditEvent{EventType: core.AuditAuthAttempt, Action: "new", Status: core.AuditStatusSuccess})

	deleted, err := svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	events, err := svc.List(ctx, core.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "new", events[0].Action)
}

func TestStartRetention(t *testing.T) {
	ctx := context.Background()
	svc, fake := newAuditFixture(t, nil)

	svc.Record(ctx, core.AuditEvent{EventType: core.AuditAuthAttempt, Action: "old", Status: core.AuditStatusSuccess})

	stop := svc.StartRetention(time.Hour, 24*time.Hour)
	defer stop()

	fake.Advance(25 * time.Hour)

	deadline := time.Now().Add(5 * time.Second)
	for {
		events, err := svc.List(ctx, core.AuditFilter{})
		require.NoError(t, err)
		if len(events) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("retention loop did not prune")
		}
		time.Sleep(time.Millisecond)
	}
}
