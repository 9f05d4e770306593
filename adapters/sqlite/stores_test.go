package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
)

func storePool(t *testing.T) *Pool {
	t.Helper()
	return testPool(t, PoolConfig{
		MinConns:  1,
		MaxConns:  4,
		OnConnect: ApplySchema,
	})
}

func testChallenge(id string, now time.Time) *core.Challenge {
	verifier := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	return &core.Challenge{
		ID:            id,
		Message:       "example.com wants you to sign in with your Polkadot account:\n5Grw\n\nURI: https://example.com\nVersion: 1\nChain ID: polkadot\nNonce: n\nIssued At: t",
		ClientID:      "client-1",
		CreatedAt:     now.UnixMilli(),
		ExpiresAt:     now.Add(core.ChallengeTTL).UnixMilli(),
		CodeVerifier:  verifier,
		CodeChallenge: core.ComputeCodeChallenge(verifier),
		State:         "state-1",
		Nonce:         "nonce-1",
		IssuedAt:      now.UTC().Format(time.RFC3339),
	}
}

func TestChallengeStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewChallengeStore(storePool(t))

	t.Run("save and get", func(t *testing.T) {
		want := testChallenge("ch-1", now)
		require.NoError(t, store.Save(ctx, want))

		got, err := store.Get(ctx, "ch-1")
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		require.ErrorIs(t, err, core.ErrChallengeNotFound)
	})

	t.Run("mark used flips exactly once", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testChallenge("ch-2", now)))

		flipped, err := store.MarkUsed(ctx, "ch-2")
		require.NoError(t, err)
		require.True(t, flipped)

		flipped, err = store.MarkUsed(ctx, "ch-2")
		require.NoError(t, err)
		require.False(t, flipped, "second mark must not flip again")

		got, err := store.Get(ctx, "ch-2")
		require.NoError(t, err)
		require.True(t, got.Used)
	})

	t.Run("delete expired", func(t *testing.T) {
		old := testChallenge("ch-old", now.Add(-time.Hour))
		require.NoError(t, store.Save(ctx, old))

		deleted, err := store.DeleteExpired(ctx, now.UnixMilli())
		require.NoError(t, err)
		require.Equal(t, 1, deleted)

		_, err = store.Get(ctx, "ch-old")
		require.ErrorIs(t, err, core.ErrChallengeNotFound)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := store.Stats(ctx, now.UnixMilli())
		require.NoError(t, err)
		// ch-1 is active, ch-2 is used, ch-old was deleted above.
		require.Equal(t, int64(2), stats.Total)
		require.Equal(t, int64(1), stats.Active)
		require.Equal(t, int64(1), stats.Used)
		require.Equal(t, int64(0), stats.Expired)
	})
}

func testSession(id, address string, now time.Time) *core.Session {
	return &core.Session{
		ID:                    id,
		Address:               address,
		ClientID:              "client-1",
		AccessToken:           "access-" + id,
		RefreshToken:          "refresh-" + id,
		AccessTokenID:         "at-" + id,
		RefreshTokenID:        "rt-" + id,
		Fingerprint:           "fp-" + id,
		AccessTokenExpiresAt:  now.Add(core.AccessTokenTTL).UnixMilli(),
		RefreshTokenExpiresAt: now.Add(core.RefreshTokenTTL).UnixMilli(),
		CreatedAt:             now.UnixMilli(),
		LastUsedAt:            now.UnixMilli(),
		IsActive:              true,
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(storePool(t))

	t.Run("save and get", func(t *testing.T) {
		want := testSession("s-1", "addr-1", now)
		require.NoError(t, store.Save(ctx, want))

		got, err := store.Get(ctx, "addr-1", "client-1")
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "addr-1", "other-client")
		require.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("get returns most recent", func(t *testing.T) {
		older := testSession("s-2a", "addr-2", now)
		newer := testSession("s-2b", "addr-2", now.Add(time.Minute))
		require.NoError(t, store.Save(ctx, older))
		require.NoError(t, store.Save(ctx, newer))

		got, err := store.Get(ctx, "addr-2", "client-1")
		require.NoError(t, err)
		require.Equal(t, "s-2b", got.ID)
	})

	t.Run("update rotates all token fields", func(t *testing.T) {
		sess := testSession("s-3", "addr-3", now)
		require.NoError(t, store.Save(ctx, sess))

		sess.AccessToken = "access-new"
		sess.RefreshToken = "refresh-new"
		sess.AccessTokenID = "at-new"
		sess.RefreshTokenID = "rt-new"
		sess.Fingerprint = "fp-new"
		sess.LastUsedAt = now.Add(time.Minute).UnixMilli()
		require.NoError(t, store.Update(ctx, sess))

		got, err := store.Get(ctx, "addr-3", "client-1")
		require.NoError(t, err)
		require.Equal(t, sess, got)
	})

	t.Run("deactivate", func(t *testing.T) {
		sess := testSession("s-4", "addr-4", now)
		require.NoError(t, store.Save(ctx, sess))

		flipped, err := store.Deactivate(ctx, "s-4")
		require.NoError(t, err)
		require.True(t, flipped)

		flipped, err = store.Deactivate(ctx, "s-4")
		require.NoError(t, err)
		require.False(t, flipped)

		got, err := store.Get(ctx, "addr-4", "client-1")
		require.NoError(t, err)
		require.False(t, got.IsActive, "deactivated sessions stay readable")
	})

	t.Run("update dead session", func(t *testing.T) {
		sess := testSession("s-5", "addr-5", now)
		require.NoError(t, store.Save(ctx, sess))
		_, err := store.Deactivate(ctx, "s-5")
		require.NoError(t, err)

		err = store.Update(ctx, sess)
		require.ErrorIs(t, err, core.ErrSessionInactive)
	})
}

func TestAuthCodeStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewAuthCodeStore(storePool(t))

	save := func(t *testing.T, code string, expiresAt time.Time) {
		t.Helper()
		require.NoError(t, store.Save(ctx, &core.AuthorizationCode{
			Code:      code,
			Address:   "addr-1",
			ClientID:  "client-1",
			CreatedAt: now.UnixMilli(),
			ExpiresAt: expiresAt.UnixMilli(),
		}))
	}

	t.Run("consume once", func(t *testing.T) {
		save(t, "code-1", now.Add(core.AuthCodeTTL))

		ac, err := store.Consume(ctx, "code-1", now.UnixMilli())
		require.NoError(t, err)
		require.Equal(t, "addr-1", ac.Address)
		require.Equal(t, "client-1", ac.ClientID)

		_, err = store.Consume(ctx, "code-1", now.UnixMilli())
		require.ErrorIs(t, err, core.ErrCodeAlreadyUsed)
	})

	t.Run("consume missing", func(t *testing.T) {
		_, err := store.Consume(ctx, "nope", now.UnixMilli())
		require.ErrorIs(t, err, core.ErrCodeNotFound)
	})

	t.Run("consume expired", func(t *testing.T) {
		save(t, "code-2", now.Add(-time.Minute))

		_, err := store.Consume(ctx, "code-2", now.UnixMilli())
		require.ErrorIs(t, err, core.ErrCodeExpired)
	})

	t.Run("delete expired", func(t *testing.T) {
		deleted, err := store.DeleteExpired(ctx, now.UnixMilli())
		require.NoError(t, err)
		require.Equal(t, 1, deleted, "only code-2 is past expiry")
	})
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewAuditStore(storePool(t))

	record := func(t *testing.T, eventType, address string, at time.Time) {
		t.Helper()
		require.NoError(t, store.Append(ctx, &core.AuditEvent{
			EventType:   eventType,
			UserAddress: address,
			ClientID:    "client-1",
			Action:      "test",
			Status:      core.AuditStatusSuccess,
			CreatedAt:   at.UnixMilli(),
		}))
	}

	record(t, core.AuditAuthSuccess, "addr-1", now.Add(-2*time.Hour))
	record(t, core.AuditTokenIssued, "addr-1", now.Add(-time.Hour))
	record(t, core.AuditAuthFailure, "addr-2", now)

	t.Run("append assigns ids", func(t *testing.T) {
		e := &core.AuditEvent{
			EventType:   core.AuditSecurity,
			UserAddress: "addr-3",
			Action:      "test",
			Status:      core.AuditStatusFailure,
			CreatedAt:   now.UnixMilli(),
		}
		require.NoError(t, store.Append(ctx, e))
		require.NotZero(t, e.ID)
	})

	t.Run("list newest first", func(t *testing.T) {
		events, err := store.List(ctx, core.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, events, 4)
		for i := 1; i < len(events); i++ {
			require.GreaterOrEqual(t, events[i-1].CreatedAt, events[i].CreatedAt)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		events, err := store.List(ctx, core.AuditFilter{UserAddress: "addr-1"})
		require.NoError(t, err)
		require.Len(t, events, 2)

		events, err = store.List(ctx, core.AuditFilter{EventType: core.AuditAuthFailure})
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, "addr-2", events[0].UserAddress)
	})

	t.Run("list paginates", func(t *testing.T) {
		events, err := store.List(ctx, core.AuditFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, events, 2)

		events, err = store.List(ctx, core.AuditFilter{Limit: 2, Offset: 3})
		require.NoError(t, err)
		require.Len(t, events, 1)
	})

	t.Run("prune", func(t *testing.T) {
		deleted, err := store.Prune(ctx, now.Add(-30*time.Minute).UnixMilli())
		require.NoError(t, err)
		require.Equal(t, 2, deleted)

		events, err := store.List(ctx, core.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, events, 2)
	})
}
