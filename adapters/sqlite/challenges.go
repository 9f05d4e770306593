package sqlite

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// ChallengeStore is the SQLite implementation of ports.ChallengeStore.
type ChallengeStore struct {
	pool *Pool
}

// NewChallengeStore creates a challenge store on the given pool.
func NewChallengeStore(pool *Pool) ports.ChallengeStore {
	return &ChallengeStore{pool: pool}
}

const insertChallenge = `
INSERT INTO challenges (id, message, client_id, created_at, expires_at,
	code_verifier, code_challenge, state, nonce, issued_at, used)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *ChallengeStore) Save(ctx context.Context, c *core.Challenge) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, insertChallenge, &sqlitex.ExecOptions{
		Args: []any{c.ID, c.Message, c.ClientID, c.CreatedAt, c.ExpiresAt,
			c.CodeVerifier, c.CodeChallenge, c.State, c.Nonce, c.IssuedAt, boolToInt(c.Used)},
	})
	if err != nil {
		return fmt.Errorf("saving challenge: %w", err)
	}
	return nil
}

const selectChallenge = `
SELECT id, message, client_id, created_at, expires_at,
	code_verifier, code_challenge, state, nonce, issued_at, used
FROM challenges WHERE id = ?`

func (s *ChallengeStore) Get(ctx context.Context, id string) (*core.Challenge, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var c *core.Challenge
	err = sqlitex.Execute(conn, selectChallenge, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			c = scanChallenge(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("loading challenge: %w", err)
	}
	if c == nil {
		return nil, core.ErrChallengeNotFound
	}
	return c, nil
}

// markChallengeUsed is guarded so two concurrent verification attempts
// on the same challenge cannot both succeed.
const markChallengeUsed = `UPDATE challenges SET used = 1 WHERE id = ? AND used = 0`

func (s *ChallengeStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, markChallengeUsed, &sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return false, fmt.Errorf("marking challenge used: %w", err)
	}
	return conn.Changes() > 0, nil
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context, now int64) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM challenges WHERE expires_at <= ?`,
		&sqlitex.ExecOptions{Args: []any{now}})
	if err != nil {
		return 0, fmt.Errorf("deleting expired challenges: %w", err)
	}
	return conn.Changes(), nil
}

const challengeStats = `
SELECT COUNT(*),
	SUM(CASE WHEN used = 0 AND expires_at > ? THEN 1 ELSE 0 END),
	SUM(CASE WHEN used = 1 THEN 1 ELSE 0 END),
	SUM(CASE WHEN used = 0 AND expires_at <= ? THEN 1 ELSE 0 END)
FROM challenges`

func (s *ChallengeStore) Stats(ctx context.Context, now int64) (core.ChallengeStats, error) {
	var stats core.ChallengeStats
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return stats, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, challengeStats, &sqlitex.ExecOptions{
		Args: []any{now, now},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.Total = stmt.ColumnInt64(0)
			stats.Active = stmt.ColumnInt64(1)
			stats.Used = stmt.ColumnInt64(2)
			stats.Expired = stmt.ColumnInt64(3)
			return nil
		},
	})
	if err != nil {
		return stats, fmt.Errorf("challenge stats: %w", err)
	}
	return stats, nil
}

func scanChallenge(stmt *sqlite.Stmt) *core.Challenge {
	return &core.Challenge{
		ID:            stmt.ColumnText(0),
		Message:       stmt.ColumnText(1),
		ClientID:      stmt.ColumnText(2),
		CreatedAt:     stmt.ColumnInt64(3),
		ExpiresAt:     stmt.ColumnInt64(4),
		CodeVerifier:  stmt.ColumnText(5),
		CodeChallenge: stmt.ColumnText(6),
		State:         stmt.ColumnText(7),
		Nonce:         stmt.ColumnText(8),
		IssuedAt:      stmt.ColumnText(9),
		Used:          stmt.ColumnInt(10) != 0,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
