package sqlite

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// SessionStore is the SQLite implementation of ports.SessionStore.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a session store on the given pool.
func NewSessionStore(pool *Pool) ports.SessionStore {
	return &SessionStore{pool: pool}
}

const insertSession = `
INSERT INTO sessions (id, address, client_id, access_token, refresh_token,
	access_token_id, refresh_token_id, fingerprint,
	access_token_expires_at, refresh_token_expires_at,
	created_at, last_used_at, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SessionStore) Save(ctx context.Context, sess *core.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, insertSession, &sqlitex.ExecOptions{
		Args: []any{sess.ID, sess.Address, sess.ClientID, sess.AccessToken, sess.RefreshToken,
			sess.AccessTokenID, sess.RefreshTokenID, sess.Fingerprint,
			sess.AccessTokenExpiresAt, sess.RefreshTokenExpiresAt,
			sess.CreatedAt, sess.LastUsedAt, boolToInt(sess.IsActive)},
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

const selectSession = `
SELECT id, address, client_id, access_token, refresh_token,
	access_token_id, refresh_token_id, fingerprint,
	access_token_expires_at, refresh_token_expires_at,
	created_at, last_used_at, is_active
FROM sessions
WHERE address = ? AND client_id = ?
ORDER BY created_at DESC LIMIT 1`

func (s *SessionStore) Get(ctx context.Context, address, clientID string) (*core.Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var sess *core.Session
	err = sqlitex.Execute(conn, selectSession, &sqlitex.ExecOptions{
		Args: []any{address, clientID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sess = scanSession(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return nil, core.ErrSessionNotFound
	}
	return sess, nil
}

// updateSession replaces every rotating field in one statement so the
// old token pair dies atomically with its fingerprint.
const updateSession = `
UPDATE sessions SET
	access_token = ?, refresh_token = ?,
	access_token_id = ?, refresh_token_id = ?, fingerprint = ?,
	access_token_expires_at = ?, refresh_token_expires_at = ?,
	last_used_at = ?
WHERE id = ? AND is_active = 1`

func (s *SessionStore) Update(ctx context.Context, sess *core.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, updateSession, &sqlitex.ExecOptions{
		Args: []any{sess.AccessToken, sess.RefreshToken,
			sess.AccessTokenID, sess.RefreshTokenID, sess.Fingerprint,
			sess.AccessTokenExpiresAt, sess.RefreshTokenExpiresAt,
			sess.LastUsedAt, sess.ID},
	})
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if conn.Changes() == 0 {
		return core.ErrSessionInactive
	}
	return nil
}

const deactivateSession = `UPDATE sessions SET is_active = 0 WHERE id = ? AND is_active = 1`

func (s *SessionStore) Deactivate(ctx context.Context, id string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, deactivateSession, &sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return false, fmt.Errorf("deactivating session: %w", err)
	}
	return conn.Changes() > 0, nil
}

func scanSession(stmt *sqlite.Stmt) *core.Session {
	return &core.Session{
		ID:                    stmt.ColumnText(0),
		Address:               stmt.ColumnText(1),
		ClientID:              stmt.ColumnText(2),
		AccessToken:           stmt.ColumnText(3),
		RefreshToken:          stmt.ColumnText(4),
		AccessTokenID:         stmt.ColumnText(5),
		RefreshTokenID:        stmt.ColumnText(6),
		Fingerprint:           stmt.ColumnText(7),
		AccessTokenExpiresAt:  stmt.ColumnInt64(8),
		RefreshTokenExpiresAt: stmt.ColumnInt64(9),
		CreatedAt:             stmt.ColumnInt64(10),
		LastUsedAt:            stmt.ColumnInt64(11),
		IsActive:              stmt.ColumnInt(12) != 0,
	}
}
