package sqlite

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// AuthCodeStore is the SQLite implementation of ports.AuthCodeStore.
type AuthCodeStore struct {
	pool *Pool
}

// NewAuthCodeStore creates an authorization-code store on the pool.
func NewAuthCodeStore(pool *Pool) ports.AuthCodeStore {
	return &AuthCodeStore{pool: pool}
}

const insertAuthCode = `
INSERT INTO auth_codes (code, address, client_id, created_at, expires_at, used)
VALUES (?, ?, ?, ?, ?, ?)`

func (s *AuthCodeStore) Save(ctx context.Context, c *core.AuthorizationCode) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, insertAuthCode, &sqlitex.ExecOptions{
		Args: []any{c.Code, c.Address, c.ClientID, c.CreatedAt, c.ExpiresAt, boolToInt(c.Used)},
	})
	if err != nil {
		return fmt.Errorf("saving auth code: %w", err)
	}
	return nil
}

const selectAuthCode = `
SELECT code, address, client_id, created_at, expires_at, used
FROM auth_codes WHERE code = ?`

// consumeAuthCode is guarded: only one caller can flip used.
const consumeAuthCode = `UPDATE auth_codes SET used = 1 WHERE code = ? AND used = 0`

func (s *AuthCodeStore) Consume(ctx context.Context, code string, now int64) (*core.AuthorizationCode, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var ac *core.AuthorizationCode
	err = sqlitex.Execute(conn, selectAuthCode, &sqlitex.ExecOptions{
		Args: []any{code},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ac = &core.AuthorizationCode{
				Code:      stmt.ColumnText(0),
				Address:   stmt.ColumnText(1),
				ClientID:  stmt.ColumnText(2),
				CreatedAt: stmt.ColumnInt64(3),
				ExpiresAt: stmt.ColumnInt64(4),
				Used:      stmt.ColumnInt(5) != 0,
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("loading auth code: %w", err)
	}
	switch {
	case ac == nil:
		return nil, core.ErrCodeNotFound
	case ac.Used:
		return nil, core.ErrCodeAlreadyUsed
	case ac.ExpiresAt <= now:
		return nil, core.ErrCodeExpired
	}

	err = sqlitex.Execute(conn, consumeAuthCode, &sqlitex.ExecOptions{Args: []any{code}})
	if err != nil {
		return nil, fmt.Errorf("consuming auth code: %w", err)
	}
	if conn.Changes() == 0 {
		// Lost the race to a concurrent exchange.
		return nil, core.ErrCodeAlreadyUsed
	}
	ac.Used = true
	return ac, nil
}

func (s *AuthCodeStore) DeleteExpired(ctx context.Context, now int64) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM auth_codes WHERE expires_at <= ?`,
		&sqlitex.ExecOptions{Args: []any{now}})
	if err != nil {
		return 0, fmt.Errorf("deleting expired auth codes: %w", err)
	}
	return conn.Changes(), nil
}
