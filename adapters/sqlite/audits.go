package sqlite

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// AuditStore is the SQLite implementation of ports.AuditStore.
type AuditStore struct {
	pool *Pool
}

// NewAuditStore creates an audit-log store on the given pool.
func NewAuditStore(pool *Pool) ports.AuditStore {
	return &AuditStore{pool: pool}
}

const insertAudit = `
INSERT INTO audit_logs (event_type, user_address, client_id, action, status,
	details, ip_address, user_agent, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *AuditStore) Append(ctx context.Context, e *core.AuditEvent) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, insertAudit, &sqlitex.ExecOptions{
		Args: []any{e.EventType, e.UserAddress, e.ClientID, e.Action, e.Status,
			e.Details, e.IPAddress, e.UserAgent, e.CreatedAt},
	})
	if err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	e.ID = conn.LastInsertRowID()
	return nil
}

func (s *AuditStore) List(ctx context.Context, f core.AuditFilter) ([]core.AuditEvent, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var where []string
	var args []any
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.UserAddress != "" {
		where = append(where, "user_address = ?")
		args = append(args, f.UserAddress)
	}
	if f.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}

	query := `SELECT id, event_type, user_address, client_id, action, status,
		details, ip_address, user_agent, created_at FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	var events []core.AuditEvent
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			events = append(events, core.AuditEvent{
				ID:          stmt.ColumnInt64(0),
				EventType:   stmt.ColumnText(1),
				UserAddress: stmt.ColumnText(2),
				ClientID:    stmt.ColumnText(3),
				Action:      stmt.ColumnText(4),
				Status:      stmt.ColumnText(5),
				Details:     stmt.ColumnText(6),
				IPAddress:   stmt.ColumnText(7),
				UserAgent:   stmt.ColumnText(8),
				CreatedAt:   stmt.ColumnInt64(9),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return events, nil
}

func (s *AuditStore) Prune(ctx context.Context, before int64) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM audit_logs WHERE created_at < ?`,
		&sqlitex.ExecOptions{Args: []any{before}})
	if err != nil {
		return 0, fmt.Errorf("pruning audit events: %w", err)
	}
	return conn.Changes(), nil
}
