package sqlite

import (
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Schema creates the tables on first connect. Timestamps are epoch
// milliseconds; booleans are stored as 0/1.
const Schema = `
CREATE TABLE IF NOT EXISTS challenges (
	id             TEXT PRIMARY KEY,
	message        TEXT NOT NULL,
	client_id      TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	expires_at     INTEGER NOT NULL,
	code_verifier  TEXT NOT NULL,
	code_challenge TEXT NOT NULL,
	state          TEXT NOT NULL,
	nonce          TEXT NOT NULL,
	issued_at      TEXT NOT NULL,
	used           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_challenges_expires_at ON challenges(expires_at);

CREATE TABLE IF NOT EXISTS sessions (
	id                       TEXT PRIMARY KEY,
	address                  TEXT NOT NULL,
	client_id                TEXT NOT NULL,
	access_token             TEXT NOT NULL,
	refresh_token            TEXT NOT NULL,
	access_token_id          TEXT NOT NULL,
	refresh_token_id         TEXT NOT NULL,
	fingerprint              TEXT NOT NULL,
	access_token_expires_at  INTEGER NOT NULL,
	refresh_token_expires_at INTEGER NOT NULL,
	created_at               INTEGER NOT NULL,
	last_used_at             INTEGER NOT NULL,
	is_active                INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sessions_address_client ON sessions(address, client_id);

CREATE TABLE IF NOT EXISTS auth_codes (
	code       TEXT PRIMARY KEY,
	address    TEXT NOT NULL,
	client_id  TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	used       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_auth_codes_expires_at ON auth_codes(expires_at);

CREATE TABLE IF NOT EXISTS audit_logs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type   TEXT NOT NULL,
	user_address TEXT,
	client_id    TEXT,
	action       TEXT NOT NULL,
	status       TEXT NOT NULL,
	details      TEXT,
	ip_address   TEXT,
	user_agent   TEXT,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
`

// ApplySchema is the standard OnConnect hook.
func ApplySchema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, Schema, nil)
}
