// Package sqlitestore persists principals, backup codes, and audit events
// in SQLite. It is the reference CredentialStore implementation; the
// lockout transition is a conditional UPDATE so concurrent login failures
// serialize at the database instead of racing in memory.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id                TEXT PRIMARY KEY,
	email             TEXT UNIQUE,
	phone             TEXT UNIQUE,
	password_hash     TEXT NOT NULL,
	role              TEXT NOT NULL DEFAULT 'guest',
	status            INTEGER NOT NULL DEFAULT 0,
	failed_logins     INTEGER NOT NULL DEFAULT 0,
	locked_until      INTEGER,
	two_factor_secret TEXT NOT NULL DEFAULT '',
	totp_last_used    INTEGER NOT NULL DEFAULT 0,
	last_login_at     INTEGER,
	created_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS backup_codes (
	principal_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
	code_hash    BLOB NOT NULL,
	PRIMARY KEY (principal_id, code_hash)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id           TEXT PRIMARY KEY,
	occurred_at  INTEGER NOT NULL,
	action       TEXT NOT NULL,
	principal_id TEXT,
	session_id   TEXT,
	ip           TEXT,
	device       TEXT,
	success      INTEGER NOT NULL,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_principal ON audit_events(principal_id, occurred_at);
`

// Open opens (or creates) the database at path and applies the schema.
// WAL mode keeps readers unblocked during lockout-counter writes.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}
