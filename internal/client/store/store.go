// Package store implements the client-local persistence layer: the entity
// store the UI reads, and the durable queue of pending mutations awaiting
// transfer to the server. Both live in one embedded SQLite database so a
// local write and its queue entry commit in a single transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
    entity_type TEXT NOT NULL,
    id TEXT NOT NULL,
    payload TEXT NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (entity_type, id)
);

CREATE TABLE IF NOT EXISTS sync_queue (
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    operation TEXT NOT NULL CHECK (operation IN ('create','update','delete')),
    payload TEXT,
    created_at TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS sync_info (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_synced_at TEXT
);

INSERT OR IGNORE INTO sync_info (id, last_synced_at) VALUES (1, NULL);
`

// Store owns the client-local database handle. All mutating operations run
// inside transactions serialized by the single connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the client database at path. Pass
// ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps write transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastSyncedAt returns the time of the last fully successful drain, or the
// zero time if the client has never synced.
func (s *Store) LastSyncedAt(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced_at FROM sync_info WHERE id = 1`).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("last synced at: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last synced at: %w", err)
	}
	return t, nil
}

// SetLastSyncedAt persists the last successful drain time.
func (s *Store) SetLastSyncedAt(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_info SET last_synced_at = ? WHERE id = 1`,
		t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set last synced at: %w", err)
	}
	return nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
