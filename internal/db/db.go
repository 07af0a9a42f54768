// Package db provides SQLite access for the telemetry journal.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// The journal has a single writer; serialize access at the pool level.
	conn.SetMaxOpenConns(1)
	return &DB{conn: conn}, nil
}

// OpenInMemory opens a throwaway in-memory database for tests.
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	return &DB{conn: conn}, nil
}

// Migrate creates the journal schema when missing.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS telemetry_events (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			timestamp   TEXT NOT NULL,
			run_id      TEXT,
			sequence    TEXT,
			line        TEXT,
			reason      TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			queue_depth INTEGER NOT NULL DEFAULT 0,
			detail_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_telemetry_events_run ON telemetry_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_telemetry_events_kind ON telemetry_events(kind);
	`)
	if err != nil {
		return fmt.Errorf("migrate telemetry schema: %w", err)
	}
	return nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.conn.Close()
}
