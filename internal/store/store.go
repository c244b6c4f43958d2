// Package store implements the durable local cache of documents,
// annotations, and their sub-entities, backed by SQLite.
//
// Every entity row carries the soft-delete triple (created_at, updated_at,
// deleted_at); deletion is always mark-and-keep so reconciliation can
// distinguish "never existed" from "deleted after X". Reads exclude
// soft-deleted rows unless explicitly asked to include them.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	owner_id       TEXT NOT NULL DEFAULT '',
	base_file_url  TEXT NOT NULL DEFAULT '',
	local_file_url TEXT NOT NULL DEFAULT '',
	created_at     DATETIME,
	updated_at     DATETIME,
	deleted_at     DATETIME
);

CREATE TABLE IF NOT EXISTS annotations (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	owner_id    TEXT NOT NULL DEFAULT '',
	origin_x    REAL NOT NULL DEFAULT 0,
	origin_y    REAL NOT NULL DEFAULT 0,
	width       REAL NOT NULL DEFAULT 0,
	created_at  DATETIME,
	updated_at  DATETIME,
	deleted_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_annotations_document ON annotations(document_id);

CREATE TABLE IF NOT EXISTS annotation_parts (
	id            TEXT PRIMARY KEY,
	annotation_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	ord           INTEGER NOT NULL DEFAULT 0,
	height        REAL NOT NULL DEFAULT 0,
	content       TEXT NOT NULL DEFAULT '',
	handwriting   BLOB
);

CREATE INDEX IF NOT EXISTS idx_parts_annotation ON annotation_parts(annotation_id);

CREATE TABLE IF NOT EXISTS selection_boxes (
	id            TEXT PRIMARY KEY,
	annotation_id TEXT NOT NULL UNIQUE,
	start_x       REAL NOT NULL DEFAULT 0,
	start_y       REAL NOT NULL DEFAULT 0,
	end_x         REAL NOT NULL DEFAULT 0,
	end_y         REAL NOT NULL DEFAULT 0,
	created_at    DATETIME,
	updated_at    DATETIME,
	deleted_at    DATETIME
);

CREATE TABLE IF NOT EXISTS document_shares (
	document_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	UNIQUE(document_id, user_id)
);
`

// Store wraps a sql.DB with entity-level operations.
//
// Writes are serialized through mu: the engine's user-initiated mutations and
// the channel's envelope application interleave on the same store, and
// cross-entity cascades must never observe each other half-done.
type Store struct {
	conn   *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{conn: conn, logger: slog.Default()}, nil
}

// SetLogger replaces the logger used for repair warnings.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// nullTime converts an optional timestamp for a DATETIME column.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
