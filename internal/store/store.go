package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/onepurp/Mutarjim-Pro/internal/segment"
)

// schema contains the DDL executed on every open. IF NOT EXISTS makes it
// safe to run repeatedly.
const schema = `
CREATE TABLE IF NOT EXISTS project (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL DEFAULT '',
    author              TEXT NOT NULL DEFAULT '',
    translated_title    TEXT NOT NULL DEFAULT '',
    cover_bytes         BLOB,
    source_bytes        BLOB NOT NULL,
    total_segments      INTEGER NOT NULL DEFAULT 0,
    translated_segments INTEGER NOT NULL DEFAULT 0,
    schema_version      INTEGER NOT NULL DEFAULT 2,
    batch_char_limit    INTEGER NOT NULL DEFAULT 6000,
    text_alignment      TEXT NOT NULL DEFAULT 'right',
    force_alignment     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS segments (
    id              TEXT PRIMARY KEY,
    doc_path        TEXT NOT NULL,
    batch_index     INTEGER NOT NULL,
    original_html   TEXT NOT NULL,
    translated_html TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    error           TEXT NOT NULL DEFAULT '',
    UNIQUE(doc_path, batch_index)
);

CREATE INDEX IF NOT EXISTS segments_status ON segments(status);
`

// Store is the one source of truth for the project record and the segment
// set. All status transitions pass through it.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path, enables WAL mode and
// a busy timeout, and creates the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer; one pooled connection avoids
	// SQLITE_BUSY contention and makes claim transactions serialise.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{db: db}

	// Segments left in TRANSLATING belong to a process that died mid-flight.
	// Release them so the queue can be resumed after an interruption.
	if err := s.reclaimInFlight(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) reclaimInFlight() error {
	res, err := s.db.Exec(
		`UPDATE segments SET status = ? WHERE status = ?`,
		string(segment.StatusPending), string(segment.StatusTranslating))
	if err != nil {
		return fmt.Errorf("failed to reclaim in-flight segments: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := s.db.Exec(`UPDATE project SET updated_at = CURRENT_TIMESTAMP`); err != nil {
			return fmt.Errorf("failed to touch project after reclaim: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction executes fn within a transaction, rolling back on error.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Wipe deletes the project record and every segment.
func (s *Store) Wipe(ctx context.Context) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM segments"); err != nil {
			return fmt.Errorf("failed to delete segments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM project"); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
}

// Project is the single book project record.
type Project struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Author             string    `json:"author"`
	TranslatedTitle    string    `json:"translated_title,omitempty"`
	CoverBytes         []byte    `json:"cover_bytes,omitempty"`
	SourceBytes        []byte    `json:"source_bytes,omitempty"`
	TotalSegments      int       `json:"total_segments"`
	TranslatedSegments int       `json:"translated_segments"`
	SchemaVersion      int       `json:"schema_version"`
	BatchCharLimit     int       `json:"batch_char_limit"`
	TextAlignment      string    `json:"text_alignment"`
	ForceAlignment     bool      `json:"force_alignment"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
