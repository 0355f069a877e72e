// Package history records completed jail executions to a small SQLite
// database so an operator can later inspect what ran, how long it took, and
// whether it exited cleanly.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded job.
type Entry struct {
	Slug      string
	Command   string
	Status    int
	Duration  time.Duration
	StartedAt time.Time
}

// Store is the persistence interface the jail orchestrator writes to.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// SQLiteStore is a Store backed by modernc.org/sqlite (pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at dsn and ensures
// its schema exists.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("codejail: open history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("codejail: set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL,
		command TEXT NOT NULL,
		status INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		started_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("codejail: create jobs table: %w", err)
	}
	return nil
}

// Record inserts one completed job entry.
func (s *SQLiteStore) Record(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (slug, command, status, duration_ms, started_at) VALUES (?, ?, ?, ?, ?)`,
		entry.Slug, entry.Command, entry.Status, entry.Duration.Milliseconds(), entry.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("codejail: record job history: %w", err)
	}
	return nil
}

// Recent returns the most recently started jobs, newest first, capped at
// limit.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slug, command, status, duration_ms, started_at FROM jobs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("codejail: query job history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		if err := rows.Scan(&e.Slug, &e.Command, &e.Status, &durationMS, &e.StartedAt); err != nil {
			return nil, fmt.Errorf("codejail: scan job history row: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("codejail: iterate job history: %w", err)
	}
	return entries, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
