// Package ledger keeps a local history of sync runs in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

var schema = []string{`
	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		source_sha256 TEXT NOT NULL DEFAULT '',
		backup_path TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS sync_runs_sha ON sync_runs (source_sha256, outcome)`,
}

// Entry is one recorded run.
type Entry struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	SourcePath   string    `json:"source_path"`
	SourceSHA256 string    `json:"source_sha256"`
	BackupPath   string    `json:"backup_path"`
	Outcome      string    `json:"outcome"`
	Detail       string    `json:"detail"`
}

// Store records runs. Outcomes are stored as the caller's string form.
type Store interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	UploadedBefore(ctx context.Context, sha256 string) (bool, error)
	Close() error
}

// SQLite is the file-backed Store.
type SQLite struct {
	db *sql.DB
}

var _ Store = &SQLite{} // Compile-time check

// Uploaded outcome names counted by UploadedBefore.
var uploadedOutcomes = []any{"uploaded", "duplicate"}

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger at %q: %w", path, err)
	}
	// Limit SQLite to a single open connection to avoid "database is locked" errors
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect ledger at %q: %w", path, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create sync_runs schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Record inserts e, replacing an earlier row with the same run id.
func (s *SQLite) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		return errors.New("ledger entry has no run id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_runs
			(run_id, started_at, source_path, source_sha256, backup_path, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.StartedAt.UTC().UnixNano(), e.SourcePath, e.SourceSHA256, e.BackupPath, e.Outcome, e.Detail)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, source_path, source_sha256, backup_path, outcome, detail
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ns int64
		)
		if err := rows.Scan(&e.RunID, &ns, &e.SourcePath, &e.SourceSHA256, &e.BackupPath, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt = time.Unix(0, ns).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// UploadedBefore reports whether a run with the same source digest ended in
// an upload or a duplicate.
func (s *SQLite) UploadedBefore(ctx context.Context, sha256 string) (bool, error) {
	if sha256 == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_runs WHERE source_sha256 = ? AND outcome IN (?, ?)`,
		append([]any{sha256}, uploadedOutcomes...)...).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query uploads: %w", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
