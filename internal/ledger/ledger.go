// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists per-paper processing state in SQLite. It is the
// durable record the pipeline resumes from: every stage transition is one
// atomic, idempotent upsert keyed by (run_id, title).
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pubsum/pkg/types"
)

// Store manages the ledger SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at dbPath, creating the schema
// if it does not exist. WAL journaling keeps concurrent upserts for
// different titles from blocking each other.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			run_id TEXT NOT NULL,
			title TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			local_path TEXT NOT NULL DEFAULT '',
			raw_text TEXT,
			summary TEXT,
			status TEXT NOT NULL,
			error_detail TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (run_id, title)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_status ON papers(status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Upsert writes the record's full state in a single statement. Applying the
// same upsert twice yields the same stored state. Empty RawText, Summary,
// and ErrorDetail are stored as NULL so the nullability invariants hold at
// the storage layer too.
func (s *Store) Upsert(ctx context.Context, rec types.PaperRecord) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (run_id, title, source_url, local_path, raw_text, summary, status, error_detail, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, title) DO UPDATE SET
			source_url=excluded.source_url, local_path=excluded.local_path,
			raw_text=excluded.raw_text, summary=excluded.summary,
			status=excluded.status, error_detail=excluded.error_detail,
			updated_at=excluded.updated_at`,
		rec.RunID, rec.Title, rec.SourceURL, rec.LocalPath,
		nullable(rec.RawText), nullable(rec.Summary),
		string(rec.Status), nullable(rec.ErrorDetail),
		updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting %q: %w", rec.Title, err)
	}
	return nil
}

// Get returns the record for (runID, title), or nil when absent.
func (s *Store) Get(ctx context.Context, runID, title string) (*types.PaperRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, title, source_url, local_path, raw_text, summary, status, error_detail, updated_at
		 FROM papers WHERE run_id = ? AND title = ?`, runID, title)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", title, err)
	}
	return rec, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	// RunID restricts to one conference run.
	RunID string

	// Status restricts to one exact status.
	Status types.Status

	// FailedOnly restricts to failure statuses of any stage.
	FailedOnly bool
}

// List returns records matching the filter, ordered by title.
func (s *Store) List(ctx context.Context, f Filter) ([]types.PaperRecord, error) {
	query := `SELECT run_id, title, source_url, local_path, raw_text, summary, status, error_detail, updated_at
		 FROM papers WHERE 1=1`
	var args []any
	if f.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, f.RunID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.FailedOnly {
		query += ` AND status LIKE 'failed:%'`
	}
	query += ` ORDER BY title COLLATE NOCASE`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var records []types.PaperRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper row: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*types.PaperRecord, error) {
	var (
		rec        types.PaperRecord
		rawText    sql.NullString
		summary    sql.NullString
		errDetail  sql.NullString
		status     string
		updatedRaw string
	)
	if err := sc.Scan(&rec.RunID, &rec.Title, &rec.SourceURL, &rec.LocalPath,
		&rawText, &summary, &status, &errDetail, &updatedRaw); err != nil {
		return nil, err
	}
	rec.RawText = rawText.String
	rec.Summary = summary.String
	rec.ErrorDetail = errDetail.String
	rec.Status = types.Status(status)
	if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// nullable maps "" to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
