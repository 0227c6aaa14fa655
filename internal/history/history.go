// Package history appends one row per compiler invocation to a local
// sqlite-backed log: run UUID, source path, timestamp, diagnostic counts
// by class, and exit code. The log is write-only from the compiler's
// perspective — nothing in internal/compilerconfig or cmd/minilax ever
// reads it back during a compile; this compiler has no incremental
// recompilation to feed, and this store does not change that.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"minilax/internal/diag"
)

// Store wraps the history database handle.
type Store struct {
	db *sql.DB
}

// Open creates (if absent) and opens the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	source_path TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	notices     INTEGER NOT NULL,
	comments    INTEGER NOT NULL,
	warnings    INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	fatals      INTEGER NOT NULL,
	aborts      INTEGER NOT NULL,
	exit_code   INTEGER NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Record is one compile-history row.
type Record struct {
	RunID      string
	SourcePath string
	StartedAt  time.Time
	ExitCode   int
	Records    []diag.Record
}

// Append writes one row summarizing a completed invocation.
func (s *Store) Append(r Record) error {
	var counts [6]int
	for _, rec := range r.Records {
		counts[rec.Class]++
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, source_path, started_at, notices, comments, warnings, errors, fatals, aborts, exit_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SourcePath, r.StartedAt.Format(time.RFC3339),
		counts[diag.Notice], counts[diag.Comment], counts[diag.Warning],
		counts[diag.Error], counts[diag.Fatal], counts[diag.Abort],
		r.ExitCode,
	)
	if err != nil {
		return fmt.Errorf("append history row: %w", err)
	}
	return nil
}

// Row is one row returned by Recent.
type Row struct {
	RunID      string
	SourcePath string
	StartedAt  string
	Notices    int
	Comments   int
	Warnings   int
	Errors     int
	Fatals     int
	Aborts     int
	ExitCode   int
}

// Recent returns the most recent n rows, newest first.
func (s *Store) Recent(n int) ([]Row, error) {
	rows, err := s.db.Query(
		`SELECT run_id, source_path, started_at, notices, comments, warnings, errors, fatals, aborts, exit_code
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RunID, &r.SourcePath, &r.StartedAt,
			&r.Notices, &r.Comments, &r.Warnings, &r.Errors, &r.Fatals, &r.Aborts, &r.ExitCode); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
