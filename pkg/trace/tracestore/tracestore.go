// Package tracestore indexes terminal verdicts in a local SQLite database so
// runs can be queried after the NDJSON streams are archived.
package tracestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
)

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
    id           TEXT PRIMARY KEY,
    run_id       TEXT NOT NULL,
    target       TEXT NOT NULL,
    status       TEXT NOT NULL,
    blame        TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL,
    fingerprint  TEXT NOT NULL DEFAULT '',
    recorded_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id);
`

// Store persists verdict rows.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the index at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tracestore: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tracestore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; the caller owns migration. Used by
// tests that substitute a mock driver.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one verdict row for a run.
func (s *Store) Record(ctx context.Context, runID string, result *contracts.TestResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verdicts (id, run_id, target, status, blame, duration_ms, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		runID,
		result.Target.String(),
		string(result.Status),
		string(result.Blame),
		result.Duration.Milliseconds(),
		result.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("tracestore: record verdict: %w", err)
	}
	return nil
}

// CountByStatus aggregates a run's verdicts by status.
func (s *Store) CountByStatus(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM verdicts WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("tracestore: count: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("tracestore: scan: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
