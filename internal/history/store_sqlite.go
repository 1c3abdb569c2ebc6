package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"okucheck/internal/contract"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
}

// NewSQLiteStore creates the runs and cases tables if they don't exist.
func NewSQLiteStore(ctx context.Context, db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			base_url TEXT NOT NULL,
			suite TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			duration_ms REAL NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			passed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			success_rate REAL NOT NULL DEFAULT 0,
			report JSON
		)`,
		`CREATE TABLE IF NOT EXISTS cases (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			step INTEGER NOT NULL,
			name TEXT NOT NULL,
			outcome TEXT NOT NULL,
			failure_kind TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms REAL NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, step)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create history tables: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)",
		"CREATE INDEX IF NOT EXISTS idx_cases_name ON cases(name)",
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	return &SQLiteStore{db: db, retentionDays: retentionDays}, nil
}

// Save writes the run and its cases in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, r *contract.RunReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO runs (run_id, base_url, suite, started_at, finished_at, duration_ms,
			total, passed, failed, success_rate, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.BaseURL, r.Suite,
		r.StartedAt.UTC().Format(sqliteTimeLayout), r.FinishedAt.UTC().Format(sqliteTimeLayout),
		r.DurationMS, r.Total, r.Passed, r.Failed, r.SuccessRate, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, tc := range r.Cases {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cases (run_id, step, name, outcome, failure_kind, status_code, duration_ms, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, tc.Step, tc.Name, string(tc.Outcome), string(tc.FailureKind), tc.StatusCode, tc.DurationMS, tc.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert case %q: %w", tc.Name, err)
		}
	}

	if cutoff := retentionCutoff(s.retentionDays, time.Now()); !cutoff.IsZero() {
		old := cutoff.Format(sqliteTimeLayout)
		if _, err := tx.ExecContext(ctx, `DELETE FROM cases WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < ?)`, old); err != nil {
			return fmt.Errorf("failed to prune cases: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, old); err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", r.RunID, err)
	}
	return nil
}

// Recent returns the newest runs first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.base_url, r.suite, r.started_at, r.duration_ms,
			r.total, r.passed, r.failed, r.success_rate,
			COALESCE((SELECT group_concat(name, char(10)) FROM
				(SELECT name FROM cases c WHERE c.run_id = r.run_id AND c.outcome = 'fail' ORDER BY c.step)), '')
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	result := make([]RunSummary, 0)
	for rows.Next() {
		var rs RunSummary
		var startedAt, failed string
		if err := rows.Scan(&rs.RunID, &rs.BaseURL, &rs.Suite, &startedAt, &rs.DurationMS,
			&rs.Total, &rs.Passed, &rs.Failed, &rs.SuccessRate, &failed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if rs.StartedAt, err = time.Parse(sqliteTimeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
		}
		if failed != "" {
			rs.FailedCases = strings.Split(failed, "\n")
		}
		result = append(result, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return result, nil
}

// Close is a no-op; the connection belongs to the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
