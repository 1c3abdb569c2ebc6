package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"okucheck/internal/contract"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
}

// NewPostgreSQLStore creates the runs and cases tables if they don't exist.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id UUID PRIMARY KEY,
			base_url TEXT NOT NULL,
			suite TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			passed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			report JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS cases (
			run_id UUID NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			step INTEGER NOT NULL,
			name TEXT NOT NULL,
			outcome TEXT NOT NULL,
			failure_kind TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, step)
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create history tables: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)",
		"CREATE INDEX IF NOT EXISTS idx_cases_name ON cases(name)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	return &PostgreSQLStore{pool: pool, retentionDays: retentionDays}, nil
}

// Save writes the run and its cases in one transaction.
func (s *PostgreSQLStore) Save(ctx context.Context, r *contract.RunReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO runs (run_id, base_url, suite, started_at, finished_at, duration_ms,
			total, passed, failed, success_rate, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO NOTHING`,
		r.RunID, r.BaseURL, r.Suite, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.DurationMS,
		r.Total, r.Passed, r.Failed, r.SuccessRate, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tc := range r.Cases {
		batch.Queue(`
			INSERT INTO cases (run_id, step, name, outcome, failure_kind, status_code, duration_ms, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.RunID, tc.Step, tc.Name, string(tc.Outcome), string(tc.FailureKind), tc.StatusCode, tc.DurationMS, tc.Message,
		)
	}
	if cutoff := retentionCutoff(s.retentionDays, time.Now()); !cutoff.IsZero() {
		batch.Queue(`DELETE FROM runs WHERE started_at < $1`, cutoff)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert cases for run %s: %w", r.RunID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", r.RunID, err)
	}
	return nil
}

// Recent returns the newest runs first.
func (s *PostgreSQLStore) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.run_id::text, r.base_url, r.suite, r.started_at, r.duration_ms,
			r.total, r.passed, r.failed, r.success_rate,
			COALESCE((SELECT array_agg(c.name ORDER BY c.step) FROM cases c
				WHERE c.run_id = r.run_id AND c.outcome = 'fail'), '{}')
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	result := make([]RunSummary, 0)
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.RunID, &rs.BaseURL, &rs.Suite, &rs.StartedAt, &rs.DurationMS,
			&rs.Total, &rs.Passed, &rs.Failed, &rs.SuccessRate, &rs.FailedCases); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if len(rs.FailedCases) == 0 {
			rs.FailedCases = nil
		}
		result = append(result, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return result, nil
}

// Close is a no-op; the pool belongs to the storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
