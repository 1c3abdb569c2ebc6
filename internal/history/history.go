// Package history persists finished contract runs and lists recent ones.
package history

import (
	"context"
	"time"

	"okucheck/internal/contract"
)

// Limits for Recent
const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// RunSummary is one stored run without its per-case detail.
type RunSummary struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	BaseURL     string    `json:"base_url" yaml:"base_url"`
	Suite       string    `json:"suite" yaml:"suite"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	DurationMS  float64   `json:"duration_ms" yaml:"duration_ms"`
	Total       int       `json:"total" yaml:"total"`
	Passed      int       `json:"passed" yaml:"passed"`
	Failed      int       `json:"failed" yaml:"failed"`
	SuccessRate float64   `json:"success_rate" yaml:"success_rate"`
	// FailedCases lists failed case names in step order
	FailedCases []string `json:"failed_cases,omitempty" yaml:"failed_cases,omitempty"`
}

// Store persists run reports.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a finalized report. Saving the same run id twice is a no-op.
	Save(ctx context.Context, report *contract.RunReport) error

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]RunSummary, error)

	// Close releases store resources; the underlying connection is closed by its owner.
	Close() error
}

// NoopStore is used when history is disabled.
type NoopStore struct{}

func (NoopStore) Save(context.Context, *contract.RunReport) error { return nil }

func (NoopStore) Recent(context.Context, int) ([]RunSummary, error) { return []RunSummary{}, nil }

func (NoopStore) Close() error { return nil }

// clampLimit defaults non-positive limits and caps large ones.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// retentionCutoff returns the oldest start time to keep, or zero when retention is off.
func retentionCutoff(retentionDays int, now time.Time) time.Time {
	if retentionDays <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -retentionDays).UTC()
}
