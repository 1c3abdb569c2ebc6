// Package baseline keeps the previous run's per-case outcomes so a new run can
// report regressions. Supports a local JSON file and Redis for shared CI runners.
package baseline

import (
	"context"
	"time"

	"okucheck/internal/contract"
)

// Snapshot is the stored outcome of one run.
type Snapshot struct {
	RunID     string                      `json:"run_id"`
	BaseURL   string                      `json:"base_url"`
	Suite     string                      `json:"suite"`
	UpdatedAt time.Time                   `json:"updated_at"`
	Outcomes  map[string]contract.Outcome `json:"outcomes"`
}

// Store defines the interface for baseline storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the last stored snapshot.
	// Returns nil, nil if nothing has been stored yet.
	Get(ctx context.Context) (*Snapshot, error)

	// Set replaces the stored snapshot.
	Set(ctx context.Context, snap *Snapshot) error

	// Close releases any resources held by the store.
	Close() error
}

// FromReport captures the outcomes of r.
func FromReport(r *contract.RunReport) *Snapshot {
	snap := &Snapshot{
		RunID:     r.RunID,
		BaseURL:   r.BaseURL,
		Suite:     r.Suite,
		UpdatedAt: r.FinishedAt,
		Outcomes:  make(map[string]contract.Outcome, len(r.Cases)),
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = r.StartedAt
	}
	for _, tc := range r.Cases {
		snap.Outcomes[tc.Name] = tc.Outcome
	}
	return snap
}

// Regressions returns the names of cases that passed in prev and fail in r, in r's order.
// A nil prev has no regressions.
func Regressions(prev *Snapshot, r *contract.RunReport) []string {
	if prev == nil {
		return nil
	}
	var out []string
	for _, tc := range r.Cases {
		if !tc.Passed() && prev.Outcomes[tc.Name] == contract.OutcomePass {
			out = append(out, tc.Name)
		}
	}
	return out
}
