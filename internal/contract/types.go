// Package contract runs an ordered table of HTTP contract checks against the
// transport API and aggregates their outcomes into a RunReport.
package contract

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the result of a single check.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
)

// FailureKind classifies why a check failed.
type FailureKind string

const (
	// KindTransport covers timeouts, refused connections, DNS failures and unparseable bodies
	KindTransport FailureKind = "transport"
	// KindAssertion covers unexpected status codes and missing fields
	KindAssertion FailureKind = "assertion"
	// KindPrecondition means earlier state was missing and no call was issued
	KindPrecondition FailureKind = "precondition"
)

// ErrOutcomeRecorded is returned when an outcome is recorded twice.
var ErrOutcomeRecorded = errors.New("outcome already recorded")

// StepError is a failed check with its classification.
type StepError struct {
	Kind    FailureKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *StepError) Unwrap() error {
	return e.Err
}

func assertionf(format string, args ...any) *StepError {
	return &StepError{Kind: KindAssertion, Message: fmt.Sprintf(format, args...)}
}

func preconditionf(format string, args ...any) *StepError {
	return &StepError{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

func transportError(err error) *StepError {
	return &StepError{Kind: KindTransport, Message: err.Error(), Err: err}
}

// TestCase is one executed check.
type TestCase struct {
	Step           int           `json:"step" yaml:"step"`
	Name           string        `json:"name" yaml:"name"`
	Method         string        `json:"method,omitempty" yaml:"method,omitempty"`
	Path           string        `json:"path,omitempty" yaml:"path,omitempty"`
	ExpectedStatus []int         `json:"expected_status,omitempty" yaml:"expected_status,omitempty"`
	Outcome        Outcome       `json:"outcome" yaml:"outcome"`
	Message        string        `json:"message" yaml:"message"`
	FailureKind    FailureKind   `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	StatusCode     int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Duration       time.Duration `json:"-" yaml:"-"`
	DurationMS     float64       `json:"duration_ms" yaml:"duration_ms"`
	Fingerprint    string        `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Curl           string        `json:"curl,omitempty" yaml:"curl,omitempty"`
}

// Passed reports whether the case passed.
func (tc *TestCase) Passed() bool {
	return tc.Outcome == OutcomePass
}

// pass records a passing outcome.
func (tc *TestCase) pass(message string) error {
	return tc.record(OutcomePass, message, "")
}

// fail records a failing outcome from err.
func (tc *TestCase) fail(err error) error {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return tc.record(OutcomeFail, stepErr.Message, stepErr.Kind)
	}
	return tc.record(OutcomeFail, err.Error(), KindAssertion)
}

func (tc *TestCase) record(outcome Outcome, message string, kind FailureKind) error {
	if tc.Outcome != "" {
		return fmt.Errorf("%s: %w", tc.Name, ErrOutcomeRecorded)
	}
	tc.Outcome = outcome
	tc.Message = message
	tc.FailureKind = kind
	return nil
}

// RunReport aggregates the outcomes of one run in execution order.
type RunReport struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Suite       string        `json:"suite" yaml:"suite"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration    time.Duration `json:"-" yaml:"-"`
	DurationMS  float64       `json:"duration_ms" yaml:"duration_ms"`
	Total       int           `json:"total" yaml:"total"`
	Passed      int           `json:"passed" yaml:"passed"`
	Failed      int           `json:"failed" yaml:"failed"`
	SuccessRate float64       `json:"success_rate" yaml:"success_rate"`
	Cases       []*TestCase   `json:"cases" yaml:"cases"`
	Regressions []string      `json:"regressions,omitempty" yaml:"regressions,omitempty"`

	names map[string]struct{}
}

// NewRunReport starts an empty report.
func NewRunReport(runID, baseURL, suite string, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		BaseURL:   baseURL,
		Suite:     suite,
		StartedAt: startedAt,
		Cases:     make([]*TestCase, 0),
		names:     make(map[string]struct{}),
	}
}

// Add appends a finished case. Cases without an outcome and duplicate names are rejected,
// which keeps Total == Passed + Failed == len(Cases).
func (r *RunReport) Add(tc *TestCase) error {
	if tc.Outcome != OutcomePass && tc.Outcome != OutcomeFail {
		return fmt.Errorf("case %q has no outcome", tc.Name)
	}
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, dup := r.names[tc.Name]; dup {
		return fmt.Errorf("duplicate case name %q", tc.Name)
	}
	r.names[tc.Name] = struct{}{}

	r.Cases = append(r.Cases, tc)
	r.Total++
	if tc.Passed() {
		r.Passed++
	} else {
		r.Failed++
	}
	r.SuccessRate = r.rate()
	return nil
}

// Finalize stamps the finish time.
func (r *RunReport) Finalize(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	r.Duration = finishedAt.Sub(r.StartedAt)
	r.DurationMS = float64(r.Duration.Microseconds()) / 1000
	r.SuccessRate = r.rate()
}

// OK reports whether every case passed.
func (r *RunReport) OK() bool {
	return r.Failed == 0
}

// Failures returns the failed cases in execution order.
func (r *RunReport) Failures() []*TestCase {
	var out []*TestCase
	for _, tc := range r.Cases {
		if !tc.Passed() {
			out = append(out, tc)
		}
	}
	return out
}

// rate is the pass percentage; an empty run is 0.
func (r *RunReport) rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total) * 100
}
