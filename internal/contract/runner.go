package contract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"okucheck/config"
	"okucheck/internal/apiclient"
)

// Caller sends one request and reads the whole response.
type Caller interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
	Curl(req apiclient.Request) string
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers fn to be called after each case is recorded.
func WithObserver(fn func(*TestCase)) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, fn)
	}
}

// WithSuite labels the report with suite.
func WithSuite(suite string) Option {
	return func(r *Runner) {
		r.suite = suite
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner executes a scenario table in order against one base URL.
type Runner struct {
	client    Caller
	baseURL   string
	steps     []Step
	suite     string
	observers []func(*TestCase)
	now       func() time.Time
}

// NewRunner creates a runner for steps.
func NewRunner(client *apiclient.Client, steps []Step, opts ...Option) *Runner {
	r := newRunner(client, steps, opts...)
	r.baseURL = client.BaseURL()
	return r
}

func newRunner(client Caller, steps []Step, opts ...Option) *Runner {
	r := &Runner{
		client: client,
		steps:  uniqueNames(steps),
		suite:  config.SuiteFull,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step sequentially and returns the finalized report.
// Individual failures are recorded on their case; Run itself never fails.
func (r *Runner) Run(ctx context.Context) *RunReport {
	report := NewRunReport(uuid.NewString(), r.baseURL, r.suite, r.now())
	slog.Info("starting contract run", "run_id", report.RunID, "base_url", r.baseURL, "suite", r.suite, "steps", len(r.steps))

	session := NewSession()
	for i, step := range r.steps {
		var tc *TestCase
		tc, session = r.execute(ctx, i+1, step, session)

		if err := report.Add(tc); err != nil {
			// Every executed step stays counted, even one Add refuses.
			slog.Error("failed to record case", "case", tc.Name, "error", err)
			tc = rejectedCase(tc, i+1, err)
			if err := report.Add(tc); err != nil {
				slog.Error("failed to record rejected case", "case", tc.Name, "error", err)
				continue
			}
		}
		for _, fn := range r.observers {
			fn(tc)
		}
	}

	report.Finalize(r.now())
	slog.Info("contract run finished",
		"run_id", report.RunID,
		"total", report.Total,
		"passed", report.Passed,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report
}

// execute runs one step and returns its case and the next session.
// The session only changes when the step passes.
func (r *Runner) execute(ctx context.Context, n int, step Step, session Session) (tc *TestCase, next Session) {
	tc = &TestCase{
		Step:           n,
		Name:           step.Name,
		ExpectedStatus: step.Expect,
	}
	next = session

	defer func() {
		if p := recover(); p != nil {
			slog.Error("step panicked", "case", step.Name, "panic", p)
			next = session
			if tc.Outcome == "" {
				_ = tc.fail(assertionf("step panicked: %v", p))
			}
		}
	}()

	if step.Requires != nil {
		if err := step.Requires(session); err != nil {
			_ = tc.fail(err)
			return tc, session
		}
	}

	req := step.Request(session)
	tc.Method = req.Method
	tc.Path = req.Path

	start := r.now()
	resp, err := r.client.Do(ctx, req)
	if err != nil {
		tc.setDuration(r.now().Sub(start))
		tc.Curl = r.client.Curl(req)
		_ = tc.fail(transportError(err))
		return tc, session
	}
	tc.StatusCode = resp.StatusCode
	tc.setDuration(resp.Duration)
	tc.Fingerprint = strconv.FormatUint(resp.Fingerprint, 16)

	msg, err := step.check(session, resp)
	if err != nil {
		tc.Curl = r.client.Curl(req)
		_ = tc.fail(err)
		return tc, session
	}
	if step.Capture != nil {
		next = step.Capture(session, resp)
	}
	_ = tc.pass(msg)
	return tc, next
}

// uniqueNames returns steps with repeated names suffixed, so "same" and
// "same" become "same" and "same (2)".
func uniqueNames(steps []Step) []Step {
	seen := make(map[string]int, len(steps))
	out := make([]Step, len(steps))
	for i, step := range steps {
		name := step.Name
		for n := 2; seen[name] > 0; n++ {
			name = fmt.Sprintf("%s (%d)", step.Name, n)
		}
		if name != step.Name {
			slog.Warn("duplicate step name", "case", step.Name, "renamed", name)
			step.Name = name
		}
		seen[name]++
		out[i] = step
	}
	return out
}

// rejectedCase replaces a case the report refused with a failed copy
// under a name that cannot collide.
func rejectedCase(tc *TestCase, n int, cause error) *TestCase {
	failed := *tc
	failed.Name = fmt.Sprintf("%s (#%d)", tc.Name, n)
	failed.Outcome = ""
	_ = failed.fail(assertionf("case not recorded: %v", cause))
	return &failed
}

func (tc *TestCase) setDuration(d time.Duration) {
	tc.Duration = d
	tc.DurationMS = float64(d.Microseconds()) / 1000
}

// String renders the case as a single report line.
func (tc *TestCase) String() string {
	status := "PASS"
	if !tc.Passed() {
		status = "FAIL"
	}
	return fmt.Sprintf("%s %s: %s", status, tc.Name, tc.Message)
}
