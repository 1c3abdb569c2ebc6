// Package metrics exports run results in the Prometheus text format so a
// node_exporter textfile collector can scrape the latest run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"okucheck/internal/contract"
)

const namespace = "okucheck"

// Recorder holds the run metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	cases        *prometheus.CounterVec
	caseDuration *prometheus.GaugeVec
	successRatio prometheus.Gauge
	lastRun      prometheus.Gauge
}

// NewRecorder registers the run metrics.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_total",
			Help:      "Contract cases executed, by outcome",
		}, []string{"outcome"}),
		caseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "case_duration_seconds",
			Help:      "Wall time of each case in the last run",
		}, []string{"case"}),
		successRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success_ratio",
			Help:      "Passed cases over total cases in the last run",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	r.registry.MustRegister(r.cases, r.caseDuration, r.successRatio, r.lastRun)

	// both outcomes are always exported so rate() queries see zeros
	r.cases.WithLabelValues(string(contract.OutcomePass))
	r.cases.WithLabelValues(string(contract.OutcomeFail))
	return r
}

// Case records one finished case. It is usable as a runner observer.
func (r *Recorder) Case(tc *contract.TestCase) {
	r.cases.WithLabelValues(string(tc.Outcome)).Inc()
	r.caseDuration.WithLabelValues(tc.Name).Set(tc.Duration.Seconds())
}

// Run records the run totals.
func (r *Recorder) Run(report *contract.RunReport) {
	r.successRatio.Set(report.SuccessRate / 100)
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = report.StartedAt
	}
	r.lastRun.Set(float64(finished.UnixNano()) / 1e9)
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
