package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"okucheck/config"
	"okucheck/internal/apiclient"
	"okucheck/internal/baseline"
	"okucheck/internal/contract"
	"okucheck/internal/history"
	"okucheck/internal/httpclient"
	"okucheck/internal/metrics"
	"okucheck/internal/report"
)

// errChecksFailed signals exit code 1 after the report has been printed.
var errChecksFailed = errors.New("contract checks failed")

// infraTimeout bounds history, baseline and metrics work after the run,
// which still happens when the run itself was interrupted.
const infraTimeout = 30 * time.Second

type runFlags struct {
	baseURL string
	timeout time.Duration
	suite   string
	format  string
	output  string
	excel   string
	origin  string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.baseURL, "base-url", config.DefaultBaseURL, "transport API base URL")
	fs.DurationVar(&f.timeout, "timeout", config.DefaultTimeout, "per-request timeout")
	fs.StringVar(&f.suite, "suite", config.SuiteFull, "scenario suite: core or full")
	fs.StringVar(&f.format, "format", config.FormatText, "report format: text, json or yaml")
	fs.StringVarP(&f.output, "output", "o", "", "write the report to this file instead of stdout")
	fs.StringVar(&f.excel, "excel", "", "also append the run to this .xlsx workbook")
	fs.StringVar(&f.origin, "origin", config.DefaultOrigin, "Origin sent with the CORS preflight")
}

// apply copies explicitly set flags over cfg. Unset flags keep file and env values.
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("base-url") {
		cfg.Target.BaseURL = f.baseURL
	}
	if fs.Changed("timeout") {
		cfg.Target.Timeout = f.timeout
	}
	if fs.Changed("suite") {
		cfg.Run.Suite = f.suite
	}
	if fs.Changed("format") {
		cfg.Report.Format = f.format
	}
	if fs.Changed("output") {
		cfg.Report.Output = f.output
	}
	if fs.Changed("excel") {
		cfg.Report.ExcelPath = f.excel
	}
	if fs.Changed("origin") {
		cfg.Target.Origin = f.origin
	}
}

func newRunCommand(c *cli) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the contract checks against a live API",
		Example: `  okucheck run
  okucheck run --base-url http://staging:8001 --suite core
  okucheck run --format json --output reports/run.json --excel reports/runs.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd.Flags(), c.cfg)
			if err := c.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			r := runChecks(cmd.Context(), c.cfg, c.out, !color.NoColor)
			if !r.OK() {
				return errChecksFailed
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// runChecks executes the configured suite, renders the report and feeds the
// history, baseline and metrics sinks. Sink failures are logged only.
func runChecks(ctx context.Context, cfg *config.Config, out io.Writer, colored bool) *contract.RunReport {
	client := apiclient.New(cfg.Target.BaseURL, httpclient.NewHTTPClient(httpclient.DefaultConfig(cfg.Target.Timeout)))
	fixture := contract.NewFixture(time.Now(), cfg.Target.Origin)

	opts := []contract.Option{contract.WithSuite(cfg.Run.Suite)}

	// text to stdout streams cases as they finish
	live := cfg.Report.Format == config.FormatText && cfg.Report.Output == ""
	var console *report.Console
	if live {
		console = report.NewConsole(out, colored)
		opts = append(opts, contract.WithObserver(console.Case))
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.TextfilePath != "" {
		recorder = metrics.NewRecorder()
		opts = append(opts, contract.WithObserver(recorder.Case))
	}

	r := contract.NewRunner(client, contract.Catalog(fixture, cfg.Run.Suite), opts...).Run(ctx)

	infraCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), infraTimeout)
	defer cancel()

	compareBaseline(infraCtx, cfg.Baseline, r)

	if live {
		console.Summary(r)
	} else {
		renderReport(cfg.Report, out, r, colored)
	}

	if cfg.Report.ExcelPath != "" {
		if err := report.WriteExcel(cfg.Report.ExcelPath, r); err != nil {
			slog.Error("failed to write excel report", "path", cfg.Report.ExcelPath, "error", err)
		} else {
			slog.Info("excel report written", "path", cfg.Report.ExcelPath)
		}
	}

	saveHistory(infraCtx, cfg, r)

	if recorder != nil {
		recorder.Run(r)
		if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			slog.Error("failed to write metrics", "path", cfg.Metrics.TextfilePath, "error", err)
		}
	}

	return r
}

func renderReport(cfg config.ReportConfig, out io.Writer, r *contract.RunReport, colored bool) {
	if cfg.Output == "" {
		if err := report.Write(out, cfg.Format, r, colored); err != nil {
			slog.Error("failed to render report", "format", cfg.Format, "error", err)
		}
		return
	}
	if err := report.WriteFile(cfg.Output, cfg.Format, r); err != nil {
		slog.Error("failed to write report", "path", cfg.Output, "error", err)
		return
	}
	slog.Info("report written", "path", cfg.Output, "format", cfg.Format)
	if cfg.Format != config.FormatText {
		report.NewConsole(out, colored).Summary(r)
	}
}

// compareBaseline fills r.Regressions from the stored snapshot, then stores r as the new baseline.
func compareBaseline(ctx context.Context, cfg config.BaselineConfig, r *contract.RunReport) {
	store, err := baseline.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to open baseline", "type", cfg.Type, "error", err)
		return
	}
	if store == nil {
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close baseline", "error", err)
		}
	}()

	prev, err := store.Get(ctx)
	if err != nil {
		slog.Error("failed to read baseline", "error", err)
	} else {
		r.Regressions = baseline.Regressions(prev, r)
		if len(r.Regressions) > 0 {
			slog.Warn("regressions since previous run", "previous_run_id", prev.RunID, "cases", r.Regressions)
		}
	}

	if err := store.Set(ctx, baseline.FromReport(r)); err != nil {
		slog.Error("failed to update baseline", "error", err)
	}
}

func saveHistory(ctx context.Context, cfg *config.Config, r *contract.RunReport) {
	if !cfg.History.Enabled {
		return
	}
	res, err := history.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to open run history", "type", cfg.History.Type, "error", err)
		return
	}
	defer func() {
		if err := res.Close(); err != nil {
			slog.Warn("failed to close run history", "error", err)
		}
	}()

	if err := res.Store.Save(ctx, r); err != nil {
		slog.Error("failed to save run history", "run_id", r.RunID, "error", err)
		return
	}
	slog.Debug("run saved to history", "run_id", r.RunID, "type", cfg.History.Type)
}
