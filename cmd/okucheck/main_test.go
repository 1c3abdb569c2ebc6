package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okucheck/config"
	"okucheck/internal/baseline"
	"okucheck/internal/contract"
	"okucheck/internal/history"
	"okucheck/internal/mockapi"
)

func mockURL(t *testing.T, cfg *mockapi.Config) string {
	t.Helper()
	srv := httptest.NewServer(mockapi.New(cfg))
	t.Cleanup(srv.Close)
	return srv.URL
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Target.BaseURL = baseURL
	cfg.Target.Timeout = 2 * time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunChecks_TextStreamsCases(t *testing.T) {
	cfg := testConfig(t, mockURL(t, nil))
	cfg.Run.Suite = config.SuiteCore

	var out bytes.Buffer
	r := runChecks(context.Background(), cfg, &out, false)

	assert.True(t, r.OK())
	assert.Equal(t, 14, r.Total)
	assert.Contains(t, out.String(), "✓ PASS Server Health Check")
	assert.Contains(t, out.String(), "Total Tests:  14")
	assert.Contains(t, out.String(), "All tests passed!")
}

func TestRunChecks_JSONToStdout(t *testing.T) {
	cfg := testConfig(t, mockURL(t, nil))
	cfg.Report.Format = config.FormatJSON

	var out bytes.Buffer
	r := runChecks(context.Background(), cfg, &out, false)

	var decoded contract.RunReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	assert.Equal(t, 25, decoded.Total)
	assert.Equal(t, 25, decoded.Passed)
}

func TestRunChecks_Sinks(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, mockURL(t, nil))
	cfg.Run.Suite = config.SuiteCore
	cfg.Report.Format = config.FormatYAML
	cfg.Report.Output = filepath.Join(dir, "reports", "run.yaml")
	cfg.Report.ExcelPath = filepath.Join(dir, "reports", "runs.xlsx")
	cfg.Metrics.TextfilePath = filepath.Join(dir, "metrics", "okucheck.prom")
	cfg.Baseline.Type = config.BaselineFile
	cfg.Baseline.Path = filepath.Join(dir, "baseline.json")
	cfg.History.Enabled = true
	cfg.History.SQLite.Path = filepath.Join(dir, "history.db")

	var out bytes.Buffer
	r := runChecks(context.Background(), cfg, &out, false)
	require.True(t, r.OK())

	for _, path := range []string{cfg.Report.Output, cfg.Report.ExcelPath, cfg.Metrics.TextfilePath, cfg.Baseline.Path} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
	assert.Contains(t, out.String(), "TEST SUMMARY", "summary still printed when the report goes to a file")

	snap, err := baseline.NewFileStore(cfg.Baseline.Path).Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, r.RunID, snap.RunID)

	res, err := history.New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = res.Close() }()
	runs, err := res.Store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, r.RunID, runs[0].RunID)
}

func TestRunChecks_Regressions(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, mockURL(t, nil))
	cfg.Run.Suite = config.SuiteCore
	cfg.Baseline.Type = config.BaselineFile
	cfg.Baseline.Path = filepath.Join(dir, "baseline.json")

	first := runChecks(context.Background(), cfg, &bytes.Buffer{}, false)
	require.True(t, first.OK())

	cfg.Target.BaseURL = deadURL(t)
	var out bytes.Buffer
	second := runChecks(context.Background(), cfg, &out, false)

	assert.False(t, second.OK())
	assert.Len(t, second.Regressions, 14)
	assert.Equal(t, "Server Health Check", second.Regressions[0])
	assert.Contains(t, out.String(), "Regressions:  Server Health Check")
}

func TestRunChecks_BrokenSinksDoNotChangeOutcome(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	cfg := testConfig(t, mockURL(t, nil))
	cfg.Run.Suite = config.SuiteCore
	cfg.Report.ExcelPath = filepath.Join(blocker, "runs.xlsx")
	cfg.Metrics.TextfilePath = filepath.Join(blocker, "okucheck.prom")
	cfg.Baseline.Type = config.BaselineFile
	cfg.Baseline.Path = filepath.Join(blocker, "baseline.json")

	r := runChecks(context.Background(), cfg, &bytes.Buffer{}, false)
	assert.True(t, r.OK())
}

func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	return url
}

func TestRootCommand_Run(t *testing.T) {
	base := mockURL(t, nil)

	tests := []struct {
		name    string
		args    []string
		wantErr error
		check   func(t *testing.T, out string)
	}{
		{
			name: "passing core suite",
			args: []string{"run", "--base-url", base, "--suite", "core", "--format", "json"},
			check: func(t *testing.T, out string) {
				var r contract.RunReport
				require.NoError(t, json.Unmarshal([]byte(out), &r))
				assert.Equal(t, "core", r.Suite)
				assert.Equal(t, 14, r.Total)
			},
		},
		{
			name:    "failing run",
			args:    []string{"run", "--base-url", deadURL(t), "--suite", "core", "--timeout", "1s"},
			wantErr: errChecksFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRootCommand(&out)
			cmd.SetArgs(tt.args)

			err := cmd.ExecuteContext(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, out.String())
			}
		})
	}
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	for _, args := range [][]string{
		{"run", "--suite", "everything"},
		{"run", "--format", "xml"},
		{"run", "--base-url", "localhost:8001"},
	} {
		cmd := newRootCommand(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.ExecuteContext(context.Background())
		require.Error(t, err, args)
		assert.NotErrorIs(t, err, errChecksFailed)
		assert.Contains(t, err.Error(), "invalid configuration")
	}
}

func TestRootCommand_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "okucheck dev")
}

func TestRunFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Target.BaseURL = "http://from-env:9000"
	cfg.Run.Suite = config.SuiteCore

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags := &runFlags{}
	flags.register(fs)
	require.NoError(t, fs.Parse([]string{"--timeout", "750ms", "--format", "yaml"}))
	flags.apply(fs, cfg)

	assert.Equal(t, "http://from-env:9000", cfg.Target.BaseURL)
	assert.Equal(t, config.SuiteCore, cfg.Run.Suite)
	assert.Equal(t, 750*time.Millisecond, cfg.Target.Timeout)
	assert.Equal(t, config.FormatYAML, cfg.Report.Format)
	assert.Equal(t, config.DefaultOrigin, cfg.Target.Origin)
}

func TestWriteHistory(t *testing.T) {
	runs := []history.RunSummary{{
		RunID:       "r1",
		BaseURL:     "http://localhost:8001",
		Suite:       "full",
		StartedAt:   time.Date(2026, 3, 2, 8, 30, 0, 0, time.Local),
		DurationMS:  1234,
		Total:       25,
		Passed:      24,
		Failed:      1,
		SuccessRate: 96,
		FailedCases: []string{"CORS Configuration"},
	}}

	var text bytes.Buffer
	require.NoError(t, writeHistory(&text, config.FormatText, runs))
	assert.Contains(t, text.String(), "FAILED CASES")
	assert.Contains(t, text.String(), "2026-03-02 08:30:00")
	assert.Contains(t, text.String(), "96.0%")
	assert.Contains(t, text.String(), "CORS Configuration")

	var js bytes.Buffer
	require.NoError(t, writeHistory(&js, config.FormatJSON, runs))
	var decoded []history.RunSummary
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "r1", decoded[0].RunID)

	var empty bytes.Buffer
	require.NoError(t, writeHistory(&empty, config.FormatText, nil))
	assert.Equal(t, "no runs recorded\n", empty.String())

	assert.Error(t, writeHistory(&bytes.Buffer{}, "csv", runs))
}
