package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideEnvKeys = []string{
	"OKUCHECK_CONFIG", "OKUCHECK_BASE_URL", "BASE_URL", "OKUCHECK_ORIGIN", "OKUCHECK_SUITE",
	"OKUCHECK_FORMAT", "OKUCHECK_OUTPUT", "OKUCHECK_EXCEL_PATH", "OKUCHECK_TIMEOUT", "HTTP_TIMEOUT",
	"STORAGE_TYPE", "SQLITE_PATH", "POSTGRES_URL", "POSTGRES_MAX_CONNS", "MONGODB_URL",
	"MONGODB_DATABASE", "HISTORY_ENABLED", "HISTORY_RETENTION_DAYS", "BASELINE_TYPE", "BASELINE_PATH", "BASELINE_TTL",
	"REDIS_URL", "BASELINE_REDIS_KEY", "METRICS_TEXTFILE", "LOG_FORMAT", "LOG_LEVEL",
}

// clearEnv blanks every variable Load looks at; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range overrideEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8001", cfg.Target.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Target.Timeout)
	assert.Equal(t, "http://localhost:3000", cfg.Target.Origin)
	assert.Equal(t, SuiteFull, cfg.Run.Suite)
	assert.Equal(t, FormatText, cfg.Report.Format)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, StorageSQLite, cfg.History.Type)
	assert.Empty(t, cfg.Baseline.Type)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "base URL",
			envVars: map[string]string{"OKUCHECK_BASE_URL": "http://staging:9000"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "http://staging:9000", cfg.Target.BaseURL)
			},
		},
		{
			name:    "prefixed base URL wins over bare BASE_URL",
			envVars: map[string]string{"OKUCHECK_BASE_URL": "http://a:1", "BASE_URL": "http://b:2"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "http://a:1", cfg.Target.BaseURL)
			},
		},
		{
			name:    "timeout as integer seconds",
			envVars: map[string]string{"HTTP_TIMEOUT": "12"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 12*time.Second, cfg.Target.Timeout)
			},
		},
		{
			name:    "timeout as duration string",
			envVars: map[string]string{"OKUCHECK_TIMEOUT": "750ms"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 750*time.Millisecond, cfg.Target.Timeout)
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"HISTORY_ENABLED": "TRUE", "STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20", "HISTORY_RETENTION_DAYS": "30"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30, cfg.History.RetentionDays)
				assert.True(t, cfg.History.Enabled)
				assert.Equal(t, StoragePostgreSQL, cfg.History.Type)
				assert.Equal(t, "postgres://localhost/test", cfg.History.PostgreSQL.URL)
				assert.Equal(t, 20, cfg.History.PostgreSQL.MaxConns)
			},
		},
		{
			name:    "baseline in redis",
			envVars: map[string]string{"BASELINE_TYPE": "redis", "REDIS_URL": "redis://localhost:6379", "BASELINE_TTL": "1h"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, BaselineRedis, cfg.Baseline.Type)
				assert.Equal(t, "redis://localhost:6379", cfg.Baseline.RedisURL)
				assert.Equal(t, time.Hour, cfg.Baseline.TTL)
			},
		},
		{
			name:    "suite and format",
			envVars: map[string]string{"OKUCHECK_SUITE": "core", "OKUCHECK_FORMAT": "json"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, SuiteCore, cfg.Run.Suite)
				assert.Equal(t, FormatJSON, cfg.Report.Format)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	for _, kv := range [][2]string{
		{"HTTP_TIMEOUT", "soon"},
		{"HISTORY_ENABLED", "maybe"},
		{"POSTGRES_MAX_CONNS", "many"},
		{"BASELINE_TTL", "forever"},
	} {
		t.Run(kv[0], func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}

func TestLoad_ConfigFileWithPlaceholders(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_TARGET_HOST", "api.internal")

	path := filepath.Join(t.TempDir(), "okucheck.yaml")
	content := `
target:
  base_url: "http://${TEST_TARGET_HOST}:8001"
  timeout: 3s
  origin: "${TEST_ORIGIN_UNSET:-http://portal.local}"
run:
  suite: core
report:
  format: yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("OKUCHECK_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://api.internal:8001", cfg.Target.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Target.Timeout)
	assert.Equal(t, "http://portal.local", cfg.Target.Origin)
	assert.Equal(t, SuiteCore, cfg.Run.Suite)
	assert.Equal(t, FormatYAML, cfg.Report.Format)
	// keys absent from the file keep their defaults
	assert.Equal(t, "data/okucheck.db", cfg.History.SQLite.Path)
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "okucheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  base_url: http://from-file:1\n"), 0o644))
	t.Setenv("OKUCHECK_CONFIG", path)
	t.Setenv("OKUCHECK_BASE_URL", "http://from-env:2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:2", cfg.Target.BaseURL)
}

func TestLoad_ExplicitConfigFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("OKUCHECK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "https base URL", mutate: func(cfg *Config) { cfg.Target.BaseURL = "https://transport.example.com" }},
		{name: "missing scheme", mutate: func(cfg *Config) { cfg.Target.BaseURL = "localhost:8001" }, wantErr: "invalid base URL"},
		{name: "unsupported scheme", mutate: func(cfg *Config) { cfg.Target.BaseURL = "ftp://host" }, wantErr: "invalid base URL"},
		{name: "zero timeout", mutate: func(cfg *Config) { cfg.Target.Timeout = 0 }, wantErr: "timeout"},
		{name: "unknown suite", mutate: func(cfg *Config) { cfg.Run.Suite = "smoke" }, wantErr: "unknown suite"},
		{name: "unknown format", mutate: func(cfg *Config) { cfg.Report.Format = "xml" }, wantErr: "unknown report format"},
		{name: "history disabled ignores type", mutate: func(cfg *Config) { cfg.History.Type = "oracle" }},
		{
			name: "history unknown type",
			mutate: func(cfg *Config) {
				cfg.History.Enabled = true
				cfg.History.Type = "oracle"
			},
			wantErr: "unknown storage type",
		},
		{
			name: "postgresql without URL",
			mutate: func(cfg *Config) {
				cfg.History.Enabled = true
				cfg.History.Type = StoragePostgreSQL
			},
			wantErr: "POSTGRES_URL",
		},
		{
			name: "mongodb without URL",
			mutate: func(cfg *Config) {
				cfg.History.Enabled = true
				cfg.History.Type = StorageMongoDB
			},
			wantErr: "MONGODB_URL",
		},
		{name: "redis baseline without URL", mutate: func(cfg *Config) { cfg.Baseline.Type = BaselineRedis }, wantErr: "REDIS_URL"},
		{name: "unknown baseline", mutate: func(cfg *Config) { cfg.Baseline.Type = "s3" }, wantErr: "unknown baseline type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, d)

	d, err = ParseDuration("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDuration("later")
	assert.Error(t, err)
}
