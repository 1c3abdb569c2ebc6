// Package config provides configuration management for the contract runner.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Suite names understood by the contract catalog
const (
	SuiteCore = "core"
	SuiteFull = "full"
)

// Report formats understood by the report writers
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// History storage backends
const (
	StorageSQLite     = "sqlite"
	StoragePostgreSQL = "postgresql"
	StorageMongoDB    = "mongodb"
)

// Baseline backends. An empty type disables regression tracking.
const (
	BaselineFile  = "file"
	BaselineRedis = "redis"
)

const (
	// DefaultBaseURL is where the transport API listens in a local setup.
	DefaultBaseURL = "http://localhost:8001"

	// DefaultTimeout bounds every HTTP call made by the runner.
	DefaultTimeout = 5 * time.Second

	// DefaultOrigin is sent with the CORS preflight.
	DefaultOrigin = "http://localhost:3000"
)

// Config holds the application configuration
type Config struct {
	Target   TargetConfig   `mapstructure:"target"`
	Run      RunConfig      `mapstructure:"run"`
	Report   ReportConfig   `mapstructure:"report"`
	History  HistoryConfig  `mapstructure:"history"`
	Baseline BaselineConfig `mapstructure:"baseline"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// TargetConfig describes the service under test
type TargetConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Origin  string        `mapstructure:"origin"`
}

// RunConfig selects which scenarios execute
type RunConfig struct {
	// Suite is "core" (health, auth, CORS) or "full" (adds driver, assignment,
	// booking, schedule and GPS scenarios)
	Suite string `mapstructure:"suite"`
}

// ReportConfig controls report rendering
type ReportConfig struct {
	Format string `mapstructure:"format"`
	// Output is a file path for the rendered report; empty means stdout
	Output string `mapstructure:"output"`
	// ExcelPath, when set, also writes an .xlsx workbook
	ExcelPath string `mapstructure:"excel_path"`
}

// HistoryConfig holds run history persistence settings
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"`
	// RetentionDays prunes older runs on save; 0 keeps everything
	RetentionDays int              `mapstructure:"retention_days"`
	SQLite        SQLiteConfig     `mapstructure:"sqlite"`
	PostgreSQL    PostgreSQLConfig `mapstructure:"postgresql"`
	MongoDB       MongoDBConfig    `mapstructure:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// BaselineConfig configures where the previous run's outcomes are kept
type BaselineConfig struct {
	Type     string        `mapstructure:"type"`
	Path     string        `mapstructure:"path"`
	RedisURL string        `mapstructure:"redis_url"`
	RedisKey string        `mapstructure:"redis_key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MetricsConfig holds Prometheus textfile output settings
type MetricsConfig struct {
	// TextfilePath is written in the node_exporter textfile format; empty disables it
	TextfilePath string `mapstructure:"textfile_path"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Format string `mapstructure:"format"` // "pretty" or "json"
	Level  string `mapstructure:"level"`
}

// Default returns a Config populated with built-in defaults
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
			Origin:  DefaultOrigin,
		},
		Run: RunConfig{
			Suite: SuiteFull,
		},
		Report: ReportConfig{
			Format: FormatText,
		},
		History: HistoryConfig{
			Type: StorageSQLite,
			SQLite: SQLiteConfig{
				Path: "data/okucheck.db",
			},
			PostgreSQL: PostgreSQLConfig{
				MaxConns: 4,
			},
			MongoDB: MongoDBConfig{
				Database: "okucheck",
			},
		},
		Baseline: BaselineConfig{
			Path:     ".cache/okucheck-baseline.json",
			RedisKey: "okucheck:baseline",
			TTL:      7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Format: "pretty",
			Level:  "info",
		},
	}
}

// Load reads configuration from defaults, an optional okucheck.yaml and the environment.
// A .env file in the working directory is loaded into the process environment first;
// variables already set in the environment win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if path := os.Getenv("OKUCHECK_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("okucheck")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		for _, key := range v.AllKeys() {
			if s, ok := v.Get(key).(string); ok && strings.Contains(s, "${") {
				v.Set(key, expandString(s))
			}
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envPattern matches ${VAR} and ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders with environment values.
// Unresolved placeholders without a default are left untouched.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides applies well-known environment variables on top of file values.
func applyEnvOverrides(cfg *Config) error {
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if val := os.Getenv(key); val != "" {
				*dst = val
				return
			}
		}
	}

	setString(&cfg.Target.BaseURL, "OKUCHECK_BASE_URL", "BASE_URL")
	setString(&cfg.Target.Origin, "OKUCHECK_ORIGIN")
	setString(&cfg.Run.Suite, "OKUCHECK_SUITE")
	setString(&cfg.Report.Format, "OKUCHECK_FORMAT")
	setString(&cfg.Report.Output, "OKUCHECK_OUTPUT")
	setString(&cfg.Report.ExcelPath, "OKUCHECK_EXCEL_PATH")
	setString(&cfg.History.Type, "STORAGE_TYPE")
	setString(&cfg.History.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.History.PostgreSQL.URL, "POSTGRES_URL")
	setString(&cfg.History.MongoDB.URL, "MONGODB_URL")
	setString(&cfg.History.MongoDB.Database, "MONGODB_DATABASE")
	setString(&cfg.Baseline.Type, "BASELINE_TYPE")
	setString(&cfg.Baseline.Path, "BASELINE_PATH")
	setString(&cfg.Baseline.RedisURL, "REDIS_URL")
	setString(&cfg.Baseline.RedisKey, "BASELINE_REDIS_KEY")
	setString(&cfg.Metrics.TextfilePath, "METRICS_TEXTFILE")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.Level, "LOG_LEVEL")

	for _, key := range []string{"OKUCHECK_TIMEOUT", "HTTP_TIMEOUT"} {
		if val := os.Getenv(key); val != "" {
			d, err := ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			cfg.Target.Timeout = d
			break
		}
	}

	if val := os.Getenv("BASELINE_TTL"); val != "" {
		d, err := ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid BASELINE_TTL: %w", err)
		}
		cfg.Baseline.TTL = d
	}

	if val := os.Getenv("HISTORY_ENABLED"); val != "" {
		enabled, err := strconv.ParseBool(strings.ToLower(val))
		if err != nil {
			return fmt.Errorf("invalid HISTORY_ENABLED: %w", err)
		}
		cfg.History.Enabled = enabled
	}

	if val := os.Getenv("POSTGRES_MAX_CONNS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid POSTGRES_MAX_CONNS: %w", err)
		}
		cfg.History.PostgreSQL.MaxConns = n
	}

	if val := os.Getenv("HISTORY_RETENTION_DAYS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid HISTORY_RETENTION_DAYS: %w", err)
		}
		cfg.History.RetentionDays = n
	}

	return nil
}

// ParseDuration accepts plain integers (seconds) or Go duration strings ("750ms", "1m").
func ParseDuration(val string) (time.Duration, error) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(val)
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.Target.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: expected http(s)://host[:port]", c.Target.BaseURL)
	}
	if c.Target.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Target.Timeout)
	}

	switch c.Run.Suite {
	case SuiteCore, SuiteFull:
	default:
		return fmt.Errorf("unknown suite: %s (valid: core, full)", c.Run.Suite)
	}

	switch c.Report.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unknown report format: %s (valid: text, json, yaml)", c.Report.Format)
	}

	if c.History.Enabled {
		switch c.History.Type {
		case StorageSQLite:
		case StoragePostgreSQL:
			if c.History.PostgreSQL.URL == "" {
				return fmt.Errorf("POSTGRES_URL is required for postgresql history")
			}
		case StorageMongoDB:
			if c.History.MongoDB.URL == "" {
				return fmt.Errorf("MONGODB_URL is required for mongodb history")
			}
		default:
			return fmt.Errorf("unknown storage type: %s (valid: sqlite, postgresql, mongodb)", c.History.Type)
		}
	}

	switch c.Baseline.Type {
	case "", BaselineFile:
	case BaselineRedis:
		if c.Baseline.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for redis baseline")
		}
	default:
		return fmt.Errorf("unknown baseline type: %s (valid: file, redis)", c.Baseline.Type)
	}

	return nil
}
