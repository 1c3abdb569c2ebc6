// Package logging builds the slog handler used by the CLI.
//
// Human-readable output goes through tint when the destination is a terminal;
// JSON is used otherwise or when explicitly requested, so CI logs stay parseable.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Output formats
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// ParseLevel maps a level name to slog.Level. Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a handler writing to out.
// The pretty format degrades to uncolored tint output when out is not a terminal.
func NewHandler(out io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)

	if strings.EqualFold(format, FormatJSON) {
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	}

	return tint.NewHandler(out, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(out),
	})
}

// Setup installs a stderr logger as the slog default and returns it.
// stdout is left to the report.
func Setup(format, level string) *slog.Logger {
	logger := slog.New(NewHandler(os.Stderr, format, level))
	slog.SetDefault(logger)
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
