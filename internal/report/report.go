// Package report renders a contract RunReport as text, JSON, YAML or an Excel workbook.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"okucheck/config"
	"okucheck/internal/contract"
)

// Write renders r to w in format.
func Write(w io.Writer, format string, r *contract.RunReport, colored bool) error {
	switch format {
	case config.FormatText, "":
		NewConsole(w, colored).Report(r)
		return nil
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report as JSON: %w", err)
		}
		return nil
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report as YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format: %q", format)
	}
}

// WriteFile renders r to path, creating parent directories.
func WriteFile(path, format string, r *contract.RunReport) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Write(f, format, r, false); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	return nil
}
