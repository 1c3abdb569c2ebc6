package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"okucheck/config"
	"okucheck/internal/history"
)

func newHistoryCommand(c *cli) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the configured history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.cfg.History.Enabled {
				return fmt.Errorf("run history is disabled (set HISTORY_ENABLED=true)")
			}
			if err := c.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			res, err := history.New(cmd.Context(), c.cfg)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer func() { _ = res.Close() }()

			runs, err := res.Store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return writeHistory(c.out, format, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "number of runs to show")
	cmd.Flags().StringVar(&format, "format", config.FormatText, "output format: text, json or yaml")
	return cmd
}

func writeHistory(w io.Writer, format string, runs []history.RunSummary) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return err
		}
		return enc.Close()
	case config.FormatText:
	default:
		return fmt.Errorf("unknown history format: %q", format)
	}

	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tSUITE\tTARGET\tPASSED\tFAILED\tRATE\tDURATION\tFAILED CASES")
	for _, run := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.1f%%\t%.0fms\t%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.Suite,
			run.BaseURL,
			run.Passed,
			run.Failed,
			run.SuccessRate,
			run.DurationMS,
			strings.Join(run.FailedCases, ", "),
		)
	}
	return tw.Flush()
}
