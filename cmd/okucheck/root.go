package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"okucheck/config"
	"okucheck/internal/logging"
	"okucheck/internal/version"
)

// cli carries state shared by the subcommands.
type cli struct {
	out io.Writer
	cfg *config.Config
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "okucheck",
		Short: "Contract checks for the OKU transport API",
		Long: `okucheck drives the OKU transport API through registration, login, profile,
driver, assignment, booking, schedule, GPS and CORS scenarios and reports
which parts of the contract hold.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c.cfg = cfg
			logging.Setup(cfg.Log.Format, cfg.Log.Level)
			return nil
		},
	}
	root.SetOut(out)

	root.AddCommand(
		newRunCommand(c),
		newHistoryCommand(c),
		newServeMockCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			},
		},
	)
	return root
}
