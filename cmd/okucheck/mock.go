package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"okucheck/internal/mockapi"
)

const mockShutdownTimeout = 10 * time.Second

func newServeMockCommand() *cobra.Command {
	var (
		addr            string
		requireApproval bool
		origins         []string
	)
	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Serve an in-memory implementation of the transport API",
		Long: `serve-mock starts a throwaway API that honours the same wire contract as the
transport service, so the checks can be tried without a database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mockapi.New(&mockapi.Config{
				RequireDriverApproval: requireApproval,
				AllowOrigins:          origins,
			})

			errCh := make(chan error, 1)
			go func() {
				slog.Info("starting mock API", "address", addr, "require_driver_approval", requireApproval)
				errCh <- srv.Start(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			slog.Info("shutting down mock API...")
			ctx, cancel := context.WithTimeout(context.Background(), mockShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			slog.Info("mock API stopped gracefully")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8001", "listen address")
	cmd.Flags().BoolVar(&requireApproval, "require-driver-approval", false, "keep new drivers pending so their login is refused")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "CORS origins to allow (default any)")
	return cmd
}
