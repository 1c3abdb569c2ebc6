// Package main is the entry point for the okucheck contract runner.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout).ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errChecksFailed) {
			slog.Error("okucheck failed", "error", err)
		}
		os.Exit(1)
	}
}
