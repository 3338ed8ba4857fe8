package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/adaboard/internal/groutine"
)

// interruptible returns a context cancelled on Ctrl+C or SIGTERM.
func interruptible(cmd *cobra.Command, what string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	groutine.Go(ctx, "signal-watch", func(ctx context.Context) {
		select {
		case <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nCtrl+C pressed, %s...\n", what)
			cancel()
		case <-ctx.Done():
		}
	})

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
