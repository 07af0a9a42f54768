package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orinctl/strapd/internal/daemon"
)

func init() {
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the strap sequencing service",
	Long: `Run the strap sequencing service until interrupted.

The daemon owns the strap lines for its lifetime: it executes queued
sequence commands one at a time, forces the safe state on brown-out or
transport loss, and journals every transition.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := daemon.New(ctx, cfg, daemon.Options{Version: version})
		if err != nil {
			return err
		}
		return d.Run(ctx)
	},
}
