package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orinctl/strapd/internal/daemon"
	"github.com/orinctl/strapd/internal/models"
)

var (
	runStartAfter time.Duration
	runRetries    int
	runTimeout    time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runStartAfter, "start-after", 0, "delay before the sequence starts")
	runCmd.Flags().IntVar(&runRetries, "retries", 0, "override the brown-out retry budget")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Minute, "give up if the sequence has not finished")
}

var runCmd = &cobra.Command{
	Use:   "run <sequence>",
	Short: "Execute one strap sequence",
	Long: `Execute one strap sequence and wait for it to finish.

Sequences: normal-reboot, recovery-entry, recovery-immediate, fault-recovery.

Examples:
  # Reboot the module
  strapd run normal-reboot

  # Enter recovery after a 5s delay
  strapd run recovery-entry --start-after 5s

  # Fault recovery with a larger brown-out budget
  strapd run fault-recovery --retries 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseSequenceKind(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := daemon.New(ctx, cfg, daemon.Options{Version: version})
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- d.Run(runCtx) }()

		flags := models.CommandFlags{StartAfter: runStartAfter}
		if cmd.Flags().Changed("retries") {
			flags.RetryOverride = &runRetries
		}

		submitted, err := d.Orchestrator().Submit(kind, flags)
		if err != nil {
			cancel()
			<-done
			return err
		}
		fmt.Printf("Submitted %s (command %s)\n", kind, submitted.ID)

		record, err := awaitOutcome(ctx, d, runTimeout)
		cancel()
		<-done
		if err != nil {
			return err
		}

		switch record.Kind {
		case models.EventSequenceComplete:
			var summary models.RunSummary
			if len(record.Detail) > 0 {
				_ = json.Unmarshal(record.Detail, &summary)
			}
			fmt.Printf("Sequence complete in %s (%d retries)\n",
				summary.Duration.Round(time.Millisecond), summary.Retries)
			return nil
		default:
			return fmt.Errorf("sequence failed: %s", record.Reason)
		}
	},
}

// awaitOutcome polls the telemetry ring for the run's terminal record.
func awaitOutcome(ctx context.Context, d *daemon.Daemon, timeout time.Duration) (models.Record, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.Record{}, ctx.Err()
		case <-ticker.C:
			for _, record := range d.Recorder().Records() {
				switch record.Kind {
				case models.EventSequenceComplete, models.EventSequenceFailed:
					return record, nil
				}
			}
			if time.Now().After(deadline) {
				return models.Record{}, fmt.Errorf("sequence did not finish within %s", timeout)
			}
		}
	}
}
