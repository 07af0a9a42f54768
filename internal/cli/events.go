package cli

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/orinctl/strapd/internal/db"
	"github.com/orinctl/strapd/internal/models"
)

var (
	eventsKind  string
	eventsRun   string
	eventsLimit int
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsKind, "kind", "", "filter by event kind (e.g. sequence.complete)")
	eventsCmd.Flags().StringVar(&eventsRun, "run", "", "filter by run ID")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum records to show")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show journaled telemetry events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := db.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return err
		}

		query := db.Query{Limit: eventsLimit}
		if eventsKind != "" {
			kind := models.EventKind(eventsKind)
			query.Kind = &kind
		}
		if eventsRun != "" {
			query.RunID = &eventsRun
		}

		records, err := db.NewJournal(database).List(ctx, query)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(records))
		for _, record := range records {
			rows = append(rows, []string{
				record.Timestamp.Local().Format(time.StampMilli),
				string(record.Kind),
				string(record.Sequence),
				string(record.Line),
				string(record.Reason),
				strconv.Itoa(record.RetryCount),
			})
		}
		return writeTable(os.Stdout,
			[]string{"TIME", "EVENT", "SEQUENCE", "LINE", "REASON", "RETRY"}, rows)
	},
}
