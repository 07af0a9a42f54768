package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orinctl/strapd/internal/db"
	"github.com/orinctl/strapd/internal/models"
)

func TestJournalEmitterPersistsRecords(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate(ctx))

	journal := db.NewJournal(database)
	emitter := NewJournalEmitter(ctx, journal)

	for i := 0; i < 5; i++ {
		emitter.Emit(models.Record{Kind: models.EventStrapAsserted, RunID: "run-1"})
	}
	emitter.Close()

	count, err := journal.CountKind(ctx, models.EventStrapAsserted)
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestJournalEmitterCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate(ctx))

	emitter := NewJournalEmitter(ctx, db.NewJournal(database))
	emitter.Close()
	emitter.Close()
}
