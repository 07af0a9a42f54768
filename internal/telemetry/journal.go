package telemetry

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orinctl/strapd/internal/db"
	"github.com/orinctl/strapd/internal/logging"
	"github.com/orinctl/strapd/internal/models"
)

// journalBuffer bounds the write-behind queue between the orchestrator and
// the SQLite journal.
const journalBuffer = 256

// JournalEmitter persists records through a bounded write-behind buffer so
// Emit never blocks the orchestrator. Records are dropped, with a warning,
// when the buffer is full.
type JournalEmitter struct {
	logger  zerolog.Logger
	journal *db.Journal
	ch      chan models.Record

	closeOnce sync.Once
	done      chan struct{}
}

// NewJournalEmitter starts the write-behind worker.
func NewJournalEmitter(ctx context.Context, journal *db.Journal) *JournalEmitter {
	e := &JournalEmitter{
		logger:  logging.Component("journal"),
		journal: journal,
		ch:      make(chan models.Record, journalBuffer),
		done:    make(chan struct{}),
	}
	go e.run(ctx)
	return e
}

// Emit buffers the record without blocking.
func (e *JournalEmitter) Emit(record models.Record) {
	select {
	case e.ch <- record:
	default:
		e.logger.Warn().Str("event", string(record.Kind)).Msg("journal buffer full, dropping record")
	}
}

// Close stops the worker after draining buffered records.
func (e *JournalEmitter) Close() {
	e.closeOnce.Do(func() { close(e.ch) })
	<-e.done
}

func (e *JournalEmitter) run(ctx context.Context) {
	defer close(e.done)
	for record := range e.ch {
		if err := e.journal.Append(ctx, record); err != nil {
			e.logger.Error().Err(err).Str("event", string(record.Kind)).Msg("failed to persist record")
		}
	}
}
