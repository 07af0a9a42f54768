// Package telemetry carries structured transition records away from the
// orchestrator without ever blocking it.
package telemetry

import (
	"github.com/orinctl/strapd/internal/models"
)

// Emitter accepts telemetry records. Implementations must return quickly:
// fire-and-forget or bounded buffering, never unbounded blocking.
type Emitter interface {
	Emit(record models.Record)
}

// Noop discards every record.
type Noop struct{}

// Emit drops the record.
func (Noop) Emit(models.Record) {}

// Fanout duplicates records to several sinks.
type Fanout []Emitter

// Emit forwards the record to every sink.
func (f Fanout) Emit(record models.Record) {
	for _, sink := range f {
		sink.Emit(record)
	}
}
