package telemetry

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/orinctl/strapd/internal/logging"
	"github.com/orinctl/strapd/internal/models"
)

// LogEmitter writes records to the structured log.
type LogEmitter struct {
	logger zerolog.Logger
	lines  map[models.LineID]models.Line
}

// NewLogEmitter returns an emitter logging under the telemetry component.
func NewLogEmitter() *LogEmitter {
	return &LogEmitter{logger: logging.Component("telemetry")}
}

// WithLines attaches the strap line table so transition records log the
// physical pin routing.
func (e *LogEmitter) WithLines(lines []models.Line) *LogEmitter {
	e.lines = make(map[models.LineID]models.Line, len(lines))
	for _, line := range lines {
		e.lines[line.ID] = line
	}
	return e
}

// Emit logs the record at a level matching its severity.
func (e *LogEmitter) Emit(record models.Record) {
	event := e.logger.Info()
	switch record.Kind {
	case models.EventBridgeTimeout:
		event = e.logger.Warn()
	case models.EventPowerBrownOut, models.EventSequenceFailed, models.EventLinkLost:
		event = e.logger.Error()
	}

	event = event.
		Str("event", string(record.Kind)).
		Time("at", record.Timestamp)
	if record.RunID != "" {
		event = event.Str("run_id", record.RunID)
	}
	if record.Sequence != "" {
		event = event.Str("sequence", string(record.Sequence))
	}
	if record.Line != "" {
		event = event.Str("line", string(record.Line))
		if line, ok := e.lines[record.Line]; ok {
			event = event.
				Str("pin", line.MCUPin).
				Str("driver", line.DriverOutput).
				Str("header", fmt.Sprintf("J14-%d", line.HeaderPin))
		}
	}
	if record.Reason != "" {
		event = event.Str("reason", string(record.Reason))
	}
	if record.RetryCount > 0 {
		event = event.Int("retry_count", record.RetryCount)
	}
	if record.QueueDepth > 0 {
		event = event.Int("queue_depth", record.QueueDepth)
	}
	event.Msg("telemetry")
}
