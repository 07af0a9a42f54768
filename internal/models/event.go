package models

import (
	"encoding/json"
	"time"
)

// EventKind categorizes telemetry events.
type EventKind string

const (
	// Strap transitions
	EventStrapAsserted EventKind = "strap.asserted"
	EventStrapReleased EventKind = "strap.released"

	// Command lifecycle
	EventCommandQueued   EventKind = "command.queued"
	EventCommandStarted  EventKind = "command.started"
	EventCommandRejected EventKind = "command.rejected"

	// Sequence lifecycle
	EventSequenceArmed    EventKind = "sequence.armed"
	EventSequenceComplete EventKind = "sequence.complete"
	EventSequenceFailed   EventKind = "sequence.failed"
	EventSequenceRetry    EventKind = "sequence.retry"

	// Bridge and power
	EventBridgeActivity EventKind = "bridge.activity"
	EventBridgeTimeout  EventKind = "bridge.timeout"
	EventPowerBrownOut  EventKind = "power.brownout"
	EventPowerStable    EventKind = "power.stable"
	EventLinkLost       EventKind = "link.lost"
)

// ReasonCode explains a failure or warning in a telemetry record.
type ReasonCode string

const (
	ReasonBusy           ReasonCode = "busy"
	ReasonTimeout        ReasonCode = "timeout"
	ReasonBrownOut       ReasonCode = "brown-out"
	ReasonDisconnect     ReasonCode = "disconnect"
	ReasonRetryExhausted ReasonCode = "retry-exhausted"
)

// Record is one telemetry observation. Timestamps come from the monotonic
// clock driving the orchestrator.
type Record struct {
	// ID is the unique identifier for the record.
	ID string `json:"id"`

	// Kind categorizes the event.
	Kind EventKind `json:"kind"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID ties the record to a sequence run, when one is active.
	RunID string `json:"run_id,omitempty"`

	// Sequence is the sequence kind involved, when applicable.
	Sequence SequenceKind `json:"sequence,omitempty"`

	// Line is the strap line involved, when applicable.
	Line LineID `json:"line,omitempty"`

	// Reason carries the failure or warning reason, when applicable.
	Reason ReasonCode `json:"reason,omitempty"`

	// RetryCount is the retry attempt counter, when applicable.
	RetryCount int `json:"retry_count,omitempty"`

	// QueueDepth is the pending-command count at emission time, for
	// command lifecycle events.
	QueueDepth int `json:"queue_depth,omitempty"`

	// Detail carries event-specific data (e.g. run summaries).
	Detail json.RawMessage `json:"detail,omitempty"`
}

// RunSummary is the Detail payload for sequence.complete records.
type RunSummary struct {
	Outcome        string        `json:"outcome"`
	Duration       time.Duration `json:"duration"`
	EventsRecorded int           `json:"events_recorded"`
	Retries        int           `json:"retries"`
}
