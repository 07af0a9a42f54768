package models

import "time"

// CommandSource identifies where a sequence command originated. Only the
// single trusted host channel is modeled.
type CommandSource string

const (
	SourceHost CommandSource = "host"
)

// CommandFlags carry optional per-command overrides.
type CommandFlags struct {
	// StartAfter delays execution until RequestedAt + StartAfter.
	StartAfter time.Duration

	// RetryOverride replaces the template's retry budget when non-nil.
	RetryOverride *int
}

// Command is a parsed, validated request to execute one sequence.
type Command struct {
	// ID is assigned at intake and threads through telemetry.
	ID string

	Kind        SequenceKind
	RequestedAt time.Time
	Source      CommandSource
	Flags       CommandFlags
}

// NotBefore returns the earliest instant the command may start, or the zero
// time when it may start immediately.
func (c Command) NotBefore() time.Time {
	if c.Flags.StartAfter <= 0 {
		return time.Time{}
	}
	return c.RequestedAt.Add(c.Flags.StartAfter)
}

// RetryBudget resolves the effective retry budget for this command against
// the given template. A command override wins over the template.
func (c Command) RetryBudget(t *Template) int {
	if c.Flags.RetryOverride != nil {
		return *c.Flags.RetryOverride
	}
	if t == nil {
		return 0
	}
	return t.MaxRetries
}
