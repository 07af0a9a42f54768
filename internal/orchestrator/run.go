package orchestrator

import (
	"time"

	"github.com/orinctl/strapd/internal/bridge"
	"github.com/orinctl/strapd/internal/models"
)

// State is the orchestrator's externally visible phase.
type State string

const (
	StateIdle     State = "idle"
	StateArming   State = "arming"
	StateRunning  State = "running"
	StateCooldown State = "cooldown"
	StateComplete State = "complete"
	StateError    State = "error"
)

// WaitReason names why a running sequence is suspended. Exposing the reason
// and deadline keeps the step state inspectable without executing real time.
type WaitReason string

const (
	WaitNone     WaitReason = ""
	WaitDuration WaitReason = "duration"
	WaitSignal   WaitReason = "signal"
	WaitCooldown WaitReason = "cooldown"
	WaitPower    WaitReason = "power-recovery"
)

// Outcome summarizes how a run finished.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// run is the single in-flight sequence execution. Exactly zero or one run
// exists at any time; the orchestrator goroutine owns it exclusively and
// mirrors the snapshot-visible fields under the orchestrator mutex.
type run struct {
	id      string
	command models.Command

	startedAt    time.Time
	stepIndex    int
	retryCount   int
	events       int
	waitReason   WaitReason
	waitDeadline time.Time
}

// beginRetry rewinds the run to its first step for another attempt.
func (r *run) beginRetry() {
	r.retryCount++
	r.stepIndex = 0
	r.events = 0
	r.waitReason = WaitNone
	r.waitDeadline = time.Time{}
}

// stepResult reports how a step wait ended.
type stepResult int

const (
	stepDone stepResult = iota
	stepBrownOut
	stepDisconnected
	stepCanceled
)

// Failure captures the terminal error surfaced in the status snapshot.
type Failure struct {
	Reason models.ReasonCode
	At     time.Time
}

// RunStatus is the active-run portion of a status snapshot.
type RunStatus struct {
	ID           string
	Kind         models.SequenceKind
	StepIndex    int
	RetryCount   int
	WaitReason   WaitReason
	WaitDeadline time.Time
}

// Status is the externally consumed snapshot of the orchestrator.
type Status struct {
	State      State
	Active     *RunStatus
	QueueDepth int
	Lines      map[models.LineID]models.LineLevel
	LastError  *Failure
	LinkUp     bool
	Bridge     bridge.Snapshot
}
