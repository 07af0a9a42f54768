// Package bridge tracks console-bridge traffic and gates recovery release.
package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orinctl/strapd/internal/logging"
)

// Monitor errors.
var (
	ErrAlreadyArmed = errors.New("bridge wait already armed")
)

// DefaultDebounce is the minimum spacing between qualifying activity frames
// before the monitor re-signals.
const DefaultDebounce = 50 * time.Millisecond

// Direction identifies which way a bridge frame travelled.
type Direction string

const (
	// DirectionInbound frames flow from the module's console toward the
	// host. Only inbound traffic qualifies as boot activity.
	DirectionInbound Direction = "inbound"

	// DirectionOutbound frames flow from the host toward the module.
	DirectionOutbound Direction = "outbound"
)

// WaitOutcome resolves an armed wait.
type WaitOutcome struct {
	// TimedOut is true when the deadline fired before qualifying activity.
	TimedOut bool

	// At is when the wait resolved.
	At time.Time
}

// Snapshot reports recent bridge traffic for status surfaces.
type Snapshot struct {
	// Waiting is true while an armed wait is outstanding.
	Waiting bool

	// InboundIdle is the age of the last inbound frame, nil when none seen.
	InboundIdle *time.Duration

	// OutboundIdle is the age of the last outbound frame, nil when none seen.
	OutboundIdle *time.Duration
}

type armedWait struct {
	ch       chan WaitOutcome
	deadline time.Time
	timer    *time.Timer
}

// Monitor observes raw frame events from the transport layer, debounces
// them, and exposes a one-shot awaitable wait used by the orchestrator to
// gate recovery release.
type Monitor struct {
	logger   zerolog.Logger
	debounce time.Duration

	mu           sync.Mutex
	lastInbound  time.Time
	lastOutbound time.Time
	lastSignal   time.Time
	armed        *armedWait

	// now is swappable for tests.
	now func() time.Time
}

// NewMonitor returns a monitor with the given debounce window; zero or
// negative selects DefaultDebounce.
func NewMonitor(debounce time.Duration) *Monitor {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Monitor{
		logger:   logging.Component("bridge"),
		debounce: debounce,
		now:      time.Now,
	}
}

// SetClock overrides the monitor's time source. Must be called before use.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Observe records one raw frame event from the transport. Empty frames are
// ignored. Inbound frames may resolve an armed wait, subject to the
// debounce window.
func (m *Monitor) Observe(dir Direction, bytes int, at time.Time) {
	if bytes <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch dir {
	case DirectionInbound:
		m.lastInbound = at
	case DirectionOutbound:
		m.lastOutbound = at
		return
	default:
		return
	}

	if m.armed == nil {
		return
	}
	if !m.lastSignal.IsZero() && at.Sub(m.lastSignal) < m.debounce {
		// Burst continuation; do not re-signal.
		return
	}

	m.lastSignal = at
	m.resolveLocked(WaitOutcome{TimedOut: false, At: at})
}

// Arm registers a one-shot wait that resolves on the next qualifying
// inbound frame or when timeout elapses, whichever comes first. The armed
// state clears as the outcome is delivered, so it cannot fire twice.
func (m *Monitor) Arm(timeout time.Duration) (<-chan WaitOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed != nil {
		return nil, ErrAlreadyArmed
	}

	wait := &armedWait{
		ch:       make(chan WaitOutcome, 1),
		deadline: m.now().Add(timeout),
	}
	wait.timer = time.AfterFunc(timeout, func() { m.expire(wait) })
	m.armed = wait

	m.logger.Debug().Dur("timeout", timeout).Msg("bridge wait armed")
	return wait.ch, nil
}

// Disarm cancels an outstanding wait without resolving it.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed == nil {
		return
	}
	m.armed.timer.Stop()
	m.armed = nil
}

// ActivitySince reports whether any inbound frame arrived after mark.
func (m *Monitor) ActivitySince(mark time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.lastInbound.IsZero() && m.lastInbound.After(mark)
}

// Snapshot returns traffic ages relative to now.
func (m *Monitor) Snapshot(now time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{Waiting: m.armed != nil}
	if !m.lastInbound.IsZero() {
		idle := now.Sub(m.lastInbound)
		snap.InboundIdle = &idle
	}
	if !m.lastOutbound.IsZero() {
		idle := now.Sub(m.lastOutbound)
		snap.OutboundIdle = &idle
	}
	return snap
}

func (m *Monitor) expire(wait *armedWait) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed != wait {
		// Already resolved or disarmed.
		return
	}
	m.resolveLocked(WaitOutcome{TimedOut: true, At: m.now()})
}

func (m *Monitor) resolveLocked(outcome WaitOutcome) {
	wait := m.armed
	m.armed = nil
	wait.timer.Stop()
	wait.ch <- outcome

	m.logger.Debug().Bool("timed_out", outcome.TimedOut).Msg("bridge wait resolved")
}
