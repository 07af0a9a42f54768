// Package power exposes the supply-voltage status consumed by the
// orchestrator's brown-out handling. The sampling circuitry itself lives
// outside the core; implementations only surface its verdict.
package power

import (
	"sync"
	"time"
)

// Default sampling parameters.
const (
	// DefaultHoldoff is how long the supply must stay stable after a
	// brown-out before a retry may re-arm.
	DefaultHoldoff = 250 * time.Millisecond

	// DefaultSampleInterval paces orchestrator polls while a run is active.
	DefaultSampleInterval = 10 * time.Millisecond
)

// Status classifies one supply sample.
type Status string

const (
	StatusStable   Status = "stable"
	StatusBrownOut Status = "brown-out"
	StatusUnknown  Status = "unknown"
)

// Sample is one supply observation.
type Sample struct {
	At time.Time

	// Millivolts is the measured rail voltage, zero when unavailable.
	Millivolts int
}

// Monitor reports supply health to the orchestrator.
type Monitor interface {
	// Poll returns the latest supply status without blocking.
	Poll() (Status, Sample)

	// StableHoldoff is how long the rail must stay stable after a
	// brown-out before sequencing may resume.
	StableHoldoff() time.Duration

	// SampleInterval is the recommended polling cadence.
	SampleInterval() time.Duration
}

// NoopMonitor reports unknown status; used when no sensing hardware exists.
type NoopMonitor struct{}

// Poll always reports unknown.
func (NoopMonitor) Poll() (Status, Sample) {
	return StatusUnknown, Sample{At: time.Now()}
}

// StableHoldoff returns the default holdoff.
func (NoopMonitor) StableHoldoff() time.Duration { return DefaultHoldoff }

// SampleInterval returns the default cadence.
func (NoopMonitor) SampleInterval() time.Duration { return DefaultSampleInterval }

// SimMonitor is a host-side monitor whose status tests and the emulator can
// script.
type SimMonitor struct {
	mu         sync.Mutex
	status     Status
	millivolts int
	holdoff    time.Duration
	interval   time.Duration
	now        func() time.Time
}

// NewSimMonitor returns a simulated monitor reporting a stable rail.
func NewSimMonitor() *SimMonitor {
	return &SimMonitor{
		status:     StatusStable,
		millivolts: 3300,
		holdoff:    DefaultHoldoff,
		interval:   DefaultSampleInterval,
		now:        time.Now,
	}
}

// SetClock overrides the sample timestamp source.
func (m *SimMonitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetStatus scripts the reported status and voltage.
func (m *SimMonitor) SetStatus(status Status, millivolts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.millivolts = millivolts
}

// SetHoldoff overrides the stable holdoff window.
func (m *SimMonitor) SetHoldoff(holdoff time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdoff = holdoff
}

// SetInterval overrides the polling cadence.
func (m *SimMonitor) SetInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval = interval
}

// Poll reports the scripted status.
func (m *SimMonitor) Poll() (Status, Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, Sample{At: m.now(), Millivolts: m.millivolts}
}

// StableHoldoff returns the configured holdoff.
func (m *SimMonitor) StableHoldoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdoff
}

// SampleInterval returns the configured cadence.
func (m *SimMonitor) SampleInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}
