package pins

import (
	"sync"
	"time"

	"github.com/orinctl/strapd/internal/models"
)

// Transition is one recorded physical edge on a simulated line.
type Transition struct {
	Line  models.LineID
	Level models.LineLevel
	At    time.Time
}

// MemoryDriver is an in-memory Driver for host-side testing. It records
// every physical transition (idempotent repeats are not recorded, matching
// real open-drain behavior where re-driving the same level produces no edge).
type MemoryDriver struct {
	mu          sync.Mutex
	levels      map[models.LineID]models.LineLevel
	transitions []Transition
	closed      bool

	// now is swappable so tests can stamp transitions with a fake clock.
	now func() time.Time
}

// NewMemoryDriver returns a simulated driver with all lines released.
func NewMemoryDriver() *MemoryDriver {
	d := &MemoryDriver{
		levels: make(map[models.LineID]models.LineLevel, 4),
		now:    time.Now,
	}
	for _, id := range models.AllLines() {
		d.levels[id] = models.LevelReleased
	}
	return d
}

// SetClock overrides the timestamp source for recorded transitions.
func (d *MemoryDriver) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Assert drives the line low (active).
func (d *MemoryDriver) Assert(line models.LineID) error {
	return d.set(line, models.LevelAsserted)
}

// Release returns the line to its released default.
func (d *MemoryDriver) Release(line models.LineID) error {
	return d.set(line, models.LevelReleased)
}

// Read reports the current logical level.
func (d *MemoryDriver) Read(line models.LineID) (models.LineLevel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	level, ok := d.levels[line]
	if !ok {
		return "", ErrUnknownLine
	}
	return level, nil
}

// ReleaseAll returns every line to its released default.
func (d *MemoryDriver) ReleaseAll() error {
	for _, id := range models.AllLines() {
		if err := d.Release(id); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the driver closed after forcing the safe state.
func (d *MemoryDriver) Close() error {
	if err := d.ReleaseAll(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Transitions returns a copy of the recorded physical edges.
func (d *MemoryDriver) Transitions() []Transition {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Transition, len(d.transitions))
	copy(out, d.transitions)
	return out
}

// TransitionCount returns how many physical edges occurred on a line.
func (d *MemoryDriver) TransitionCount(line models.LineID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, tr := range d.transitions {
		if tr.Line == line {
			count++
		}
	}
	return count
}

func (d *MemoryDriver) set(line models.LineID, level models.LineLevel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	current, ok := d.levels[line]
	if !ok {
		return ErrUnknownLine
	}
	if current == level {
		// Idempotent repeat: no physical edge.
		return nil
	}
	d.levels[line] = level
	d.transitions = append(d.transitions, Transition{Line: line, Level: level, At: d.now()})
	return nil
}
