//go:build linux

package pins

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/orinctl/strapd/internal/models"
)

// Straps are active-low through the open-drain buffer: driving 0 asserts,
// driving 1 lets the pull-up release the line.
const (
	levelAssert  = 0
	levelRelease = 1
)

// GpiodDriver drives the strap lines through the Linux GPIO character
// device. Offsets map strap lines to chip line offsets.
type GpiodDriver struct {
	mu     sync.Mutex
	lines  map[models.LineID]*gpiocdev.Line
	levels map[models.LineID]models.LineLevel
	closed bool
}

// NewGpiodDriver requests each configured offset as an open-drain output in
// the released state.
func NewGpiodDriver(chip string, offsets map[models.LineID]int) (*GpiodDriver, error) {
	d := &GpiodDriver{
		lines:  make(map[models.LineID]*gpiocdev.Line, len(offsets)),
		levels: make(map[models.LineID]models.LineLevel, len(offsets)),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range models.AllLines() {
		offset, ok := offsets[id]
		if !ok {
			d.closeLocked()
			return nil, fmt.Errorf("no gpio offset configured for line %s", id)
		}

		line, err := gpiocdev.RequestLine(chip, offset,
			gpiocdev.AsOutput(levelRelease),
			gpiocdev.AsOpenDrain,
			gpiocdev.WithConsumer("strapd:"+string(id)),
		)
		if err != nil {
			d.closeLocked()
			return nil, fmt.Errorf("request %s offset %d on %s: %w", id, offset, chip, err)
		}
		d.lines[id] = line
		d.levels[id] = models.LevelReleased
	}

	return d, nil
}

// Assert drives the line to its active-low level.
func (d *GpiodDriver) Assert(line models.LineID) error {
	return d.set(line, models.LevelAsserted, levelAssert)
}

// Release returns the line to its pulled-up default.
func (d *GpiodDriver) Release(line models.LineID) error {
	return d.set(line, models.LevelReleased, levelRelease)
}

// Read reports the logical level currently driven.
func (d *GpiodDriver) Read(line models.LineID) (models.LineLevel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	level, ok := d.levels[line]
	if !ok {
		return "", ErrUnknownLine
	}
	return level, nil
}

// ReleaseAll forces every line to its default level.
func (d *GpiodDriver) ReleaseAll() error {
	for _, id := range models.AllLines() {
		if err := d.Release(id); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the lines back to the kernel, forcing the safe state first.
func (d *GpiodDriver) Close() error {
	if err := d.ReleaseAll(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *GpiodDriver) closeLocked() {
	for _, line := range d.lines {
		_ = line.Close()
	}
	d.lines = nil
	d.closed = true
}

func (d *GpiodDriver) set(line models.LineID, logical models.LineLevel, value int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	handle, ok := d.lines[line]
	if !ok {
		return ErrUnknownLine
	}
	if d.levels[line] == logical {
		// Idempotent repeat.
		return nil
	}
	if err := handle.SetValue(value); err != nil {
		return fmt.Errorf("set %s: %w", line, err)
	}
	d.levels[line] = logical
	return nil
}
