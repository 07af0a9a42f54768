// Package pins abstracts the strap line outputs behind a small driver
// interface so the orchestrator can run against real GPIO or a simulation.
package pins

import (
	"errors"

	"github.com/orinctl/strapd/internal/models"
)

// Driver errors.
var (
	ErrUnknownLine = errors.New("unknown strap line")
	ErrClosed      = errors.New("pin driver is closed")
)

// Driver drives the physical strap lines. Implementations must be idempotent:
// asserting an already-asserted line is a no-op with no extra edge on the
// wire.
type Driver interface {
	// Assert drives the line to its active level.
	Assert(line models.LineID) error

	// Release returns the line to its default level.
	Release(line models.LineID) error

	// Read reports the logical state currently driven on the line.
	Read(line models.LineID) (models.LineLevel, error)

	// ReleaseAll forces every line to its default level. Used for the safe
	// state on brown-out and transport loss.
	ReleaseAll() error

	// Close releases hardware resources, forcing the safe state first.
	Close() error
}
