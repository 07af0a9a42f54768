// Package models defines the shared data model for strap control.
package models

// LineID identifies one of the logical strap lines the controller drives.
type LineID string

const (
	LineReset    LineID = "reset"
	LineRecovery LineID = "recovery"
	LinePower    LineID = "power"
	LineAPO      LineID = "apo"
)

// AllLines lists every strap line in deterministic order.
func AllLines() []LineID {
	return []LineID{LineReset, LineRecovery, LinePower, LineAPO}
}

// Polarity describes how a line's logical assert maps to a voltage level.
type Polarity string

const (
	// PolarityActiveLow lines are pulled low when asserted. All straps on
	// the controller board are wired this way through the open-drain driver.
	PolarityActiveLow Polarity = "active-low"

	PolarityActiveHigh Polarity = "active-high"
)

// LineLevel is the logical state of a strap line.
type LineLevel string

const (
	LevelAsserted LineLevel = "asserted"
	LevelReleased LineLevel = "released"
)

// Line carries the catalog metadata for a single strap line.
type Line struct {
	// ID is the logical identifier used throughout the system.
	ID LineID `yaml:"id"`

	// Name is the schematic net name (e.g. "RESET*").
	Name string `yaml:"name"`

	// MCUPin is the controller pin driving the line (e.g. "PA4").
	MCUPin string `yaml:"mcu_pin"`

	// DriverOutput names the open-drain buffer channel (e.g. "SN74LVC07-2Y").
	DriverOutput string `yaml:"driver_output"`

	// HeaderPin is the J14 header pin the line lands on.
	HeaderPin int `yaml:"header_pin"`

	// Polarity is always active-low on current hardware.
	Polarity Polarity `yaml:"polarity"`

	// DefaultLevel is the safe idle state the line returns to.
	DefaultLevel LineLevel `yaml:"default_level"`
}

// Action is the operation a sequence step applies to a line.
type Action string

const (
	ActionAssert  Action = "assert"
	ActionRelease Action = "release"
)
