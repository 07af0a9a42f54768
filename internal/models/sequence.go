package models

import (
	"fmt"
	"strings"
	"time"
)

// SequenceKind names one of the closed set of strap sequences.
type SequenceKind string

const (
	SequenceNormalReboot      SequenceKind = "normal-reboot"
	SequenceRecoveryEntry     SequenceKind = "recovery-entry"
	SequenceRecoveryImmediate SequenceKind = "recovery-immediate"
	SequenceFaultRecovery     SequenceKind = "fault-recovery"
)

// AllSequenceKinds lists every sequence kind in deterministic order.
func AllSequenceKinds() []SequenceKind {
	return []SequenceKind{
		SequenceNormalReboot,
		SequenceRecoveryEntry,
		SequenceRecoveryImmediate,
		SequenceFaultRecovery,
	}
}

// ParseSequenceKind resolves a user-supplied name to a sequence kind.
func ParseSequenceKind(name string) (SequenceKind, error) {
	kind := SequenceKind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllSequenceKinds() {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown sequence kind %q", name)
}

// CompletionMode decides when a step is considered finished.
type CompletionMode string

const (
	// CompleteAfterHold finishes the step once its hold duration elapses.
	CompleteAfterHold CompletionMode = "after-hold"

	// CompleteOnBridgeActivity suspends the step until console traffic is
	// observed on the bridge channel or the step's timeout fires. Timeout is
	// non-fatal: the run emits a warning and continues as if signaled.
	CompleteOnBridgeActivity CompletionMode = "on-bridge-activity"
)

// Completion pairs a completion mode with its timeout, if any.
type Completion struct {
	Mode CompletionMode `yaml:"mode"`

	// Timeout bounds CompleteOnBridgeActivity waits. Zero means the
	// catalog default applies.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// AfterHold is the common fixed-duration completion.
func AfterHold() Completion {
	return Completion{Mode: CompleteAfterHold}
}

// OnBridgeActivity waits for console traffic with the given timeout.
func OnBridgeActivity(timeout time.Duration) Completion {
	return Completion{Mode: CompleteOnBridgeActivity, Timeout: timeout}
}

// Step is one ordered operation within a sequence template.
type Step struct {
	Line   LineID `yaml:"line"`
	Action Action `yaml:"action"`

	// Hold is how long the line stays in the requested state before the
	// step may complete.
	Hold time.Duration `yaml:"hold"`

	// MinHold and MaxHold bound the acceptable hold window when the
	// hardware timing contract allows tolerance. Zero means unbounded.
	MinHold time.Duration `yaml:"min_hold,omitempty"`
	MaxHold time.Duration `yaml:"max_hold,omitempty"`

	Completion Completion `yaml:"completion"`
}

// Template is an immutable recipe of ordered steps for one sequence kind.
type Template struct {
	Kind  SequenceKind `yaml:"kind"`
	Steps []Step       `yaml:"steps"`

	// Cooldown is the mandatory idle interval after the last step before
	// another command may arm.
	Cooldown time.Duration `yaml:"cooldown"`

	// MaxRetries is the brown-out retry budget. Zero means no retries.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// PulsesPower reports whether any step asserts the power line.
func (t *Template) PulsesPower() bool {
	for _, step := range t.Steps {
		if step.Line == LinePower && step.Action == ActionAssert {
			return true
		}
	}
	return false
}

// Lines returns the distinct lines touched by the template, in step order.
func (t *Template) Lines() []LineID {
	seen := make(map[LineID]struct{}, 4)
	lines := make([]LineID, 0, 4)
	for _, step := range t.Steps {
		if _, ok := seen[step.Line]; ok {
			continue
		}
		seen[step.Line] = struct{}{}
		lines = append(lines, step.Line)
	}
	return lines
}

// Validate checks the template against the hardware timing contract.
func (t *Template) Validate() error {
	if _, err := ParseSequenceKind(string(t.Kind)); err != nil {
		return err
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %s has no steps", t.Kind)
	}
	if t.PulsesPower() && t.Cooldown < time.Second {
		return fmt.Errorf("template %s pulses the power line but cooldown %v is below 1s", t.Kind, t.Cooldown)
	}
	if t.MaxRetries > 0 && t.Kind != SequenceFaultRecovery {
		return fmt.Errorf("template %s must not carry a retry budget", t.Kind)
	}
	for i, step := range t.Steps {
		if step.MinHold > 0 && step.Hold < step.MinHold {
			return fmt.Errorf("template %s step %d hold %v below minimum %v", t.Kind, i, step.Hold, step.MinHold)
		}
		if step.MaxHold > 0 && step.Hold > step.MaxHold {
			return fmt.Errorf("template %s step %d hold %v above maximum %v", t.Kind, i, step.Hold, step.MaxHold)
		}
		if step.Completion.Mode == CompleteOnBridgeActivity {
			if t.Kind != SequenceRecoveryImmediate {
				return fmt.Errorf("template %s step %d may not wait on bridge activity", t.Kind, i)
			}
			if step.Line != LineRecovery {
				return fmt.Errorf("template %s step %d waits on bridge activity for %s, only the recovery line may", t.Kind, i, step.Line)
			}
		}
	}
	return nil
}
