package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orinctl/strapd/internal/models"
)

func TestNormalRebootTiming(t *testing.T) {
	cat := New()
	tmpl, err := cat.TemplateFor(models.SequenceNormalReboot)
	require.NoError(t, err)
	require.Len(t, tmpl.Steps, 4)

	press := tmpl.Steps[0]
	require.Equal(t, models.LinePower, press.Line)
	require.Equal(t, models.ActionAssert, press.Action)
	require.Equal(t, 200*time.Millisecond, press.Hold)
	require.Equal(t, 180*time.Millisecond, press.MinHold)
	require.Equal(t, 220*time.Millisecond, press.MaxHold)

	settle := tmpl.Steps[1]
	require.Equal(t, models.LinePower, settle.Line)
	require.Equal(t, models.ActionRelease, settle.Action)
	require.Equal(t, 1000*time.Millisecond, settle.Hold)
	require.Equal(t, 900*time.Millisecond, settle.MinHold)
	require.Equal(t, 1100*time.Millisecond, settle.MaxHold)

	pulse := tmpl.Steps[2]
	require.Equal(t, models.LineReset, pulse.Line)
	require.Equal(t, models.ActionAssert, pulse.Action)
	require.GreaterOrEqual(t, pulse.Hold, 20*time.Millisecond)

	require.Equal(t, models.ActionRelease, tmpl.Steps[3].Action)
	require.Equal(t, time.Second, tmpl.Cooldown)
	require.Zero(t, tmpl.MaxRetries)
}

func TestRecoveryEntryTiming(t *testing.T) {
	cat := New()
	tmpl, err := cat.TemplateFor(models.SequenceRecoveryEntry)
	require.NoError(t, err)
	require.Len(t, tmpl.Steps, 5)

	require.Equal(t, models.LineRecovery, tmpl.Steps[0].Line)
	require.Equal(t, 100*time.Millisecond, tmpl.Steps[0].Hold)
	require.Equal(t, models.LineReset, tmpl.Steps[1].Line)
	require.Equal(t, 500*time.Millisecond, tmpl.Steps[3].Hold)

	last := tmpl.Steps[4]
	require.Equal(t, models.LineRecovery, last.Line)
	require.Equal(t, models.ActionRelease, last.Action)
	require.Equal(t, models.CompleteAfterHold, last.Completion.Mode)
}

func TestRecoveryImmediateWaitsOnBridge(t *testing.T) {
	cat := New()
	tmpl, err := cat.TemplateFor(models.SequenceRecoveryImmediate)
	require.NoError(t, err)
	require.Len(t, tmpl.Steps, 6)

	wait := tmpl.Steps[4]
	require.Equal(t, models.LineRecovery, wait.Line)
	require.Equal(t, models.CompleteOnBridgeActivity, wait.Completion.Mode)
	require.Equal(t, 10*time.Second, wait.Completion.Timeout)

	release := tmpl.Steps[5]
	require.Equal(t, models.LineRecovery, release.Line)
	require.Equal(t, models.ActionRelease, release.Action)
}

func TestFaultRecoveryTiming(t *testing.T) {
	cat := New()
	tmpl, err := cat.TemplateFor(models.SequenceFaultRecovery)
	require.NoError(t, err)
	require.Len(t, tmpl.Steps, 6)
	require.Equal(t, 3, tmpl.MaxRetries)

	precharge := tmpl.Steps[0]
	require.Equal(t, models.LineAPO, precharge.Line)
	require.Equal(t, models.ActionAssert, precharge.Action)
	require.Equal(t, 250*time.Millisecond, precharge.Hold)
	// The precharge window has no tolerance: min and max pin the hold.
	require.Equal(t, precharge.Hold, precharge.MinHold)
	require.Equal(t, precharge.Hold, precharge.MaxHold)

	require.Equal(t, models.LineAPO, tmpl.Steps[1].Line)
	require.Equal(t, models.ActionRelease, tmpl.Steps[1].Action)

	// The tail is a normal reboot.
	require.Equal(t, models.LinePower, tmpl.Steps[2].Line)
	require.Equal(t, models.ActionAssert, tmpl.Steps[2].Action)
}

func TestEveryBuiltinValidates(t *testing.T) {
	cat := New()
	templates := cat.Templates()
	require.Len(t, templates, 4)
	for _, tmpl := range templates {
		require.NoError(t, tmpl.Validate(), "template %s", tmpl.Kind)
	}
}

func TestTemplateForUnknown(t *testing.T) {
	cat := New()
	_, err := cat.TemplateFor("warp-speed")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownSequence))
}

func TestLineTable(t *testing.T) {
	cat := New()
	lines := cat.Lines()
	require.Len(t, lines, 4)

	power, err := cat.LineByID(models.LinePower)
	require.NoError(t, err)
	require.Equal(t, "PWR*", power.Name)
	require.Equal(t, "PA2", power.MCUPin)
	require.Equal(t, 12, power.HeaderPin)
	require.Equal(t, models.PolarityActiveLow, power.Polarity)

	_, err = cat.LineByID("turbo")
	require.True(t, errors.Is(err, ErrUnknownLine))
}
