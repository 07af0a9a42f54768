package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orinctl/strapd/internal/config"
	"github.com/orinctl/strapd/internal/models"
	"github.com/orinctl/strapd/internal/power"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.GPIO.Simulated = true
	cfg.DatabasePath = filepath.Join(t.TempDir(), "strapd.db")
	return cfg
}

func TestNewWiresComponents(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, testConfig(t), Options{Version: "test"})
	require.NoError(t, err)

	require.NotNil(t, d.Orchestrator())
	require.NotNil(t, d.Bridge())
	require.NotNil(t, d.Recorder())
	require.Len(t, d.Catalog().Templates(), 4)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	require.Error(t, err)
}

func TestNewWithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabasePath = ""

	d, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)

	// Telemetry still flows to the in-memory ring without a journal.
	_, err = d.Orchestrator().Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)
	require.Equal(t, 1, d.Recorder().CountKind(models.EventCommandQueued))
}

func TestPowerConfigReachesMonitor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Power.StableHoldoff = 750 * time.Millisecond
	cfg.Power.SampleInterval = 40 * time.Millisecond

	d, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)

	require.Equal(t, 750*time.Millisecond, d.Power().StableHoldoff())
	require.Equal(t, 40*time.Millisecond, d.Power().SampleInterval())
}

func TestPowerOverrideKeepsItsTuning(t *testing.T) {
	mon := power.NewSimMonitor()
	mon.SetHoldoff(5 * time.Millisecond)

	cfg := testConfig(t)
	cfg.Power.StableHoldoff = 750 * time.Millisecond

	d, err := New(context.Background(), cfg, Options{Power: mon})
	require.NoError(t, err)

	require.Same(t, mon, d.Power())
	require.Equal(t, 5*time.Millisecond, d.Power().StableHoldoff())
}

func TestTemplateOverridesLoadAtStartup(t *testing.T) {
	dir := t.TempDir()
	override := `
kind: recovery-entry
cooldown: 3s
steps:
  - line: recovery
    action: assert
    hold: 120ms
    completion:
      mode: after-hold
  - line: recovery
    action: release
    completion:
      mode: after-hold
`
	path := filepath.Join(dir, "recovery-entry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	cfg := testConfig(t)
	cfg.TemplatesDir = dir

	d, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)

	tmpl, err := d.Catalog().TemplateFor(models.SequenceRecoveryEntry)
	require.NoError(t, err)
	require.Len(t, tmpl.Steps, 2)
	require.Equal(t, 3*time.Second, tmpl.Cooldown)
}
