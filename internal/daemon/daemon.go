// Package daemon provides the long-running strap sequencing service: it
// wires the catalog, pin driver, monitors, queue, journal, and orchestrator
// together and supervises their lifetime.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/orinctl/strapd/internal/bridge"
	"github.com/orinctl/strapd/internal/catalog"
	"github.com/orinctl/strapd/internal/config"
	"github.com/orinctl/strapd/internal/db"
	"github.com/orinctl/strapd/internal/logging"
	"github.com/orinctl/strapd/internal/models"
	"github.com/orinctl/strapd/internal/orchestrator"
	"github.com/orinctl/strapd/internal/pins"
	"github.com/orinctl/strapd/internal/power"
	"github.com/orinctl/strapd/internal/queue"
	"github.com/orinctl/strapd/internal/telemetry"
)

// Options configure the daemon runtime.
type Options struct {
	Version string

	// Driver overrides the pin backend, mainly for tests. Nil selects the
	// backend named by the configuration.
	Driver pins.Driver

	// Power overrides the supply monitor. Nil selects a simulated monitor.
	Power power.Monitor
}

// Daemon is the long-running process responsible for strap sequencing.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger
	opts   Options

	catalog      *catalog.Catalog
	driver       pins.Driver
	bridge       *bridge.Monitor
	power        power.Monitor
	queue        *queue.Queue
	orchestrator *orchestrator.Orchestrator

	database *db.DB
	journal  *telemetry.JournalEmitter
	recorder *telemetry.Recorder
}

// New constructs a daemon from the provided configuration.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logging.Component("daemon"),
		opts:   opts,
	}

	d.catalog = catalog.New()
	if cfg.TemplatesDir != "" {
		if err := d.catalog.LoadOverridesFromDir(cfg.TemplatesDir); err != nil {
			return nil, fmt.Errorf("load template overrides: %w", err)
		}
	}

	driver, err := d.openDriver()
	if err != nil {
		return nil, err
	}
	d.driver = driver

	d.bridge = bridge.NewMonitor(cfg.Bridge.Debounce)
	d.power = opts.Power
	if d.power == nil {
		sim := power.NewSimMonitor()
		sim.SetHoldoff(cfg.Power.StableHoldoff)
		sim.SetInterval(cfg.Power.SampleInterval)
		d.power = sim
	}
	d.queue = queue.New()

	emitters := telemetry.Fanout{telemetry.NewLogEmitter().WithLines(d.catalog.Lines())}
	d.recorder = telemetry.NewRecorder(telemetry.DefaultRecorderSize)
	emitters = append(emitters, d.recorder)

	if cfg.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			driver.Close()
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		database, err := db.Open(cfg.DatabasePath)
		if err != nil {
			driver.Close()
			return nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			driver.Close()
			return nil, err
		}
		d.database = database
		d.journal = telemetry.NewJournalEmitter(ctx, db.NewJournal(database))
		emitters = append(emitters, d.journal)
	}

	d.orchestrator = orchestrator.New(
		orchestrator.Config{BridgeTimeout: cfg.Bridge.Timeout},
		d.catalog,
		d.driver,
		d.bridge,
		d.power,
		d.queue,
		emitters,
	)
	return d, nil
}

func (d *Daemon) openDriver() (pins.Driver, error) {
	if d.opts.Driver != nil {
		return d.opts.Driver, nil
	}
	if d.cfg.GPIO.Simulated {
		d.logger.Info().Msg("using simulated pin driver")
		return pins.NewMemoryDriver(), nil
	}

	offsets := make(map[models.LineID]int, len(d.cfg.GPIO.Offsets))
	for id, offset := range d.cfg.GPIO.Offsets {
		offsets[models.LineID(id)] = offset
	}
	driver, err := pins.NewGpiodDriver(d.cfg.GPIO.Chip, offsets)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", d.cfg.GPIO.Chip, err)
	}
	return driver, nil
}

// Run executes sequence commands until the context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str("version", d.opts.Version).
		Bool("simulated", d.cfg.GPIO.Simulated).
		Str("database", d.cfg.DatabasePath).
		Msg("strapd starting")

	err := d.orchestrator.Run(ctx)

	d.logger.Info().Msg("strapd shutting down")
	d.close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) close() {
	if d.journal != nil {
		d.journal.Close()
	}
	if d.database != nil {
		if err := d.database.Close(); err != nil {
			d.logger.Error().Err(err).Msg("closing database")
		}
	}
	if err := d.driver.Close(); err != nil {
		d.logger.Error().Err(err).Msg("closing pin driver")
	}
}

// Orchestrator exposes the run engine for command intake and status.
func (d *Daemon) Orchestrator() *orchestrator.Orchestrator {
	return d.orchestrator
}

// Bridge exposes the console-bridge monitor for transport integration.
func (d *Daemon) Bridge() *bridge.Monitor {
	return d.bridge
}

// Catalog exposes the sequence catalog.
func (d *Daemon) Catalog() *catalog.Catalog {
	return d.catalog
}

// Power exposes the supply monitor.
func (d *Daemon) Power() power.Monitor {
	return d.power
}

// Recorder exposes the in-memory telemetry ring.
func (d *Daemon) Recorder() *telemetry.Recorder {
	return d.recorder
}
