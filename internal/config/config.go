// Package config loads daemon configuration from file, environment, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/orinctl/strapd/internal/bridge"
	"github.com/orinctl/strapd/internal/catalog"
	"github.com/orinctl/strapd/internal/power"
)

// GPIOConfig selects the pin backend.
type GPIOConfig struct {
	// Simulated selects the in-memory driver instead of real GPIO.
	Simulated bool `mapstructure:"simulated"`

	// Chip is the gpiochip device name, e.g. "gpiochip0".
	Chip string `mapstructure:"chip"`

	// Offsets maps strap line IDs to chip line offsets.
	Offsets map[string]int `mapstructure:"offsets"`
}

// BridgeConfig tunes the console-bridge monitor.
type BridgeConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PowerConfig tunes brown-out handling.
type PowerConfig struct {
	StableHoldoff  time.Duration `mapstructure:"stable_holdoff"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// LogConfig tunes structured logging.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// Config is the daemon configuration.
type Config struct {
	// DatabasePath locates the telemetry journal. Empty disables persistence.
	DatabasePath string `mapstructure:"database_path"`

	// TemplatesDir holds optional sequence template overrides.
	TemplatesDir string `mapstructure:"templates_dir"`

	GPIO   GPIOConfig   `mapstructure:"gpio"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	Power  PowerConfig  `mapstructure:"power"`
	Log    LogConfig    `mapstructure:"log"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		DatabasePath: defaultDatabasePath(),
		GPIO: GPIOConfig{
			Simulated: true,
			Chip:      "gpiochip0",
		},
		Bridge: BridgeConfig{
			Debounce: bridge.DefaultDebounce,
			Timeout:  catalog.BridgeWaitTimeout,
		},
		Power: PowerConfig{
			StableHoldoff:  power.DefaultHoldoff,
			SampleInterval: power.DefaultSampleInterval,
		},
		Log: LogConfig{
			Level:   "info",
			Console: false,
		},
	}
}

// Load reads configuration from the given file (optional), the environment,
// and defaults, in descending precedence. Environment variables use the
// STRAPD_ prefix with underscores, e.g. STRAPD_GPIO_CHIP.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STRAPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("database_path", defaults.DatabasePath)
	v.SetDefault("templates_dir", defaults.TemplatesDir)
	v.SetDefault("gpio.simulated", defaults.GPIO.Simulated)
	v.SetDefault("gpio.chip", defaults.GPIO.Chip)
	v.SetDefault("bridge.debounce", defaults.Bridge.Debounce)
	v.SetDefault("bridge.timeout", defaults.Bridge.Timeout)
	v.SetDefault("power.stable_holdoff", defaults.Power.StableHoldoff)
	v.SetDefault("power.sample_interval", defaults.Power.SampleInterval)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.console", defaults.Log.Console)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("strapd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "strapd"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if !c.GPIO.Simulated && c.GPIO.Chip == "" {
		return fmt.Errorf("gpio.chip is required when gpio.simulated is false")
	}
	if c.Bridge.Debounce < 0 {
		return fmt.Errorf("bridge.debounce must not be negative")
	}
	if c.Bridge.Timeout <= 0 {
		return fmt.Errorf("bridge.timeout must be positive")
	}
	if c.Power.StableHoldoff <= 0 {
		return fmt.Errorf("power.stable_holdoff must be positive")
	}
	if c.Power.SampleInterval <= 0 {
		return fmt.Errorf("power.sample_interval must be positive")
	}
	return nil
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "strapd.db"
	}
	return filepath.Join(dir, "strapd", "strapd.db")
}
