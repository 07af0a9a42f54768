// Package cli provides the strapd command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/orinctl/strapd/internal/config"
	"github.com/orinctl/strapd/internal/logging"
)

var (
	cfgFile    string
	logLevel   string
	logConsole bool

	// cfg is loaded once in the persistent pre-run and shared by subcommands.
	cfg *config.Config

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:           "strapd",
	Short:         "Strap sequencing daemon for compute module boot and recovery control",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if logConsole {
			loaded.Log.Console = true
		}
		cfg = loaded

		logging.Setup(logging.Options{
			Level:   cfg.Log.Level,
			Console: cfg.Log.Console,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: strapd.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "console", false, "human-readable log output")
}

// Execute runs the root command.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.Execute()
}
