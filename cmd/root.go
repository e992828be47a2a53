package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reaper",
	Short: "Reaper — soft-delete lifecycle tooling for PostgreSQL schemas",
	Long: `Reaper analyzes a relational schema for soft-delete, temporal,
append-only, and polymorphic patterns, validates the result against a set
of structural rules, and generates the SQL artifacts that keep soft
deletion consistent: cascade and restrict triggers, reactivation guards,
a deferred purge procedure, and convenience views.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.reaper/reaper.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig loads the configuration and builds the logger the
// subcommands share. The --log-level flag outranks the config file.
// A missing default config file means built-in defaults, not an error;
// an explicitly named file must exist.
func loadConfig() (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if cfgFile == "" && !fileExists(config.ExpandHome(config.DefaultPath)) {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logging: %w", err)
	}
	return cfg, logger, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
