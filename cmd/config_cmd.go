package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reapersql/reaper/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View, validate, and initialize Reaper configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with every default filled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}
		if fileExists(path) {
			return fmt.Errorf("config already exists at %s", path)
		}

		cfg := config.Default()
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cv := cfg.Conventions
		g := cfg.Generation

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Source:\n")
		fmt.Printf("    Host:       %s\n", cfg.Source.Host)
		fmt.Printf("    Port:       %d\n", cfg.Source.Port)
		fmt.Printf("    Database:   %s\n", cfg.Source.Database)
		fmt.Printf("    Schema:     %s\n", cfg.Source.Schema)
		fmt.Printf("    Username:   %s\n", cfg.Source.Username)
		fmt.Printf("    Password:   %s\n", maskSecret(cfg.Source.Password))
		fmt.Println()
		fmt.Printf("  Conventions:\n")
		fmt.Printf("    Active column:      %s\n", cv.ActiveColumn)
		fmt.Printf("    Deactivated at:     %s\n", cv.DeactivatedAtColumn)
		fmt.Printf("    Period columns:     %s / %s\n", cv.PeriodStartColumn, cv.PeriodEndColumn)
		fmt.Printf("    History suffix:     %s\n", cv.HistoryTableSuffix)
		fmt.Printf("    Audit table:        %s (%s)\n", cv.AuditTable, cv.AuditIDColumn)
		fmt.Println()
		fmt.Printf("  Generation:\n")
		fmt.Printf("    Dialect:        %s\n", g.Dialect)
		fmt.Printf("    Output dir:     %s\n", g.OutputDir)
		fmt.Printf("    Purge proc:     %s\n", g.PurgeProcedureName)
		fmt.Printf("    Grace days:     %d\n", g.GraceDays)
		fmt.Printf("    Batch size:     %d\n", g.BatchSize)
		fmt.Printf("    Overrides:      %d\n", len(cfg.Overrides))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		var problems []string
		if cfg.Generation.Dialect != "postgres" {
			problems = append(problems, fmt.Sprintf("generation.dialect %q is not supported (only postgres)", cfg.Generation.Dialect))
		}
		if cfg.Generation.GraceDays < 0 {
			problems = append(problems, "generation.grace_days must not be negative")
		}
		if cfg.Generation.BatchSize < 1 {
			problems = append(problems, "generation.batch_size must be at least 1")
		}
		if !strings.Contains(cfg.Generation.ActiveViewPattern, "{table}") {
			problems = append(problems, "generation.active_view_pattern must contain {table}")
		}
		if !strings.Contains(cfg.Generation.DeletedViewPattern, "{table}") {
			problems = append(problems, "generation.deleted_view_pattern must contain {table}")
		}
		for i, p := range cfg.Conventions.PolymorphicPatterns {
			if p.TypeColumn == "" || p.IDColumn == "" {
				problems = append(problems, fmt.Sprintf("conventions.polymorphic_patterns[%d]: both type_column and id_column are required", i))
			}
		}

		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Printf("  ✗ %s\n", p)
			}
			return fmt.Errorf("config has %d problem(s)", len(problems))
		}
		fmt.Println("Config is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "********"
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
