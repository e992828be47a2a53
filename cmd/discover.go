package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reapersql/reaper/internal/discovery"
)

var (
	discoverOutput string
	discoverScript bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover the source database schema",
	Long: `Connect to the source PostgreSQL database and extract schema
metadata: tables, columns, primary keys, foreign keys, check constraints,
and unique constraints. The result is written as a schema YAML file that
the analyze, validate, and generate commands consume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		if discoverScript {
			return runDiscoverScript(cfg.Source.Schema)
		}

		d, err := discovery.NewPostgres(&cfg.Source)
		if err != nil {
			return fmt.Errorf("initializing discoverer: %w", err)
		}
		defer d.Close()

		ctx := context.Background()

		logger.Info("connecting to source",
			"host", cfg.Source.Host, "database", cfg.Source.Database)
		if err := d.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to source: %w", err)
		}

		s, err := d.Discover(ctx)
		if err != nil {
			return fmt.Errorf("discovering schema: %w", err)
		}

		fmt.Println(s.Summary())

		outputPath := discoverOutput
		if outputPath == "" {
			outputPath = filepath.Join("output", "schema.yaml")
		}
		if err := s.WriteYAML(outputPath); err != nil {
			return fmt.Errorf("writing schema: %w", err)
		}
		fmt.Printf("\nSchema written to %s\n", outputPath)
		return nil
	},
}

// runDiscoverScript writes (or prints) the offline discovery script for
// environments without direct database access.
func runDiscoverScript(schemaName string) error {
	sg := &discovery.ScriptGenerator{Schema: schemaName}
	script := sg.GenerateScript()

	if discoverOutput == "" {
		fmt.Print(script)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(discoverOutput), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(discoverOutput, []byte(script), 0o644); err != nil {
		return fmt.Errorf("writing script: %w", err)
	}
	fmt.Printf("Discovery script written to %s\n", discoverOutput)

	wrapperPath := discoverOutput[:len(discoverOutput)-len(filepath.Ext(discoverOutput))] + ".sh"
	if err := os.WriteFile(wrapperPath, []byte(sg.GenerateShellWrapper()), 0o755); err != nil {
		return fmt.Errorf("writing wrapper: %w", err)
	}
	fmt.Printf("Shell wrapper written to %s\n", wrapperPath)
	return nil
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverOutput, "output", "o", "", "output path for schema YAML (default: output/schema.yaml)")
	discoverCmd.Flags().BoolVar(&discoverScript, "script", false, "emit an offline discovery SQL script instead of connecting")
	rootCmd.AddCommand(discoverCmd)
}
