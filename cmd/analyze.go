package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reapersql/reaper/internal/engine"
	"github.com/reapersql/reaper/internal/report"
	"github.com/reapersql/reaper/internal/schema"
)

var (
	analyzeSchema string
	analyzeJSON   string
	analyzeOut    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect lifecycle patterns and build the dependency graph",
	Long: `Run pattern detection over a discovered schema: soft delete,
temporal versioning, append-only and polymorphic tables, history table
pairing, and implicit audit references. Prints a report of what was
found, including the child-first deletion order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := schema.LoadYAML(analyzeSchema)
		if err != nil {
			return fmt.Errorf("loading schema: %w", err)
		}

		eng := engine.New(cfg, logger)
		a, err := eng.Analyze(raw)
		if err != nil {
			return err
		}

		r := report.Build(a.Schema, a.Graph, a.Diagnostics)
		fmt.Print(report.Render(r))

		if analyzeJSON != "" {
			if err := report.WriteJSON(r, analyzeJSON); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", analyzeJSON)
		}
		if analyzeOut != "" {
			if err := a.Schema.WriteYAML(analyzeOut); err != nil {
				return fmt.Errorf("writing enriched schema: %w", err)
			}
			fmt.Printf("Enriched schema written to %s\n", analyzeOut)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeSchema, "schema", "s", "output/schema.yaml", "schema YAML to analyze")
	analyzeCmd.Flags().StringVar(&analyzeJSON, "json", "", "also write the report as JSON to this path")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "output", "o", "", "also write the enriched schema YAML to this path")
	rootCmd.AddCommand(analyzeCmd)
}
