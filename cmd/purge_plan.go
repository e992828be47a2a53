package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reapersql/reaper/internal/engine"
	"github.com/reapersql/reaper/internal/generate"
	"github.com/reapersql/reaper/internal/schema"
)

var (
	purgeSchema  string
	purgeShowSQL bool
)

var purgePlanCmd = &cobra.Command{
	Use:   "purge-plan",
	Short: "Show the purge deletion order and the purge procedure",
	Long: `Compute the child-first deletion order the purge procedure will
follow and list which tables are eligible for hard deletion. Tables that
participate in a reference cycle are excluded and reported. With --sql
the full purge procedure body is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := schema.LoadYAML(purgeSchema)
		if err != nil {
			return fmt.Errorf("loading schema: %w", err)
		}

		eng := engine.New(cfg, logger)
		a, err := eng.Analyze(raw)
		if err != nil {
			return err
		}

		order, cyclic := a.Graph.DeletionOrder()
		var purgeable []string
		for _, name := range order {
			t := a.Schema.Table(name)
			if t != nil && t.HasSoftDelete && !t.IsHistoryTable {
				purgeable = append(purgeable, name)
			}
		}

		fmt.Printf("Deletion order (%d table(s)):\n", len(order))
		fmt.Printf("  %s\n", strings.Join(order, " -> "))
		fmt.Printf("\nPurged by %s (%d table(s)):\n", cfg.Generation.PurgeProcedureName, len(purgeable))
		for _, name := range purgeable {
			fmt.Printf("  %s\n", name)
		}
		if len(cyclic) > 0 {
			fmt.Printf("\nExcluded (reference cycle): %s\n", strings.Join(cyclic, ", "))
		}
		fmt.Printf("\nGrace period: %d day(s), batch size: %d\n",
			cfg.Generation.GraceDays, cfg.Generation.BatchSize)

		if purgeShowSQL {
			gen, err := generate.New(cfg, a.Schema, a.Graph)
			if err != nil {
				return err
			}
			artifact, diags := gen.PurgeProcedure()
			for _, d := range diags.Sorted() {
				fmt.Println(d.String())
			}
			if artifact != nil {
				fmt.Printf("\n%s\n", artifact.SQL)
			}
		}
		return nil
	},
}

func init() {
	purgePlanCmd.Flags().StringVarP(&purgeSchema, "schema", "s", "output/schema.yaml", "schema YAML to plan from")
	purgePlanCmd.Flags().BoolVar(&purgeShowSQL, "sql", false, "print the purge procedure SQL")
	rootCmd.AddCommand(purgePlanCmd)
}
