package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/engine"
	"github.com/reapersql/reaper/internal/lock"
	"github.com/reapersql/reaper/internal/schema"
)

var (
	generateSchema string
	generateForce  bool
	generateCheck  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate soft-delete SQL artifacts",
	Long: `Generate the SQL artifacts for every soft-delete table: cascade
and restrict triggers, reactivation guards, the purge procedure, and the
active/deleted convenience views. Validation runs first and errors abort
generation, except circular-dependency findings: those are reported and
the acyclic remainder is still generated. Files in the output directory
that lack the generated header are treated as hand-authored and never
overwritten; generated files are rewritten only with --force.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := schema.LoadYAML(generateSchema)
		if err != nil {
			return fmt.Errorf("loading schema: %w", err)
		}

		eng := engine.New(cfg, logger)
		a, err := eng.Analyze(raw)
		if err != nil {
			return err
		}

		diags := eng.Validate(a)
		for _, d := range diags.Sorted() {
			fmt.Println(d.String())
		}
		if diags.HasErrorsBesides(diag.CodeCircularFK) {
			return fmt.Errorf("validation failed; fix the errors above before generating")
		}

		if generateCheck {
			gen, genDiags, err := eng.Plan(a)
			if err != nil {
				return err
			}
			for _, d := range genDiags.Sorted() {
				fmt.Println(d.String())
			}
			for _, art := range gen.All() {
				fmt.Printf("would generate %s (%s)\n", art.FileName, art.Kind)
			}
			return nil
		}

		if err := lock.Acquire(cfg.Generation.OutputDir); err != nil {
			return err
		}
		defer lock.Release(cfg.Generation.OutputDir)

		result, written, genDiags, err := eng.Generate(a, generateForce)
		if err != nil {
			return err
		}
		for _, d := range genDiags.Sorted() {
			fmt.Println(d.String())
		}

		fmt.Printf("\nGenerated %d artifact(s): %d written, %d explicit, %d unchanged\n",
			len(result.All()), len(written.Written),
			len(written.SkippedExplicit), len(written.SkippedExisting))
		for _, name := range written.SkippedExplicit {
			fmt.Printf("  kept explicit %s\n", name)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateSchema, "schema", "s", "output/schema.yaml", "schema YAML to generate from")
	generateCmd.Flags().BoolVar(&generateForce, "force", false, "overwrite previously generated files")
	generateCmd.Flags().BoolVar(&generateCheck, "check", false, "list artifacts without writing anything")
	rootCmd.AddCommand(generateCmd)
}
