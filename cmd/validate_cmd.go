package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reapersql/reaper/internal/engine"
	"github.com/reapersql/reaper/internal/report"
	"github.com/reapersql/reaper/internal/schema"
)

var (
	validateSchema string
	validateStrict bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the schema against the structural rules",
	Long: `Check foreign key integrity, polymorphic shape, temporal column
pairing, audit column presence, naming conventions, primary keys, and
reference cycles. Exits nonzero when any error-level finding exists;
--strict treats warnings as errors too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := schema.LoadYAML(validateSchema)
		if err != nil {
			return fmt.Errorf("loading schema: %w", err)
		}

		eng := engine.New(cfg, logger)
		a, err := eng.Analyze(raw)
		if err != nil {
			return err
		}
		diags := eng.Validate(a)

		var entries []report.DiagEntry
		for _, d := range diags.Sorted() {
			entries = append(entries, report.DiagEntry{
				Severity: string(d.Severity),
				Code:     d.Code,
				Table:    d.Table,
				Column:   d.Column,
				Message:  d.Message,
			})
		}
		fmt.Print(report.RenderDiagnostics(entries))

		nErr := len(diags.Errors())
		nWarn := len(diags.Warnings())
		fmt.Printf("\n%d error(s), %d warning(s)\n", nErr, nWarn)

		if nErr > 0 || (validateStrict && nWarn > 0) {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateSchema, "schema", "s", "output/schema.yaml", "schema YAML to validate")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "treat warnings as errors")
	rootCmd.AddCommand(validateCmd)
}
