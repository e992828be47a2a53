// Package validate runs the independent rule checks over the enriched
// descriptor set and the dependency graph, accumulating every finding
// instead of failing fast.
package validate

import (
	"fmt"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/depgraph"
	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/schema"
)

// Validator checks one enriched descriptor set. Individual checks can be
// toggled off via the config except the always-on set: primary-key
// presence, circular foreign keys, soft-delete structural consistency,
// and unique-constraint column existence.
type Validator struct {
	Config *config.Config
	Schema *schema.Schema
	Graph  *depgraph.Graph
}

// Validate runs every enabled check and returns the accumulated
// diagnostics. A non-empty error list never aborts the remaining checks.
func (v *Validator) Validate() diag.List {
	var diags diag.List

	checks := v.Config.Validation
	if enabled(checks.ForeignKeys) {
		v.checkForeignKeys(&diags)
	}
	if enabled(checks.Polymorphic) {
		v.checkPolymorphic(&diags)
	}
	if enabled(checks.Temporal) {
		v.checkTemporal(&diags)
	}
	if enabled(checks.Audit) {
		v.checkAudit(&diags)
	}
	if enabled(checks.Naming) {
		v.checkNaming(&diags)
	}

	// Always-on checks.
	v.checkPrimaryKeys(&diags)
	v.checkCycles(&diags)
	v.checkSoftDeleteShape(&diags)
	v.checkUniqueConstraints(&diags)

	return diags
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

// checkForeignKeys verifies every reference points at an existing table
// and existing columns, with matching column counts on both sides.
func (v *Validator) checkForeignKeys(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]
		for _, fk := range t.ForeignKeys {
			target := v.Schema.Table(fk.ReferencedTable)
			if target == nil {
				msg := fmt.Sprintf("foreign key %s references unknown table %q", fk.Name, fk.ReferencedTable)
				if s := v.suggestTable(fk.ReferencedTable); s != "" {
					msg += fmt.Sprintf(" (did you mean %q?)", s)
				}
				diags.Errorf(diag.CodeFKTargetMissing, t.Name, "", "%s", msg)
				continue
			}
			if len(fk.Columns) != len(fk.ReferencedColumns) {
				diags.Errorf(diag.CodeFKColumnCount, t.Name, "",
					"foreign key %s has %d local columns but %d referenced columns",
					fk.Name, len(fk.Columns), len(fk.ReferencedColumns))
			}
			for _, c := range fk.Columns {
				if !t.HasColumn(c) {
					diags.Errorf(diag.CodeFKColumnMissing, t.Name, c,
						"foreign key %s names a column that does not exist%s", fk.Name, suggestSuffix(t, c))
				}
			}
			for _, c := range fk.ReferencedColumns {
				if !target.HasColumn(c) {
					diags.Errorf(diag.CodeFKColumnMissing, t.Name, c,
						"foreign key %s references missing column %s.%s%s",
						fk.Name, target.Name, c, suggestSuffix(target, c))
				}
			}
		}
	}
}

// checkPolymorphic verifies structural completeness of every polymorphic
// table: both owner columns, a referencing CHECK constraint with at
// least one allowed value, and never on a history table.
func (v *Validator) checkPolymorphic(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]
		if !t.IsPolymorphic || t.Polymorphic == nil {
			continue
		}
		if t.IsHistoryTable {
			diags.Errorf(diag.CodePolymorphicCheck, t.Name, "",
				"polymorphic ownership must not apply to a history table")
			continue
		}
		p := t.Polymorphic
		for _, col := range []string{p.TypeColumn, p.IDColumn} {
			if !t.HasColumn(col) {
				diags.Errorf(diag.CodePolymorphicCheck, t.Name, col,
					"polymorphic owner column is missing")
			}
		}
		if len(p.AllowedValues) == 0 {
			diags.Errorf(diag.CodePolymorphicCheck, t.Name, p.TypeColumn,
				"no CHECK constraint restricts the owner type to an allowed-value list")
		}
	}
}

// checkTemporal verifies the period columns carry the generated-always
// attribute and that a declared history table actually exists. A missing
// history table is only a warning: the purge procedure falls back to the
// period-end column. History tables are skipped: they hold plain,
// insertable copies of the period columns.
func (v *Validator) checkTemporal(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]
		if !t.HasTemporalVersioning || t.IsHistoryTable {
			continue
		}
		eff := v.Config.Resolve(t.Name, t.Category)
		for _, name := range []string{eff.Conventions.PeriodStartColumn, eff.Conventions.PeriodEndColumn} {
			col := t.Column(name)
			if col == nil {
				diags.Errorf(diag.CodeTemporalColumns, t.Name, name, "temporal period column is missing")
				continue
			}
			if !col.IsGenerated {
				diags.Errorf(diag.CodeTemporalColumns, t.Name, name,
					"temporal period column must be generated always")
			}
		}
		if t.HistoryTable != "" && v.Schema.Table(t.HistoryTable) == nil {
			diags.Warnf(diag.CodeHistoryMissing, t.Name, "",
				"history table %q not found; purge eligibility will be approximated", t.HistoryTable)
		}
	}
}

// checkAudit requires the audit columns on ordinary tables and relaxes
// to warnings for append-only tables, which must not carry updated-by
// and should carry created-at.
func (v *Validator) checkAudit(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]
		if t.IsHistoryTable {
			continue
		}
		eff := v.Config.Resolve(t.Name, t.Category)
		conv := eff.Conventions

		if t.IsAppendOnly {
			if t.HasColumn(conv.UpdatedByColumn) {
				diags.Warnf(diag.CodeAuditColumns, t.Name, conv.UpdatedByColumn,
					"append-only table should not carry an updated-by column")
			}
			if !t.HasColumn(conv.CreatedAtColumn) {
				diags.Warnf(diag.CodeAuditColumns, t.Name, conv.CreatedAtColumn,
					"append-only table should carry a created-at column")
			}
			if !t.HasColumn(conv.CreatedByColumn) {
				diags.Warnf(diag.CodeAuditColumns, t.Name, conv.CreatedByColumn,
					"append-only table should carry a created-by column")
			}
			continue
		}

		for _, name := range []string{conv.CreatedByColumn, conv.UpdatedByColumn} {
			if !t.HasColumn(name) {
				diags.Errorf(diag.CodeAuditColumns, t.Name, name, "audit column is missing")
			}
		}
	}
}

// checkPrimaryKeys is always on: every table except history tables must
// declare a primary key. Exactly one error per offending table.
func (v *Validator) checkPrimaryKeys(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]
		if t.IsHistoryTable {
			continue
		}
		if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) == 0 {
			diags.Errorf(diag.CodeNoPrimaryKey, t.Name, "", "no primary key")
		}
	}
}

// checkCycles is always on and reuses the graph's cycle detector. A
// cycle is non-fatal for ordering but is reported as an error.
func (v *Validator) checkCycles(diags *diag.List) {
	for _, cycle := range v.Graph.Cycles() {
		diags.Errorf(diag.CodeCircularFK, cycle[0], "",
			"circular foreign-key dependency: %s", strings.Join(cycle, " -> "))
	}
}

// checkSoftDeleteShape is always on: soft delete needs the active column
// and temporal versioning together. Either one alone is reported, as an
// error for the active column (the row state has no history backing it)
// and as a warning for temporal versioning (versioned reference data is
// legitimate, but rows cannot be soft deleted).
func (v *Validator) checkSoftDeleteShape(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]
		if t.IsHistoryTable {
			continue
		}
		eff := v.Config.Resolve(t.Name, t.Category)
		if !eff.SoftDelete {
			continue
		}
		if t.HasActiveColumn && !t.HasTemporalVersioning {
			diags.Errorf(diag.CodeSoftDeleteShape, t.Name, eff.Conventions.ActiveColumn,
				"active column present but temporal versioning is missing; soft delete requires both")
		}
		if t.HasTemporalVersioning && !t.HasActiveColumn {
			if t.ReactivationCascade {
				diags.Errorf(diag.CodeSoftDeleteShape, t.Name, "",
					"reactivation cascade requested but table has no active column")
			} else {
				diags.Warnf(diag.CodeSoftDeleteShape, t.Name, eff.Conventions.ActiveColumn,
					"temporal versioning present but no active column; rows cannot be soft deleted")
			}
		}
	}
}

// checkUniqueConstraints is always on: unique columns must exist, and a
// filtered unique constraint on a soft-delete table should filter on the
// active column so deactivated rows do not block reuse.
func (v *Validator) checkUniqueConstraints(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]
		eff := v.Config.Resolve(t.Name, t.Category)
		for _, c := range t.Constraints {
			if !strings.EqualFold(c.Type, "unique") {
				continue
			}
			for _, col := range c.Columns {
				if !t.HasColumn(col) {
					diags.Errorf(diag.CodeUniqueColumns, t.Name, col,
						"unique constraint %s names a column that does not exist%s", c.Name, suggestSuffix(t, col))
				}
			}
			if t.HasSoftDelete && c.Filter != "" &&
				!strings.Contains(strings.ToLower(c.Filter), strings.ToLower(eff.Conventions.ActiveColumn)) {
				diags.Warnf(diag.CodeUniqueFilter, t.Name, "",
					"filtered unique constraint %s should filter on %s so deactivated rows do not collide",
					c.Name, eff.Conventions.ActiveColumn)
			}
		}
	}
}

// suggestTable returns the closest known table name within edit
// distance 2, or empty.
func (v *Validator) suggestTable(name string) string {
	candidates := make([]string, 0, len(v.Schema.Tables))
	for _, t := range v.Schema.Tables {
		candidates = append(candidates, t.Name)
	}
	return closest(name, candidates)
}

func suggestSuffix(t *schema.Table, name string) string {
	candidates := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		candidates = append(candidates, c.Name)
	}
	if s := closest(name, candidates); s != "" {
		return fmt.Sprintf(" (did you mean %q?)", s)
	}
	return ""
}

func closest(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if strings.EqualFold(c, name) {
			continue
		}
		d := levenshtein.DistanceForStrings(
			[]rune(strings.ToLower(name)), []rune(strings.ToLower(c)),
			levenshtein.DefaultOptions)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
