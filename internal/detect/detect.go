// Package detect turns raw table descriptors into enriched ones by
// applying the configurable pattern rules: soft delete, temporal
// versioning, append-only, polymorphic ownership, audit-column wiring,
// and history-table marking.
package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/schema"
)

// Detector enriches descriptors using the layered configuration.
type Detector struct {
	Config *config.Config
}

// Enrich produces a new descriptor set with pattern flags and column
// markers filled in. The input schema is never mutated. Detection
// problems accumulate as diagnostics; the enriched set is returned even
// when some were found.
func (d *Detector) Enrich(raw *schema.Schema) (*schema.Schema, diag.List) {
	var diags diag.List
	out := raw.Clone()

	seen := make(map[string]string, len(out.Tables))
	for _, t := range out.Tables {
		key := strings.ToLower(t.Name)
		if first, dup := seen[key]; dup {
			diags.Errorf(diag.CodeDuplicateTable, t.Name, "",
				"table name collides case-insensitively with %q", first)
			continue
		}
		seen[key] = t.Name
	}

	// Phase 1: local structure only. Temporal detection also declares
	// each table's history-table name, which the global pass below needs.
	for i := range out.Tables {
		t := &out.Tables[i]
		eff := d.Config.Resolve(t.Name, t.Category)
		d.detectTemporal(t, eff)
	}

	markHistoryTables(out)

	// Phase 2: rules that depend on history status. History tables are
	// excluded from soft-delete, append-only, and polymorphic analysis.
	for i := range out.Tables {
		t := &out.Tables[i]
		eff := d.Config.Resolve(t.Name, t.Category)
		if mode := eff.SoftDeleteMode; mode != schema.SoftDeleteCascade &&
			mode != schema.SoftDeleteRestrict && mode != schema.SoftDeleteIgnore {
			diags.Warnf(diag.CodeOverrideConflict, t.Name, "",
				"unknown soft delete mode %q, using cascade", mode)
			eff.SoftDeleteMode = schema.SoftDeleteCascade
		}

		t.HasActiveColumn = t.HasColumn(eff.Conventions.ActiveColumn)
		if t.IsHistoryTable {
			continue
		}

		d.detectSoftDelete(t, eff)
		d.detectAppendOnly(t, eff)
		d.detectPolymorphic(t, eff)
		d.wireAuditColumns(t, eff)
	}

	return out, diags
}

// detectTemporal marks temporal versioning when both configured period
// columns are present, and records the declared history-table name.
func (d *Detector) detectTemporal(t *schema.Table, eff config.Effective) {
	start := eff.Conventions.PeriodStartColumn
	end := eff.Conventions.PeriodEndColumn
	t.HasTemporalVersioning = t.HasColumn(start) && t.HasColumn(end)
	if t.HasTemporalVersioning {
		t.HistoryTable = t.Name + eff.Conventions.HistoryTableSuffix
	}
}

// detectSoftDelete requires both the active column and temporal
// versioning; neither alone qualifies.
func (d *Detector) detectSoftDelete(t *schema.Table, eff config.Effective) {
	t.HasSoftDelete = eff.SoftDelete && t.HasActiveColumn && t.HasTemporalVersioning
	if t.HasSoftDelete {
		t.SoftDeleteMode = eff.SoftDeleteMode
		t.ReactivationCascade = eff.ReactivationCascade
		if t.ReactivationCascade {
			t.ReactivationToleranceMillis = eff.ToleranceMillis
		}
	}
}

// detectAppendOnly requires a created-at column, no updated-by column,
// and no temporal versioning.
func (d *Detector) detectAppendOnly(t *schema.Table, eff config.Effective) {
	t.IsAppendOnly = eff.AppendOnly &&
		t.HasColumn(eff.Conventions.CreatedAtColumn) &&
		!t.HasColumn(eff.Conventions.UpdatedByColumn) &&
		!t.HasTemporalVersioning
}

// detectPolymorphic probes each configured (type, id) column pair and
// stops at the first pair present on the table. A missing IN-list CHECK
// constraint is left for validation; detection still succeeds.
func (d *Detector) detectPolymorphic(t *schema.Table, eff config.Effective) {
	if !eff.Polymorphic {
		return
	}
	for _, p := range eff.Conventions.PolymorphicPatterns {
		if !t.HasColumn(p.TypeColumn) || !t.HasColumn(p.IDColumn) {
			continue
		}
		t.IsPolymorphic = true
		t.Polymorphic = &schema.PolymorphicOwner{
			TypeColumn:    p.TypeColumn,
			IDColumn:      p.IDColumn,
			AllowedValues: mineAllowedValues(t, p.TypeColumn),
		}
		t.Column(p.TypeColumn).IsPolymorphicFK = true
		t.Column(p.IDColumn).IsPolymorphicFK = true
		return
	}
}

// wireAuditColumns gives created-by/updated-by columns an implicit
// foreign key to the configured audit table. Convention remapping via
// overrides changes which column names qualify, not the rule.
func (d *Detector) wireAuditColumns(t *schema.Table, eff config.Effective) {
	if !eff.AuditWiring || strings.EqualFold(t.Name, eff.Conventions.AuditTable) {
		return
	}
	for _, name := range []string{eff.Conventions.CreatedByColumn, eff.Conventions.UpdatedByColumn} {
		col := t.Column(name)
		if col == nil || col.References != nil {
			continue
		}
		col.References = &schema.ColumnRef{
			Table:  eff.Conventions.AuditTable,
			Column: eff.Conventions.AuditIDColumn,
		}
		if !hasForeignKeyOn(t, col.Name) {
			t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
				Name:              fmt.Sprintf("fk_%s_%s_audit", t.Name, col.Name),
				Columns:           []string{col.Name},
				ReferencedTable:   eff.Conventions.AuditTable,
				ReferencedColumns: []string{eff.Conventions.AuditIDColumn},
				Implicit:          true,
			})
		}
	}
}

func hasForeignKeyOn(t *schema.Table, column string) bool {
	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			if strings.EqualFold(c, column) {
				return true
			}
		}
	}
	return false
}

// markHistoryTables flags every descriptor whose name matches another
// descriptor's declared history-table name, case-insensitively.
func markHistoryTables(s *schema.Schema) {
	declared := make(map[string]bool)
	for _, t := range s.Tables {
		if t.HistoryTable != "" {
			declared[strings.ToLower(t.HistoryTable)] = true
		}
	}
	for i := range s.Tables {
		if declared[strings.ToLower(s.Tables[i].Name)] {
			s.Tables[i].IsHistoryTable = true
		}
	}
}

var inListPattern = regexp.MustCompile(`'((?:[^']|'')*)'`)

// mineAllowedValues extracts the quoted values of a CHECK constraint
// restricting the type column to a value list. Both the hand-authored
// "type_col IN ('a', 'b', ...)" form and the
// "(type_col)::text = ANY (ARRAY['a'::text, ...])" form that
// information_schema normalizes it to are recognized. Returns nil when
// no such constraint references the type column.
func mineAllowedValues(t *schema.Table, typeColumn string) []string {
	col := regexp.QuoteMeta(typeColumn)
	var patterns []*regexp.Regexp
	for _, expr := range []string{
		`(?i)\b` + col + `\b[^(]*\bIN\s*\(([^)]*)\)`,
		`(?i)\b` + col + `\b[^=]*=\s*ANY\s*\(+\s*ARRAY\[([^\]]*)\]`,
	} {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil
		}
		patterns = append(patterns, re)
	}
	for _, c := range t.Constraints {
		if !strings.EqualFold(c.Type, "check") {
			continue
		}
		for _, re := range patterns {
			m := re.FindStringSubmatch(c.Definition)
			if m == nil {
				continue
			}
			var values []string
			for _, q := range inListPattern.FindAllStringSubmatch(m[1], -1) {
				values = append(values, strings.ReplaceAll(q[1], "''", "'"))
			}
			return values
		}
	}
	return nil
}
