package generate

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/schema"
)

// Triggers generates the four trigger kinds for every soft-delete table:
// cascade or restrict propagation on parents (per resolved mode), the
// reactivation guard on children, and the opt-in reactivation cascade.
func (g *Generator) Triggers() ([]Artifact, diag.List) {
	var artifacts []Artifact
	var diags diag.List

	for i := range g.Schema.Tables {
		t := &g.Schema.Tables[i]
		if !t.HasSoftDelete || t.IsHistoryTable {
			continue
		}
		if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) == 0 {
			diags.Warnf(diag.CodeGenSkipped, t.Name, "",
				"skipping triggers: no primary key to correlate before/after rows")
			continue
		}

		eff := g.Config.Resolve(t.Name, t.Category)
		children := g.softDeleteChildren(t)

		switch t.SoftDeleteMode {
		case schema.SoftDeleteCascade:
			if len(children) > 0 {
				artifacts = append(artifacts, g.cascadeTrigger(t, eff.Conventions, children))
			}
		case schema.SoftDeleteRestrict:
			if len(children) > 0 {
				artifacts = append(artifacts, g.restrictTrigger(t, eff.Conventions, children))
			}
		case schema.SoftDeleteIgnore:
			// Generates nothing by definition.
		}

		if parents := g.softDeleteParents(t); len(parents) > 0 {
			artifacts = append(artifacts, g.reactivationGuard(t, eff.Conventions, parents))
		}

		if t.ReactivationCascade && len(children) > 0 {
			art, ok := g.reactivationCascade(t, eff.Conventions, children, &diags)
			if ok {
				artifacts = append(artifacts, art)
			}
		}
	}

	return artifacts, diags
}

type triggerData struct {
	Header      string
	Comment     string
	FuncName    string
	TriggerName string
	Table       string
	Statements  []string
}

var triggerTemplate = template.Must(template.New("trigger").Parse(`{{ .Header }}
-- {{ .Comment }}
CREATE OR REPLACE FUNCTION {{ .FuncName }}()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
{{- range .Statements }}
{{ . }}
{{- end }}
	RETURN NULL;
END;
$$;

DROP TRIGGER IF EXISTS {{ .TriggerName }} ON {{ .Table }};
CREATE TRIGGER {{ .TriggerName }}
AFTER UPDATE ON {{ .Table }}
REFERENCING OLD TABLE AS old_rows NEW TABLE AS new_rows
FOR EACH STATEMENT
EXECUTE FUNCTION {{ .FuncName }}();
`))

func renderTrigger(kind Kind, t *schema.Table, comment string, statements []string) Artifact {
	name := fmt.Sprintf("trg_%s_%s", strings.ToLower(t.Name), kind)
	data := triggerData{
		Header:      Header,
		Comment:     comment,
		FuncName:    name + "_fn",
		TriggerName: name,
		Table:       qualified(t),
		Statements:  statements,
	}
	var buf bytes.Buffer
	if err := triggerTemplate.Execute(&buf, data); err != nil {
		// Template and data are fixed at compile time.
		panic(err)
	}
	return Artifact{
		Kind:     kind,
		Table:    t.Name,
		Name:     name,
		FileName: name + ".sql",
		SQL:      buf.String(),
	}
}

// cascadeTrigger propagates an active -> inactive transition on the
// parent to every currently-active child row referencing it, carrying
// the acting user along.
func (g *Generator) cascadeTrigger(parent *schema.Table, conv config.Conventions, children []childRef) Artifact {
	pkJoin := joinChain("o", parent.PrimaryKey.Columns, "n", parent.PrimaryKey.Columns)
	deactivated := fmt.Sprintf(`	WITH deactivated AS (
		SELECT n.*
		FROM old_rows o
		JOIN new_rows n ON %s
		WHERE o.%s AND NOT n.%s
	)`, pkJoin, conv.ActiveColumn, conv.ActiveColumn)

	var statements []string
	for _, ref := range children {
		set := cascadeSetClause(ref, conv, len(ref.fk.Columns) > 1)
		var stmt string
		if len(ref.fk.Columns) == 1 {
			// Single-column key: direct filtered update.
			stmt = fmt.Sprintf(`	-- propagate deactivation to %s
%s
	UPDATE %s c
	SET %s
	FROM deactivated d
	WHERE c.%s = d.%s
	  AND c.%s;`,
				ref.table.Name, deactivated, qualified(ref.table), set,
				ref.fk.Columns[0], ref.fk.ReferencedColumns[0], ref.conv.ActiveColumn)
		} else {
			// Composite key: correlated-exists update.
			chain := joinChain("c", ref.fk.Columns, "d", ref.fk.ReferencedColumns)
			stmt = fmt.Sprintf(`	-- propagate deactivation to %s (composite key)
%s
	UPDATE %s c
	SET %s
	WHERE c.%s
	  AND EXISTS (
		SELECT 1 FROM deactivated d
		WHERE %s
	  );`,
				ref.table.Name, deactivated, qualified(ref.table), set,
				ref.conv.ActiveColumn, chain)
		}
		statements = append(statements, stmt)
	}

	comment := fmt.Sprintf("cascades soft delete from %s to: %s", parent.Name, childNames(children))
	return renderTrigger(KindCascadeTrigger, parent, comment, statements)
}

// cascadeSetClause builds the SET list for a cascade update: deactivate,
// carry the acting user, and stamp the deactivation time when the child
// records one.
func cascadeSetClause(ref childRef, parentConv config.Conventions, composite bool) string {
	parts := []string{fmt.Sprintf("%s = FALSE", ref.conv.ActiveColumn)}
	if ref.table.HasColumn(ref.conv.UpdatedByColumn) {
		if composite {
			chain := joinChain("c", ref.fk.Columns, "d", ref.fk.ReferencedColumns)
			parts = append(parts, fmt.Sprintf("%s = (\n\t\tSELECT d.%s FROM deactivated d WHERE %s\n\t  )",
				ref.conv.UpdatedByColumn, parentConv.UpdatedByColumn, chain))
		} else {
			parts = append(parts, fmt.Sprintf("%s = d.%s", ref.conv.UpdatedByColumn, parentConv.UpdatedByColumn))
		}
	}
	if ref.table.HasColumn(ref.conv.DeactivatedAtColumn) {
		parts = append(parts, fmt.Sprintf("%s = now()", ref.conv.DeactivatedAtColumn))
	}
	return strings.Join(parts, ",\n\t    ")
}

// restrictTrigger aborts a deactivation while any currently-active child
// row still references a row being deactivated.
func (g *Generator) restrictTrigger(parent *schema.Table, conv config.Conventions, children []childRef) Artifact {
	pkJoin := joinChain("o", parent.PrimaryKey.Columns, "n", parent.PrimaryKey.Columns)

	var statements []string
	for _, ref := range children {
		chain := joinChain("c", ref.fk.Columns, "n", ref.fk.ReferencedColumns)
		stmt := fmt.Sprintf(`	IF EXISTS (
		SELECT 1
		FROM old_rows o
		JOIN new_rows n ON %s
		JOIN %s c ON %s
		WHERE o.%s AND NOT n.%s
		  AND c.%s
	) THEN
		RAISE EXCEPTION 'cannot deactivate rows in %s: active rows in %s still reference them';
	END IF;`,
			pkJoin, qualified(ref.table), chain,
			conv.ActiveColumn, conv.ActiveColumn, ref.conv.ActiveColumn,
			parent.Name, ref.table.Name)
		statements = append(statements, stmt)
	}

	comment := fmt.Sprintf("blocks soft delete of %s while active rows exist in: %s", parent.Name, childNames(children))
	return renderTrigger(KindRestrictTrigger, parent, comment, statements)
}

// reactivationGuard aborts an inactive -> active transition on the child
// while any referenced soft-delete parent row is still inactive.
func (g *Generator) reactivationGuard(child *schema.Table, conv config.Conventions, parents []childRef) Artifact {
	pkJoin := joinChain("o", child.PrimaryKey.Columns, "n", child.PrimaryKey.Columns)

	var statements []string
	for _, ref := range parents {
		chain := joinChain("p", ref.fk.ReferencedColumns, "n", ref.fk.Columns)
		stmt := fmt.Sprintf(`	IF EXISTS (
		SELECT 1
		FROM old_rows o
		JOIN new_rows n ON %s
		JOIN %s p ON %s
		WHERE NOT o.%s AND n.%s
		  AND NOT p.%s
	) THEN
		RAISE EXCEPTION 'cannot reactivate rows in %s: referenced rows in %s are inactive';
	END IF;`,
			pkJoin, qualified(ref.table), chain,
			conv.ActiveColumn, conv.ActiveColumn, ref.conv.ActiveColumn,
			child.Name, ref.table.Name)
		statements = append(statements, stmt)
	}

	comment := fmt.Sprintf("blocks reactivation in %s while parents are inactive: %s", child.Name, childNames(parents))
	return renderTrigger(KindReactivationGuard, child, comment, statements)
}

// reactivationCascade reactivates children whose recorded deactivation
// timestamp falls within the configured tolerance of the parent's own.
// A timestamp-proximity heuristic: no transaction identifier links the
// original cascade, so close-in-time deactivations are assumed related.
func (g *Generator) reactivationCascade(parent *schema.Table, conv config.Conventions, children []childRef, diags *diag.List) (Artifact, bool) {
	if !parent.HasColumn(conv.DeactivatedAtColumn) {
		diags.Warnf(diag.CodeGenMissingColumn, parent.Name, conv.DeactivatedAtColumn,
			"reactivation cascade requested but the deactivation timestamp column is missing")
		return Artifact{}, false
	}

	pkJoin := joinChain("o", parent.PrimaryKey.Columns, "n", parent.PrimaryKey.Columns)
	reactivated := fmt.Sprintf(`	WITH reactivated AS (
		SELECT n.*, o.%s AS prior_deactivated_at
		FROM old_rows o
		JOIN new_rows n ON %s
		WHERE NOT o.%s AND n.%s
	)`, conv.DeactivatedAtColumn, pkJoin, conv.ActiveColumn, conv.ActiveColumn)

	tolerance := parent.ReactivationToleranceMillis

	var statements []string
	for _, ref := range children {
		if !ref.table.HasColumn(ref.conv.DeactivatedAtColumn) {
			diags.Warnf(diag.CodeGenMissingColumn, ref.table.Name, ref.conv.DeactivatedAtColumn,
				"excluded from %s reactivation cascade: no deactivation timestamp column", parent.Name)
			continue
		}
		proximity := fmt.Sprintf(
			"abs(extract(epoch FROM (c.%s - r.prior_deactivated_at))) * 1000 <= %d",
			ref.conv.DeactivatedAtColumn, tolerance)
		set := reactivateSetClause(ref, conv, len(ref.fk.Columns) > 1)

		var stmt string
		if len(ref.fk.Columns) == 1 {
			stmt = fmt.Sprintf(`	-- reactivate %s rows deactivated together with their parent
%s
	UPDATE %s c
	SET %s
	FROM reactivated r
	WHERE c.%s = r.%s
	  AND NOT c.%s
	  AND c.%s IS NOT NULL
	  AND r.prior_deactivated_at IS NOT NULL
	  AND %s;`,
				ref.table.Name, reactivated, qualified(ref.table), set,
				ref.fk.Columns[0], ref.fk.ReferencedColumns[0],
				ref.conv.ActiveColumn, ref.conv.DeactivatedAtColumn, proximity)
		} else {
			chain := joinChain("c", ref.fk.Columns, "r", ref.fk.ReferencedColumns)
			stmt = fmt.Sprintf(`	-- reactivate %s rows deactivated together with their parent (composite key)
%s
	UPDATE %s c
	SET %s
	WHERE NOT c.%s
	  AND c.%s IS NOT NULL
	  AND EXISTS (
		SELECT 1 FROM reactivated r
		WHERE %s
		  AND r.prior_deactivated_at IS NOT NULL
		  AND %s
	  );`,
				ref.table.Name, reactivated, qualified(ref.table), set,
				ref.conv.ActiveColumn, ref.conv.DeactivatedAtColumn, chain, proximity)
		}
		statements = append(statements, stmt)
	}

	if len(statements) == 0 {
		return Artifact{}, false
	}

	comment := fmt.Sprintf("reactivates children of %s deactivated within %dms of the parent", parent.Name, tolerance)
	return renderTrigger(KindReactivationCascade, parent, comment, statements), true
}

func reactivateSetClause(ref childRef, parentConv config.Conventions, composite bool) string {
	parts := []string{fmt.Sprintf("%s = TRUE", ref.conv.ActiveColumn)}
	if ref.table.HasColumn(ref.conv.UpdatedByColumn) && !composite {
		parts = append(parts, fmt.Sprintf("%s = r.%s", ref.conv.UpdatedByColumn, parentConv.UpdatedByColumn))
	}
	parts = append(parts, fmt.Sprintf("%s = NULL", ref.conv.DeactivatedAtColumn))
	return strings.Join(parts, ",\n\t    ")
}

func childNames(refs []childRef) string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range refs {
		if !seen[r.table.Name] {
			seen[r.table.Name] = true
			names = append(names, r.table.Name)
		}
	}
	return strings.Join(names, ", ")
}
