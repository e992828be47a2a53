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

// PurgeProcedure emits one deferred hard-delete routine covering every
// soft-delete table in children-first order. Rows become eligible once
// their history shows them inactive for longer than the grace period;
// tables without a history counterpart fall back to their own period-end
// column. Returns nil when no soft-delete table exists.
func (g *Generator) PurgeProcedure() (*Artifact, diag.List) {
	var diags diag.List

	order, cyclic := g.Graph.DeletionOrder()
	if len(cyclic) > 0 {
		diags.Warnf(diag.CodeCircularFK, strings.Join(cyclic, ", "), "",
			"dependency cycle detected; purging the acyclic remainder in best-effort order")
	}

	var blocks []purgeBlock
	for _, name := range order {
		t := g.Schema.Table(name)
		if t == nil || !t.HasSoftDelete || t.IsHistoryTable {
			continue
		}
		eff := g.Config.Resolve(t.Name, t.Category)
		// Only the first (most-leaf) block runs uncapped.
		blocks = append(blocks, g.purgeBlock(t, eff.Conventions, len(blocks) > 0))
	}
	if len(blocks) == 0 {
		return nil, diags
	}

	name := g.Config.Generation.PurgeProcedureName
	data := purgeData{
		Header:    Header,
		Name:      name,
		GraceDays: g.Config.Generation.GraceDays,
		BatchSize: g.Config.Generation.BatchSize,
		Blocks:    blocks,
	}
	var buf bytes.Buffer
	if err := purgeTemplate.Execute(&buf, data); err != nil {
		panic(err)
	}

	return &Artifact{
		Kind:     KindPurgeProcedure,
		Name:     name,
		FileName: name + ".sql",
		SQL:      buf.String(),
	}, diags
}

type purgeData struct {
	Header    string
	Name      string
	GraceDays int
	BatchSize int
	Blocks    []purgeBlock
}

type purgeBlock struct {
	Table       string
	Qualified   string
	Caveat      string // non-empty for the period-end fallback
	Eligibility string // predicate on alias t
	BatchElig   string // same predicate on alias t2, empty when uncapped
	KeyTuple    string // "(t.a, t.b)" / "(t.ctid)"
	BatchTuple  string // "t2.a, t2.b" / "t2.ctid"
}

// purgeBlock builds one deletion block. Eligibility prefers the history
// record: a version that was active and whose validity ended at or
// before the cutoff.
func (g *Generator) purgeBlock(t *schema.Table, conv config.Conventions, capped bool) purgeBlock {
	b := purgeBlock{Table: t.Name, Qualified: qualified(t)}

	history := g.Schema.Table(t.HistoryTable)
	b.Eligibility = g.eligibility(t, history, conv, "t")
	if history == nil {
		b.Caveat = fmt.Sprintf(
			"-- NOTE: %s has no history table; approximating eligibility from %s directly",
			t.Name, conv.PeriodEndColumn)
	}

	if capped {
		b.BatchElig = g.eligibility(t, history, conv, "t2")
		keyCols := t.PrimaryKeyColumns()
		if len(keyCols) == 0 {
			b.KeyTuple = "(t.ctid)"
			b.BatchTuple = "t2.ctid"
		} else {
			b.KeyTuple = "(" + strings.Join(prefixed("t", keyCols), ", ") + ")"
			b.BatchTuple = strings.Join(prefixed("t2", keyCols), ", ")
		}
	}
	return b
}

func (g *Generator) eligibility(t *schema.Table, history *schema.Table, conv config.Conventions, alias string) string {
	if history == nil {
		return fmt.Sprintf("NOT %s.%s\n\t\t  AND %s.%s <= cutoff",
			alias, conv.ActiveColumn, alias, conv.PeriodEndColumn)
	}
	pkChain := joinChain(alias, t.PrimaryKeyColumns(), "h", t.PrimaryKeyColumns())
	return fmt.Sprintf(`NOT %s.%s
		  AND EXISTS (
			SELECT 1 FROM %s h
			WHERE %s
			  AND h.%s
			  AND h.%s <= cutoff
		  )`,
		alias, conv.ActiveColumn, qualified(history), pkChain,
		conv.ActiveColumn, conv.PeriodEndColumn)
}

// The whole routine runs in the caller's transaction: any failure rolls
// every deletion back and re-raises with the original detail.
var purgeTemplate = template.Must(template.New("purge").Parse(`{{ .Header }}
-- Removes soft-deleted rows once their grace period has passed,
-- children first. Call with dry_run => TRUE to report eligible row
-- counts without deleting.
CREATE OR REPLACE PROCEDURE {{ .Name }}(
	grace_days integer DEFAULT {{ .GraceDays }},
	batch_limit integer DEFAULT {{ .BatchSize }},
	dry_run boolean DEFAULT FALSE
)
LANGUAGE plpgsql
AS $$
DECLARE
	cutoff timestamptz;
	removed bigint := 0;
	total bigint := 0;
	started timestamptz := clock_timestamp();
BEGIN
	cutoff := now() - make_interval(days => grace_days);
{{ range .Blocks }}
	-- {{ .Table }}
{{- if .Caveat }}
	{{ .Caveat }}
{{- end }}
	IF dry_run THEN
		SELECT count(*) INTO removed
		FROM {{ .Qualified }} t
		WHERE {{ .Eligibility }};
	ELSE
		DELETE FROM {{ .Qualified }} t
		WHERE {{ .Eligibility }}
{{- if .BatchTuple }}
		  AND {{ .KeyTuple }} IN (
			SELECT {{ .BatchTuple }}
			FROM {{ .Qualified }} t2
			WHERE {{ .BatchElig }}
			LIMIT batch_limit
		  )
{{- end }};
		GET DIAGNOSTICS removed = ROW_COUNT;
	END IF;
	RAISE NOTICE '{{ .Table }}: % rows', removed;
	total := total + removed;
{{ end }}
	IF dry_run THEN
		RAISE NOTICE 'dry run: % rows eligible, took %', total, clock_timestamp() - started;
	ELSE
		RAISE NOTICE 'purged % rows, took %', total, clock_timestamp() - started;
	END IF;
EXCEPTION WHEN OTHERS THEN
	RAISE;
END;
$$;
`))
