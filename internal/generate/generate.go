// Package generate produces the SQL artifacts: soft-delete propagation
// triggers, the deferred hard-delete procedure, and the convenience
// views. Artifacts are plain text; nothing here executes SQL.
package generate

import (
	"fmt"
	"strings"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/depgraph"
	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/schema"
)

// Kind identifies an artifact type.
type Kind string

const (
	KindCascadeTrigger      Kind = "cascade_soft_delete"
	KindRestrictTrigger     Kind = "restrict_soft_delete"
	KindReactivationGuard   Kind = "reactivation_guard"
	KindReactivationCascade Kind = "cascade_reactivation"
	KindPurgeProcedure      Kind = "purge_procedure"
	KindActiveView          Kind = "active_view"
	KindDeletedView         Kind = "deleted_view"
)

// Header marks a file as generated. The writer treats any same-named
// file without it as hand-authored and never touches it.
const Header = "-- generated by reaper; do not edit"

// Artifact is one generated SQL object ready to be written to disk.
type Artifact struct {
	Kind     Kind
	Table    string
	Name     string // SQL object name
	FileName string
	SQL      string
}

// Result groups every artifact produced by one run.
type Result struct {
	Triggers []Artifact
	Purge    *Artifact
	Views    []Artifact
}

// All returns every artifact in generation order.
func (r *Result) All() []Artifact {
	out := append([]Artifact(nil), r.Triggers...)
	if r.Purge != nil {
		out = append(out, *r.Purge)
	}
	return append(out, r.Views...)
}

// Generator produces SQL artifacts from the enriched descriptor set and
// its dependency graph.
type Generator struct {
	Config *config.Config
	Schema *schema.Schema
	Graph  *depgraph.Graph
}

// SupportedDialects lists the dialects the generator can emit.
var SupportedDialects = []string{"postgres"}

// New returns a generator, or an error when the configured dialect is
// not supported. An unresolvable dialect selection is a hard failure.
func New(cfg *config.Config, s *schema.Schema, g *depgraph.Graph) (*Generator, error) {
	supported := false
	for _, d := range SupportedDialects {
		if strings.EqualFold(cfg.Generation.Dialect, d) {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported sql dialect %q (supported: %s)",
			cfg.Generation.Dialect, strings.Join(SupportedDialects, ", "))
	}
	return &Generator{Config: cfg, Schema: s, Graph: g}, nil
}

// Generate produces every artifact: triggers, the purge procedure, and
// the views. Per-table problems accumulate as diagnostics; everything
// that can be generated still is.
func (g *Generator) Generate() (*Result, diag.List) {
	var diags diag.List
	res := &Result{}

	triggers, tdiags := g.Triggers()
	res.Triggers = triggers
	diags.Merge(tdiags)

	purge, pdiags := g.PurgeProcedure()
	res.Purge = purge
	diags.Merge(pdiags)

	res.Views = g.Views()
	return res, diags
}

// childRef is one foreign key from a soft-delete child to a parent.
type childRef struct {
	table *schema.Table
	fk    schema.ForeignKey
	conv  config.Conventions // child's effective conventions
}

// softDeleteChildren collects, per declared foreign key, the soft-delete
// children of a parent table. Implicit audit references never
// participate in propagation.
func (g *Generator) softDeleteChildren(parent *schema.Table) []childRef {
	var refs []childRef
	for i := range g.Schema.Tables {
		child := &g.Schema.Tables[i]
		if !child.HasSoftDelete || strings.EqualFold(child.Name, parent.Name) {
			continue
		}
		for _, fk := range child.ForeignKeys {
			if fk.Implicit || !strings.EqualFold(fk.ReferencedTable, parent.Name) {
				continue
			}
			eff := g.Config.Resolve(child.Name, child.Category)
			refs = append(refs, childRef{table: child, fk: fk, conv: eff.Conventions})
		}
	}
	return refs
}

// softDeleteParents collects, per declared foreign key, the soft-delete
// parents of a child table.
func (g *Generator) softDeleteParents(child *schema.Table) []childRef {
	var refs []childRef
	for _, fk := range child.ForeignKeys {
		if fk.Implicit || strings.EqualFold(fk.ReferencedTable, child.Name) {
			continue
		}
		parent := g.Schema.Table(fk.ReferencedTable)
		if parent == nil || !parent.HasSoftDelete {
			continue
		}
		eff := g.Config.Resolve(parent.Name, parent.Category)
		refs = append(refs, childRef{table: parent, fk: fk, conv: eff.Conventions})
	}
	return refs
}

// qualified renders the schema-qualified table name.
func qualified(t *schema.Table) string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// joinChain renders an AND-chain of per-column equalities between two
// aliases, e.g. "a.tenant_id = b.tenant_id AND a.id = b.id".
func joinChain(leftAlias string, leftCols []string, rightAlias string, rightCols []string) string {
	parts := make([]string, len(leftCols))
	for i := range leftCols {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", leftAlias, leftCols[i], rightAlias, rightCols[i])
	}
	return strings.Join(parts, " AND ")
}

// prefixed renders column names with an alias prefix.
func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}
