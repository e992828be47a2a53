// Package depgraph builds the foreign-key dependency graph over a full
// descriptor set and derives the orderings and cycle reports the
// generation and validation stages share.
package depgraph

import (
	"sort"
	"strings"

	"github.com/reapersql/reaper/internal/schema"
)

// Graph records parent -> child edges derived from foreign keys, where
// the parent is the referenced table. Multiple foreign keys from the
// same child to the same parent collapse into one edge. Implicit
// audit-wiring foreign keys are excluded: they would make the audit
// table parent of nearly everything and distort deletion order.
type Graph struct {
	children map[string][]string // parent -> children, sorted
	parents  map[string][]string // child -> parents, sorted
	selfRefs map[string]bool
	names    map[string]string // lower-case -> declared name
}

// Build constructs the graph from every declared foreign-key reference
// in the schema.
func Build(s *schema.Schema) *Graph {
	g := &Graph{
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		selfRefs: make(map[string]bool),
		names:    make(map[string]string),
	}

	for _, t := range s.Tables {
		g.names[strings.ToLower(t.Name)] = t.Name
	}

	type edge struct{ parent, child string }
	dedup := make(map[edge]bool)
	for _, t := range s.Tables {
		child := strings.ToLower(t.Name)
		for _, fk := range t.ForeignKeys {
			if fk.Implicit {
				continue
			}
			parent := strings.ToLower(fk.ReferencedTable)
			if parent == child {
				g.selfRefs[child] = true
				continue
			}
			if _, known := g.names[parent]; !known {
				// Dangling reference; validation reports it.
				continue
			}
			e := edge{parent, child}
			if dedup[e] {
				continue
			}
			dedup[e] = true
			g.children[parent] = append(g.children[parent], child)
			g.parents[child] = append(g.parents[child], parent)
		}
	}

	for _, m := range []map[string][]string{g.children, g.parents} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return g
}

// Children returns the declared names of the tables holding a foreign
// key to the given table.
func (g *Graph) Children(table string) []string {
	return g.declared(g.children[strings.ToLower(table)])
}

// Parents returns the declared names of the tables referenced by the
// given table's foreign keys.
func (g *Graph) Parents(table string) []string {
	return g.declared(g.parents[strings.ToLower(table)])
}

// IsLeaf reports whether no other table references the given one. A
// self-referencing foreign key does not disqualify a leaf.
func (g *Graph) IsLeaf(table string) bool {
	return len(g.children[strings.ToLower(table)]) == 0
}

// HasSelfReference reports whether the table references itself.
func (g *Graph) HasSelfReference(table string) bool {
	return g.selfRefs[strings.ToLower(table)]
}

func (g *Graph) declared(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.names[k])
	}
	return out
}

// Cycles reports every dependency cycle in the graph as the full path
// back to its origin, in declared table names. Self-edges are never
// cycles.
func (g *Graph) Cycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var visit func(node string)
	visit = func(node string) {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, next := range g.children[node] {
			if onStack[next] {
				// Back-edge: slice out the cycle path from the stack.
				start := 0
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(stack)-start+1)
				for _, n := range stack[start:] {
					cycle = append(cycle, g.names[n])
				}
				cycle = append(cycle, g.names[next])
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[node] = false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			visit(node)
		}
	}
	return cycles
}

// DeletionOrder returns a children-first ordering: every table in
// another table's child list precedes that table. Ties break by
// ascending child count, true leaves first, then by name. Every table
// participating in a cycle is left out of the order and returned
// separately; the acyclic remainder is still a valid best-effort order.
func (g *Graph) DeletionOrder() (order []string, cyclic []string) {
	inCycle := make(map[string]bool)
	for _, cycle := range g.Cycles() {
		for _, n := range cycle {
			inCycle[strings.ToLower(n)] = true
		}
	}

	visited := make(map[string]bool)
	var visit func(node string)
	visit = func(node string) {
		if visited[node] || inCycle[node] {
			return
		}
		visited[node] = true
		for _, child := range g.byChildCount(g.children[node]) {
			visit(child)
		}
		order = append(order, g.names[node])
	}

	for _, node := range g.byChildCount(g.sortedNodes()) {
		visit(node)
	}

	for _, n := range sortedKeys(inCycle) {
		cyclic = append(cyclic, g.names[n])
	}
	return order, cyclic
}

func (g *Graph) sortedNodes() []string {
	nodes := make([]string, 0, len(g.names))
	for n := range g.names {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

func (g *Graph) byChildCount(nodes []string) []string {
	out := append([]string(nil), nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := len(g.children[out[i]]), len(g.children[out[j]])
		if ci != cj {
			return ci < cj
		}
		return out[i] < out[j]
	})
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Annotate returns a copy of the schema with the graph-derived fields
// (ChildTables, IsLeafTable) recomputed. Called whenever the descriptor
// set changes; the lists are never authored directly.
func Annotate(s *schema.Schema, g *Graph) *schema.Schema {
	out := s.Clone()
	for i := range out.Tables {
		t := &out.Tables[i]
		t.ChildTables = g.Children(t.Name)
		if len(t.ChildTables) == 0 {
			t.ChildTables = nil
		}
		t.IsLeafTable = g.IsLeaf(t.Name)
	}
	return out
}
