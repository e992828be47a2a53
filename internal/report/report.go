// Package report renders analysis results for terminals and files.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/reapersql/reaper/internal/depgraph"
	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/schema"
)

// AnalysisReport is the full analysis report.
type AnalysisReport struct {
	Version     string        `json:"version"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     Summary       `json:"summary"`
	Tables      []TableEntry  `json:"tables"`
	Diagnostics []DiagEntry   `json:"diagnostics,omitempty"`
	DeleteOrder []string      `json:"delete_order,omitempty"`
	Cycles      []string      `json:"cycles,omitempty"`
}

// Summary counts the patterns detected across the schema.
type Summary struct {
	Tables      int `json:"tables"`
	SoftDelete  int `json:"soft_delete"`
	Temporal    int `json:"temporal"`
	AppendOnly  int `json:"append_only"`
	Polymorphic int `json:"polymorphic"`
	History     int `json:"history"`
	Leaves      int `json:"leaves"`
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
}

// TableEntry summarizes one table's detected patterns.
type TableEntry struct {
	Name           string   `json:"name"`
	SoftDelete     bool     `json:"soft_delete"`
	SoftDeleteMode string   `json:"soft_delete_mode,omitempty"`
	Temporal       bool     `json:"temporal"`
	AppendOnly     bool     `json:"append_only"`
	Polymorphic    bool     `json:"polymorphic"`
	History        bool     `json:"history"`
	HistoryTable   string   `json:"history_table,omitempty"`
	Leaf           bool     `json:"leaf"`
	Children       []string `json:"children,omitempty"`
}

// DiagEntry is one diagnostic in JSON form.
type DiagEntry struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Table    string `json:"table,omitempty"`
	Column   string `json:"column,omitempty"`
	Message  string `json:"message"`
}

// Build creates an AnalysisReport from an enriched schema, its graph,
// and the collected diagnostics.
func Build(s *schema.Schema, g *depgraph.Graph, diags diag.List) *AnalysisReport {
	r := &AnalysisReport{
		Version:     "1",
		GeneratedAt: time.Now(),
	}

	r.Summary.Tables = len(s.Tables)
	for _, t := range s.Tables {
		entry := TableEntry{
			Name:         t.Name,
			SoftDelete:   t.HasSoftDelete,
			Temporal:     t.HasTemporalVersioning,
			AppendOnly:   t.IsAppendOnly,
			Polymorphic:  t.IsPolymorphic,
			History:      t.IsHistoryTable,
			HistoryTable: t.HistoryTable,
			Leaf:         t.IsLeafTable,
			Children:     t.ChildTables,
		}
		if t.HasSoftDelete {
			entry.SoftDeleteMode = string(t.SoftDeleteMode)
			r.Summary.SoftDelete++
		}
		if t.HasTemporalVersioning {
			r.Summary.Temporal++
		}
		if t.IsAppendOnly {
			r.Summary.AppendOnly++
		}
		if t.IsPolymorphic {
			r.Summary.Polymorphic++
		}
		if t.IsHistoryTable {
			r.Summary.History++
		}
		if t.IsLeafTable {
			r.Summary.Leaves++
		}
		r.Tables = append(r.Tables, entry)
	}
	sort.Slice(r.Tables, func(i, j int) bool { return r.Tables[i].Name < r.Tables[j].Name })

	if g != nil {
		order, cyclic := g.DeletionOrder()
		r.DeleteOrder = order
		r.Cycles = cyclic
	}

	for _, d := range diags.All() {
		r.Diagnostics = append(r.Diagnostics, DiagEntry{
			Severity: string(d.Severity),
			Code:     d.Code,
			Table:    d.Table,
			Column:   d.Column,
			Message:  d.Message,
		})
	}
	r.Summary.Errors = len(diags.Errors())
	r.Summary.Warnings = len(diags.Warnings())

	return r
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *AnalysisReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*AnalysisReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &AnalysisReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// Render renders the report for a terminal.
func Render(r *AnalysisReport) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Reaper Analysis Report"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("generated %s", r.GeneratedAt.Format(time.RFC3339))))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Summary"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  tables:       %d\n", r.Summary.Tables))
	b.WriteString(fmt.Sprintf("  soft delete:  %d\n", r.Summary.SoftDelete))
	b.WriteString(fmt.Sprintf("  temporal:     %d\n", r.Summary.Temporal))
	b.WriteString(fmt.Sprintf("  append only:  %d\n", r.Summary.AppendOnly))
	b.WriteString(fmt.Sprintf("  polymorphic:  %d\n", r.Summary.Polymorphic))
	b.WriteString(fmt.Sprintf("  history:      %d\n", r.Summary.History))
	b.WriteString(fmt.Sprintf("  leaves:       %d\n\n", r.Summary.Leaves))

	b.WriteString(headerStyle.Render("Tables"))
	b.WriteString("\n")
	for _, t := range r.Tables {
		var tags []string
		if t.SoftDelete {
			tags = append(tags, "soft-delete("+t.SoftDeleteMode+")")
		}
		if t.Temporal {
			tags = append(tags, "temporal")
		}
		if t.AppendOnly {
			tags = append(tags, "append-only")
		}
		if t.Polymorphic {
			tags = append(tags, "polymorphic")
		}
		if t.History {
			tags = append(tags, "history")
		}
		if t.Leaf {
			tags = append(tags, "leaf")
		}
		line := fmt.Sprintf("  %-32s %s", t.Name, strings.Join(tags, ", "))
		if len(tags) == 0 {
			line = fmt.Sprintf("  %-32s %s", t.Name, dimStyle.Render("plain"))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(r.DeleteOrder) > 0 {
		b.WriteString(headerStyle.Render("Deletion Order"))
		b.WriteString("\n  ")
		b.WriteString(strings.Join(r.DeleteOrder, " -> "))
		b.WriteString("\n\n")
	}
	if len(r.Cycles) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("Excluded from ordering (cycles): %s", strings.Join(r.Cycles, ", "))))
		b.WriteString("\n\n")
	}

	b.WriteString(RenderDiagnostics(r.Diagnostics))
	return b.String()
}

// RenderDiagnostics renders the diagnostics section alone, used by
// validate when no full report is wanted.
func RenderDiagnostics(entries []DiagEntry) string {
	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString(successStyle.Render("No diagnostics."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render("Diagnostics"))
	b.WriteString("\n")
	for _, d := range entries {
		label := warnStyle.Render("warning")
		if d.Severity == string(diag.SeverityError) {
			label = errStyle.Render("error")
		}
		loc := d.Table
		if d.Column != "" {
			loc += "." + d.Column
		}
		if loc != "" {
			loc = " " + loc + ":"
		}
		b.WriteString(fmt.Sprintf("  %s [%s]%s %s\n", label, d.Code, loc, d.Message))
	}
	return b.String()
}
