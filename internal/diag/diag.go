// Package diag holds the accumulated error and warning list shared by the
// analysis, generation, and validation stages. Hard failures (unreadable
// input, malformed configuration) stay plain errors; everything that should
// be reported across the whole schema in one run goes through a List.
package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes are grouped by category prefix:
// ANN annotation/configuration, VAL validation, GEN generation,
// META metadata extraction.
const (
	CodeDuplicateTable     = "META001"
	CodeUnknownDialect     = "META002"
	CodeOverrideConflict   = "ANN001"
	CodeBadOverridePattern = "ANN002"
	CodeFKTargetMissing    = "VAL001"
	CodeFKColumnMissing    = "VAL002"
	CodeFKColumnCount      = "VAL003"
	CodePolymorphicCheck   = "VAL004"
	CodeTemporalColumns    = "VAL005"
	CodeHistoryMissing     = "VAL006"
	CodeAuditColumns       = "VAL007"
	CodeNaming             = "VAL008"
	CodeNoPrimaryKey       = "VAL009"
	CodeCircularFK         = "VAL010"
	CodeSoftDeleteShape    = "VAL011"
	CodeUniqueColumns      = "VAL012"
	CodeUniqueFilter       = "VAL013"
	CodeGenSkipped         = "GEN001"
	CodeGenMissingColumn   = "GEN002"
)

// Diagnostic is one accumulated finding, tied to a table and optionally
// a column.
type Diagnostic struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code" yaml:"code"`
	Table    string   `json:"table,omitempty" yaml:"table,omitempty"`
	Column   string   `json:"column,omitempty" yaml:"column,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

// String renders the diagnostic as a single report line.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(string(d.Severity)))
	b.WriteString(" [")
	b.WriteString(d.Code)
	b.WriteString("] ")
	if d.Table != "" {
		b.WriteString(d.Table)
		if d.Column != "" {
			b.WriteString(".")
			b.WriteString(d.Column)
		}
		b.WriteString(": ")
	}
	b.WriteString(d.Message)
	return b.String()
}

// List accumulates diagnostics across an entire run. The zero value is
// ready to use.
type List struct {
	items []Diagnostic
}

// Errorf appends an error diagnostic for a table.
func (l *List) Errorf(code, table, column, format string, args ...any) {
	l.items = append(l.items, Diagnostic{
		Severity: SeverityError,
		Code:     code,
		Table:    table,
		Column:   column,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Warnf appends a warning diagnostic for a table.
func (l *List) Warnf(code, table, column, format string, args ...any) {
	l.items = append(l.items, Diagnostic{
		Severity: SeverityWarning,
		Code:     code,
		Table:    table,
		Column:   column,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Add appends a prebuilt diagnostic.
func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
}

// Merge appends every diagnostic from other, preserving both sides in
// order. Neither list is truncated.
func (l *List) Merge(other List) {
	l.items = append(l.items, other.items...)
}

// All returns the diagnostics in insertion order.
func (l *List) All() []Diagnostic {
	return l.items
}

// Errors returns only the error-severity diagnostics, in order.
func (l *List) Errors() []Diagnostic {
	return l.filter(SeverityError)
}

// Warnings returns only the warning-severity diagnostics, in order.
func (l *List) Warnings() []Diagnostic {
	return l.filter(SeverityWarning)
}

func (l *List) filter(s Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range l.items {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether at least one error-severity diagnostic was
// accumulated.
func (l *List) HasErrors() bool {
	for _, d := range l.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasErrorsBesides reports whether an error-severity diagnostic with a
// code outside the given set was accumulated. Used to let generation
// proceed past non-blocking errors such as a dependency cycle.
func (l *List) HasErrorsBesides(codes ...string) bool {
	for _, d := range l.items {
		if d.Severity != SeverityError {
			continue
		}
		blocking := true
		for _, c := range codes {
			if d.Code == c {
				blocking = false
				break
			}
		}
		if blocking {
			return true
		}
	}
	return false
}

// Len returns the total number of diagnostics.
func (l *List) Len() int { return len(l.items) }

// Sorted returns a copy ordered by table, then column, then code, with
// errors before warnings within the same table. Used for deterministic
// report output.
func (l *List) Sorted() []Diagnostic {
	out := make([]Diagnostic, len(l.items))
	copy(out, l.items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		if out[i].Severity != out[j].Severity {
			return out[i].Severity == SeverityError
		}
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Code < out[j].Code
	})
	return out
}
