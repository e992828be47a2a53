package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/depgraph"
	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/schema"
)

func cols(names ...string) []schema.Column {
	out := make([]schema.Column, len(names))
	for i, n := range names {
		out[i] = schema.Column{Name: n, DataType: "text"}
	}
	return out
}

func auditedTable(name string) schema.Table {
	return schema.Table{
		Name:       name,
		Columns:    cols("id", "created_by", "updated_by"),
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}
}

func validateSchema(t *testing.T, cfg *config.Config, tables ...schema.Table) diag.List {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	s := &schema.Schema{Tables: tables}
	v := &Validator{Config: cfg, Schema: s, Graph: depgraph.Build(s)}
	return v.Validate()
}

func codes(diags diag.List) map[string]int {
	out := make(map[string]int)
	for _, d := range diags.All() {
		out[d.Code]++
	}
	return out
}

func TestCleanSchemaPasses(t *testing.T) {
	diags := validateSchema(t, nil, auditedTable("users"))
	assert.False(t, diags.HasErrors())
}

func TestForeignKeyTargetMissingSuggestsClosest(t *testing.T) {
	tab := auditedTable("orders")
	tab.ForeignKeys = []schema.ForeignKey{{
		Name: "fk_orders_users", Columns: []string{"created_by"},
		ReferencedTable: "userz", ReferencedColumns: []string{"id"},
	}}
	diags := validateSchema(t, nil, tab, auditedTable("users"))

	require.True(t, diags.HasErrors())
	var msg string
	for _, d := range diags.Errors() {
		if d.Code == diag.CodeFKTargetMissing {
			msg = d.Message
		}
	}
	assert.Contains(t, msg, `"userz"`)
	assert.Contains(t, msg, `did you mean "users"?`)
}

func TestForeignKeyColumnChecks(t *testing.T) {
	tab := auditedTable("orders")
	tab.ForeignKeys = []schema.ForeignKey{{
		Name: "fk_bad", Columns: []string{"no_such_col", "other"},
		ReferencedTable: "users", ReferencedColumns: []string{"id"},
	}}
	diags := validateSchema(t, nil, tab, auditedTable("users"))

	c := codes(diags)
	assert.Equal(t, 1, c[diag.CodeFKColumnCount])
	assert.Equal(t, 2, c[diag.CodeFKColumnMissing])
}

func TestPolymorphicRequiresAllowedValues(t *testing.T) {
	tab := auditedTable("comments")
	tab.Columns = append(tab.Columns, cols("owner_type", "owner_id")...)
	tab.IsPolymorphic = true
	tab.Polymorphic = &schema.PolymorphicOwner{TypeColumn: "owner_type", IDColumn: "owner_id"}

	diags := validateSchema(t, nil, tab)
	assert.Equal(t, 1, codes(diags)[diag.CodePolymorphicCheck])
}

func TestPolymorphicOnHistoryTableIsAnError(t *testing.T) {
	tab := auditedTable("comments_history")
	tab.IsHistoryTable = true
	tab.IsPolymorphic = true
	tab.Polymorphic = &schema.PolymorphicOwner{TypeColumn: "owner_type", IDColumn: "owner_id", AllowedValues: []string{"post"}}

	diags := validateSchema(t, nil, tab)
	assert.Equal(t, 1, codes(diags)[diag.CodePolymorphicCheck])
}

func TestTemporalColumnsMustBeGenerated(t *testing.T) {
	tab := auditedTable("orders")
	tab.HasTemporalVersioning = true
	tab.HistoryTable = "orders_history"
	tab.Columns = append(tab.Columns,
		schema.Column{Name: "valid_from", DataType: "timestamptz", IsGenerated: true},
		schema.Column{Name: "valid_to", DataType: "timestamptz"}, // not generated
	)

	diags := validateSchema(t, nil, tab)
	c := codes(diags)
	assert.Equal(t, 1, c[diag.CodeTemporalColumns])
	// Missing history table is a warning, not an error.
	assert.Equal(t, 1, c[diag.CodeHistoryMissing])
	for _, d := range diags.All() {
		if d.Code == diag.CodeHistoryMissing {
			assert.Equal(t, diag.SeverityWarning, d.Severity)
		}
	}
}

func TestTemporalChecksSkipHistoryTables(t *testing.T) {
	base := auditedTable("orders")
	base.HasTemporalVersioning = true
	base.HasActiveColumn = true
	base.HistoryTable = "orders_history"
	base.Columns = append(base.Columns,
		schema.Column{Name: "is_active", DataType: "boolean"},
		schema.Column{Name: "valid_from", DataType: "timestamptz", IsGenerated: true},
		schema.Column{Name: "valid_to", DataType: "timestamptz", IsGenerated: true},
	)

	// A history table carries plain, insertable copies of the period
	// columns and gets flagged temporal before history marking runs.
	hist := schema.Table{
		Name: "orders_history",
		Columns: append(cols("id"),
			schema.Column{Name: "valid_from", DataType: "timestamptz"},
			schema.Column{Name: "valid_to", DataType: "timestamptz"},
		),
		HasTemporalVersioning: true,
		HistoryTable:          "orders_history_history",
		IsHistoryTable:        true,
	}

	diags := validateSchema(t, nil, base, hist)
	c := codes(diags)
	assert.Zero(t, c[diag.CodeTemporalColumns])
	assert.Zero(t, c[diag.CodeHistoryMissing])
	assert.False(t, diags.HasErrors())
}

func TestAuditColumnsRequiredOnOrdinaryTables(t *testing.T) {
	tab := schema.Table{
		Name:       "orders",
		Columns:    cols("id"),
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}
	diags := validateSchema(t, nil, tab)
	assert.Equal(t, 2, codes(diags)[diag.CodeAuditColumns])
	assert.True(t, diags.HasErrors())
}

func TestAuditChecksRelaxForAppendOnly(t *testing.T) {
	tab := schema.Table{
		Name:         "event_log",
		Columns:      cols("id", "created_at", "created_by", "updated_by"),
		PrimaryKey:   &schema.PrimaryKey{Columns: []string{"id"}},
		IsAppendOnly: true,
	}
	diags := validateSchema(t, nil, tab)

	// updated_by present on append-only: warning only.
	assert.False(t, diags.HasErrors())
	assert.Equal(t, 1, codes(diags)[diag.CodeAuditColumns])
}

func TestMissingPrimaryKeyIsOneErrorPerTable(t *testing.T) {
	diags := validateSchema(t, nil, schema.Table{Name: "orders", Columns: cols("id", "created_by", "updated_by")})
	assert.Equal(t, 1, codes(diags)[diag.CodeNoPrimaryKey])
}

func TestHistoryTablesSkipPrimaryKeyAndAuditChecks(t *testing.T) {
	tab := schema.Table{Name: "orders_history", Columns: cols("id"), IsHistoryTable: true}
	diags := validateSchema(t, nil, tab)
	c := codes(diags)
	assert.Zero(t, c[diag.CodeNoPrimaryKey])
	assert.Zero(t, c[diag.CodeAuditColumns])
}

func TestCircularDependencyReported(t *testing.T) {
	a := auditedTable("a")
	a.ForeignKeys = []schema.ForeignKey{{Columns: []string{"id"}, ReferencedTable: "b", ReferencedColumns: []string{"id"}}}
	b := auditedTable("b")
	b.ForeignKeys = []schema.ForeignKey{{Columns: []string{"id"}, ReferencedTable: "a", ReferencedColumns: []string{"id"}}}

	diags := validateSchema(t, nil, a, b)
	require.Equal(t, 1, codes(diags)[diag.CodeCircularFK])
	var msg string
	for _, d := range diags.Errors() {
		if d.Code == diag.CodeCircularFK {
			msg = d.Message
		}
	}
	assert.Contains(t, msg, " -> ")
}

func TestActiveColumnWithoutTemporalIsAnError(t *testing.T) {
	tab := auditedTable("orders")
	tab.Columns = append(tab.Columns, cols("is_active")...)
	tab.HasActiveColumn = true

	diags := validateSchema(t, nil, tab)
	assert.Equal(t, 1, codes(diags)[diag.CodeSoftDeleteShape])
}

func TestTemporalWithoutActiveColumnIsAWarning(t *testing.T) {
	tab := auditedTable("rates")
	tab.HasTemporalVersioning = true
	tab.HistoryTable = "rates_history"
	tab.Columns = append(tab.Columns,
		schema.Column{Name: "valid_from", DataType: "timestamptz", IsGenerated: true},
		schema.Column{Name: "valid_to", DataType: "timestamptz", IsGenerated: true},
	)
	hist := schema.Table{Name: "rates_history", Columns: cols("id"), IsHistoryTable: true}

	diags := validateSchema(t, nil, tab, hist)
	assert.False(t, diags.HasErrors())
	found := false
	for _, d := range diags.Warnings() {
		if d.Code == diag.CodeSoftDeleteShape && d.Table == "rates" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFilteredUniqueShouldFilterOnActiveColumn(t *testing.T) {
	tab := auditedTable("orders")
	tab.HasSoftDelete = true
	tab.HasActiveColumn = true
	tab.HasTemporalVersioning = true
	tab.Columns = append(tab.Columns, cols("is_active", "email")...)
	tab.Constraints = []schema.Constraint{
		{Name: "orders_email_uq", Type: "unique", Columns: []string{"email"}, Filter: "deleted_at IS NULL"},
	}

	diags := validateSchema(t, nil, tab)
	assert.Equal(t, 1, codes(diags)[diag.CodeUniqueFilter])
}

func TestUniqueColumnMustExist(t *testing.T) {
	tab := auditedTable("orders")
	tab.Constraints = []schema.Constraint{{Name: "uq", Type: "unique", Columns: []string{"phantom"}}}
	diags := validateSchema(t, nil, tab)
	assert.Equal(t, 1, codes(diags)[diag.CodeUniqueColumns])
}

func TestNamingConventions(t *testing.T) {
	diags := validateSchema(t, nil,
		schema.Table{Name: "OrderItems", Columns: cols("ID", "created_by", "updated_by"), PrimaryKey: &schema.PrimaryKey{Columns: []string{"ID"}}},
		schema.Table{Name: "order", Columns: cols("id", "created_by", "updated_by"), PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}}},
	)

	c := codes(diags)
	// OrderItems: table not snake_case, ID column not snake_case.
	// order: singular.
	assert.Equal(t, 3, c[diag.CodeNaming])
	for _, d := range diags.All() {
		if d.Code == diag.CodeNaming {
			assert.Equal(t, diag.SeverityWarning, d.Severity)
		}
	}
}

func TestTogglesDisableChecks(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Validation.ForeignKeys = &off
	cfg.Validation.Naming = &off

	tab := schema.Table{
		Name:       "BadName",
		Columns:    cols("id", "created_by", "updated_by"),
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
		ForeignKeys: []schema.ForeignKey{{
			Columns: []string{"x"}, ReferencedTable: "nowhere", ReferencedColumns: []string{"id"},
		}},
	}
	diags := validateSchema(t, cfg, tab)
	c := codes(diags)
	assert.Zero(t, c[diag.CodeFKTargetMissing])
	assert.Zero(t, c[diag.CodeNaming])
}
