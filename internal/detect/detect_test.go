package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapersql/reaper/internal/config"
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

func softDeleteTable(name string) schema.Table {
	return schema.Table{
		Name:       name,
		Columns:    cols("id", "is_active", "valid_from", "valid_to", "created_by", "updated_by"),
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}
}

func enrich(t *testing.T, tables ...schema.Table) (*schema.Schema, diag.List) {
	t.Helper()
	d := &Detector{Config: config.Default()}
	return d.Enrich(&schema.Schema{Tables: tables})
}

func TestTemporalDetection(t *testing.T) {
	s, _ := enrich(t,
		schema.Table{Name: "orders", Columns: cols("id", "valid_from", "valid_to")},
		schema.Table{Name: "notes", Columns: cols("id", "valid_from")},
	)

	orders := s.Table("orders")
	assert.True(t, orders.HasTemporalVersioning)
	assert.Equal(t, "orders_history", orders.HistoryTable)

	// One period column alone is not temporal.
	assert.False(t, s.Table("notes").HasTemporalVersioning)
	assert.Empty(t, s.Table("notes").HistoryTable)
}

func TestSoftDeleteRequiresActiveAndTemporal(t *testing.T) {
	s, _ := enrich(t,
		softDeleteTable("orders"),
		schema.Table{Name: "flags", Columns: cols("id", "is_active")},
		schema.Table{Name: "versions", Columns: cols("id", "valid_from", "valid_to")},
	)

	orders := s.Table("orders")
	assert.True(t, orders.HasSoftDelete)
	assert.Equal(t, schema.SoftDeleteCascade, orders.SoftDeleteMode)

	assert.False(t, s.Table("flags").HasSoftDelete)
	assert.True(t, s.Table("flags").HasActiveColumn)
	assert.False(t, s.Table("versions").HasSoftDelete)
}

func TestSoftDeleteFeatureGate(t *testing.T) {
	cfg := config.Default()
	off := false
	cfg.Features.SoftDelete = &off
	d := &Detector{Config: cfg}

	s, _ := d.Enrich(&schema.Schema{Tables: []schema.Table{softDeleteTable("orders")}})
	assert.False(t, s.Table("orders").HasSoftDelete)
}

func TestInputSchemaIsNotMutated(t *testing.T) {
	raw := &schema.Schema{Tables: []schema.Table{softDeleteTable("orders")}}
	d := &Detector{Config: config.Default()}
	_, _ = d.Enrich(raw)

	assert.False(t, raw.Tables[0].HasSoftDelete)
	assert.Empty(t, raw.Tables[0].ForeignKeys)
}

func TestAppendOnlyDetection(t *testing.T) {
	s, _ := enrich(t,
		schema.Table{Name: "audit_log", Columns: cols("id", "created_at", "created_by")},
		schema.Table{Name: "edited", Columns: cols("id", "created_at", "updated_by")},
		schema.Table{Name: "versioned", Columns: cols("id", "created_at", "valid_from", "valid_to")},
	)

	assert.True(t, s.Table("audit_log").IsAppendOnly)
	// An updated-by column disqualifies append-only.
	assert.False(t, s.Table("edited").IsAppendOnly)
	// Temporal versioning disqualifies append-only.
	assert.False(t, s.Table("versioned").IsAppendOnly)
}

func TestPolymorphicDetectionMinesCheckValues(t *testing.T) {
	s, _ := enrich(t, schema.Table{
		Name:    "comments",
		Columns: cols("id", "owner_type", "owner_id"),
		Constraints: []schema.Constraint{{
			Name:       "comments_owner_type_chk",
			Type:       "check",
			Definition: "owner_type IN ('post', 'photo', 'user''s page')",
		}},
	})

	c := s.Table("comments")
	require.True(t, c.IsPolymorphic)
	require.NotNil(t, c.Polymorphic)
	assert.Equal(t, "owner_type", c.Polymorphic.TypeColumn)
	assert.Equal(t, []string{"post", "photo", "user's page"}, c.Polymorphic.AllowedValues)
	assert.True(t, c.Column("owner_type").IsPolymorphicFK)
	assert.True(t, c.Column("owner_id").IsPolymorphicFK)
}

func TestPolymorphicMinesNormalizedCheckClause(t *testing.T) {
	// information_schema.check_constraints rewrites an IN list into the
	// "= ANY (ARRAY[...])" form; live-discovered schemas only ever carry
	// that spelling.
	s, _ := enrich(t, schema.Table{
		Name:    "comments",
		Columns: cols("id", "owner_type", "owner_id"),
		Constraints: []schema.Constraint{{
			Name:       "comments_owner_type_chk",
			Type:       "check",
			Definition: "(((owner_type)::text = ANY ((ARRAY['post'::character varying, 'photo'::character varying, 'user''s page'::character varying])::text[])))",
		}},
	})

	c := s.Table("comments")
	require.True(t, c.IsPolymorphic)
	require.NotNil(t, c.Polymorphic)
	assert.Equal(t, []string{"post", "photo", "user's page"}, c.Polymorphic.AllowedValues)
}

func TestPolymorphicFirstPatternWins(t *testing.T) {
	cfg := config.Default()
	cfg.Conventions.PolymorphicPatterns = []config.PolymorphicPattern{
		{TypeColumn: "subject_type", IDColumn: "subject_id"},
		{TypeColumn: "owner_type", IDColumn: "owner_id"},
	}
	d := &Detector{Config: cfg}

	s, _ := d.Enrich(&schema.Schema{Tables: []schema.Table{{
		Name:    "events",
		Columns: cols("id", "subject_type", "subject_id", "owner_type", "owner_id"),
	}}})

	e := s.Table("events")
	require.True(t, e.IsPolymorphic)
	assert.Equal(t, "subject_type", e.Polymorphic.TypeColumn)
	assert.False(t, e.Column("owner_type").IsPolymorphicFK)
}

func TestPolymorphicWithoutCheckStillDetects(t *testing.T) {
	s, _ := enrich(t, schema.Table{Name: "comments", Columns: cols("id", "owner_type", "owner_id")})
	c := s.Table("comments")
	require.True(t, c.IsPolymorphic)
	assert.Nil(t, c.Polymorphic.AllowedValues)
}

func TestHistoryTableMarkingAndExclusion(t *testing.T) {
	history := schema.Table{
		Name:    "Orders_History",
		Columns: cols("id", "is_active", "valid_from", "valid_to", "owner_type", "owner_id", "created_at"),
	}
	s, _ := enrich(t, softDeleteTable("orders"), history)

	h := s.Table("orders_history")
	require.NotNil(t, h)
	// Matched case-insensitively against the declared name.
	assert.True(t, h.IsHistoryTable)
	// History tables are excluded from pattern analysis.
	assert.False(t, h.HasSoftDelete)
	assert.False(t, h.IsPolymorphic)
	assert.False(t, h.IsAppendOnly)
	// But local facts are still recorded.
	assert.True(t, h.HasActiveColumn)
	assert.True(t, h.HasTemporalVersioning)
}

func TestAuditWiringAddsImplicitForeignKeys(t *testing.T) {
	s, _ := enrich(t,
		schema.Table{Name: "users", Columns: cols("id", "created_by", "updated_by")},
		softDeleteTable("orders"),
	)

	orders := s.Table("orders")
	require.Len(t, orders.ForeignKeys, 2)
	for _, fk := range orders.ForeignKeys {
		assert.True(t, fk.Implicit)
		assert.Equal(t, "users", fk.ReferencedTable)
		assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	}
	assert.Equal(t, "fk_orders_created_by_audit", orders.ForeignKeys[0].Name)
	require.NotNil(t, orders.Column("created_by").References)
	assert.Equal(t, "users", orders.Column("created_by").References.Table)

	// The audit table itself is never wired to itself.
	assert.Empty(t, s.Table("users").ForeignKeys)
}

func TestAuditWiringSkipsDeclaredForeignKeys(t *testing.T) {
	tab := softDeleteTable("orders")
	tab.ForeignKeys = []schema.ForeignKey{{
		Name: "orders_created_by_fkey", Columns: []string{"created_by"},
		ReferencedTable: "users", ReferencedColumns: []string{"id"},
	}}
	s, _ := enrich(t, tab, schema.Table{Name: "users", Columns: cols("id")})

	orders := s.Table("orders")
	// Only updated_by gained an implicit key.
	require.Len(t, orders.ForeignKeys, 2)
	assert.False(t, orders.ForeignKeys[0].Implicit)
	assert.True(t, orders.ForeignKeys[1].Implicit)
	assert.Equal(t, []string{"updated_by"}, orders.ForeignKeys[1].Columns)
}

func TestDuplicateTableNamesReported(t *testing.T) {
	_, diags := enrich(t,
		schema.Table{Name: "orders", Columns: cols("id")},
		schema.Table{Name: "ORDERS", Columns: cols("id")},
	)

	require.True(t, diags.HasErrors())
	assert.Equal(t, diag.CodeDuplicateTable, diags.Errors()[0].Code)
}

func TestUnknownSoftDeleteModeFallsBackToCascade(t *testing.T) {
	cfg := config.Default()
	cfg.Overrides = []config.Override{{Table: "orders", SoftDeleteMode: "obliterate"}}
	d := &Detector{Config: cfg}

	s, diags := d.Enrich(&schema.Schema{Tables: []schema.Table{softDeleteTable("orders")}})

	assert.Equal(t, schema.SoftDeleteCascade, s.Table("orders").SoftDeleteMode)
	require.Len(t, diags.Warnings(), 1)
	assert.Equal(t, diag.CodeOverrideConflict, diags.Warnings()[0].Code)
}

func TestReactivationCascadeOptIn(t *testing.T) {
	cfg := config.Default()
	on := true
	cfg.Overrides = []config.Override{{Table: "orders", ReactivationCascade: &on}}
	d := &Detector{Config: cfg}

	s, _ := d.Enrich(&schema.Schema{Tables: []schema.Table{softDeleteTable("orders")}})

	orders := s.Table("orders")
	assert.True(t, orders.ReactivationCascade)
	assert.Equal(t, 2000, orders.ReactivationToleranceMillis)
}
