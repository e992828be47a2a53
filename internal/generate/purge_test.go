package generate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/schema"
)

func historyFor(name string) schema.Table {
	return schema.Table{
		Name:           name + "_history",
		Columns:        lifecycleCols(),
		IsHistoryTable: true,
	}
}

func TestPurgeProcedureUsesHistoryEligibility(t *testing.T) {
	g := newGenerator(t, sdTable("orders", schema.SoftDeleteCascade), historyFor("orders"))

	artifact, diags := g.PurgeProcedure()
	require.NotNil(t, artifact)
	require.False(t, diags.HasErrors())

	sql := artifact.SQL
	assert.True(t, strings.HasPrefix(sql, Header))
	assert.Contains(t, sql, "CREATE OR REPLACE PROCEDURE purge_soft_deleted(")
	assert.Contains(t, sql, "grace_days integer DEFAULT 30")
	assert.Contains(t, sql, "batch_limit integer DEFAULT 10000")
	assert.Contains(t, sql, "dry_run boolean DEFAULT FALSE")
	assert.Contains(t, sql, "make_interval(days => grace_days)")
	// Eligibility correlates the history row on the primary key.
	assert.Contains(t, sql, "FROM orders_history h")
	assert.Contains(t, sql, "t.id = h.id")
	assert.Contains(t, sql, "h.is_active")
	assert.Contains(t, sql, "h.valid_to <= cutoff")
	assert.Contains(t, sql, "GET DIAGNOSTICS removed = ROW_COUNT")
	assert.Contains(t, sql, "EXCEPTION WHEN OTHERS THEN")
	assert.NotContains(t, sql, "approximating eligibility")
}

func TestPurgeProcedureCorrelatesCompositeKeyHistory(t *testing.T) {
	tab := sdTable("tenant_orders", schema.SoftDeleteCascade)
	tab.PrimaryKey = &schema.PrimaryKey{Columns: []string{"tenant_id", "entity_id"}}
	tab.Columns = append(tab.Columns,
		schema.Column{Name: "tenant_id", DataType: "bigint"},
		schema.Column{Name: "entity_id", DataType: "bigint"})

	g := newGenerator(t, tab, historyFor("tenant_orders"))
	artifact, diags := g.PurgeProcedure()
	require.NotNil(t, artifact)
	require.False(t, diags.HasErrors())

	sql := artifact.SQL
	// Every key column correlates the history row.
	assert.Contains(t, sql, "t.tenant_id = h.tenant_id AND t.entity_id = h.entity_id")
	assert.Contains(t, sql, "SELECT count(*) INTO removed")
	assert.NotContains(t, sql, "approximating eligibility")
}

func TestPurgeProcedureFallsBackWithoutHistory(t *testing.T) {
	g := newGenerator(t, sdTable("orders", schema.SoftDeleteCascade))

	artifact, _ := g.PurgeProcedure()
	require.NotNil(t, artifact)
	assert.Contains(t, artifact.SQL, "approximating eligibility")
	assert.Contains(t, artifact.SQL, "t.valid_to <= cutoff")
	assert.NotContains(t, artifact.SQL, "EXISTS (")
}

func TestPurgeProcedureOrdersChildrenFirstAndCapsLaterBlocks(t *testing.T) {
	g := newGenerator(t,
		sdTable("orders", schema.SoftDeleteCascade),
		childOf("orders", "order_items", schema.SoftDeleteCascade),
	)

	artifact, _ := g.PurgeProcedure()
	require.NotNil(t, artifact)
	sql := artifact.SQL

	itemsAt := strings.Index(sql, "-- order_items")
	ordersAt := strings.Index(sql, "-- orders\n")
	require.GreaterOrEqual(t, itemsAt, 0)
	require.GreaterOrEqual(t, ordersAt, 0)
	assert.Less(t, itemsAt, ordersAt, "children must be purged before parents")

	// The first (leaf) block runs uncapped; later blocks batch on the key.
	firstBlock := sql[itemsAt:ordersAt]
	assert.NotContains(t, firstBlock, "LIMIT batch_limit")
	laterBlock := sql[ordersAt:]
	assert.Contains(t, laterBlock, "LIMIT batch_limit")
	assert.Contains(t, laterBlock, "(t.id) IN (")
}

func TestPurgeProcedureNilWithoutSoftDeleteTables(t *testing.T) {
	g := newGenerator(t, schema.Table{Name: "plain", Columns: lifecycleCols()})
	artifact, diags := g.PurgeProcedure()
	assert.Nil(t, artifact)
	assert.False(t, diags.HasErrors())
}

func TestPurgeProcedureWarnsOnCycle(t *testing.T) {
	a := sdTable("a", schema.SoftDeleteCascade)
	a.ForeignKeys = []schema.ForeignKey{{Columns: []string{"b_id"}, ReferencedTable: "b", ReferencedColumns: []string{"id"}}}
	b := sdTable("b", schema.SoftDeleteCascade)
	b.ForeignKeys = []schema.ForeignKey{{Columns: []string{"a_id"}, ReferencedTable: "a", ReferencedColumns: []string{"id"}}}

	g := newGenerator(t, a, b)
	_, diags := g.PurgeProcedure()

	found := false
	for _, d := range diags.Warnings() {
		if d.Code == diag.CodeCircularFK {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPurgeProcedureHonorsConfiguredName(t *testing.T) {
	g := newGenerator(t, sdTable("orders", schema.SoftDeleteCascade))
	g.Config.Generation.PurgeProcedureName = "reap_expired"

	artifact, _ := g.PurgeProcedure()
	require.NotNil(t, artifact)
	assert.Equal(t, "reap_expired", artifact.Name)
	assert.Equal(t, "reap_expired.sql", artifact.FileName)
	assert.Contains(t, artifact.SQL, "PROCEDURE reap_expired(")
}
