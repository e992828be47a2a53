// Package discovery introspects a live PostgreSQL database into the raw
// table facts the analysis pipeline consumes. It is one of two
// frontends; the other is a YAML descriptor file.
package discovery

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/schema"
)

// Postgres introspects a PostgreSQL schema into raw descriptors.
type Postgres struct {
	cfg    *config.SourceConfig
	pool   *pgxpool.Pool
	schema string // pg schema to introspect, defaults to "public"
}

// NewPostgres creates a new PostgreSQL introspector.
func NewPostgres(cfg *config.SourceConfig) (*Postgres, error) {
	s := cfg.Schema
	if s == "" {
		s = "public"
	}
	return &Postgres{cfg: cfg, schema: s}, nil
}

func (p *Postgres) Connect(ctx context.Context) error {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s default_query_exec_mode=simple_protocol",
		p.cfg.Host, p.cfg.Port, p.cfg.Database, p.cfg.Username, p.cfg.Password,
	)
	if p.cfg.SSL {
		connStr += " sslmode=require"
	} else {
		connStr += " sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	// Introspection is a handful of catalog queries; one connection is enough.
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}

	p.pool = pool
	return nil
}

// Discover reads tables, columns, keys, and constraints into a raw
// schema. Pattern flags are left unset; enrichment happens downstream.
func (p *Postgres) Discover(ctx context.Context) (*schema.Schema, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := p.discoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering tables: %w", err)
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
	}

	if err := p.discoverColumns(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering columns: %w", err)
	}

	if err := p.discoverPrimaryKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering primary keys: %w", err)
	}

	if err := p.discoverForeignKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering foreign keys: %w", err)
	}

	if err := p.discoverCheckConstraints(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering check constraints: %w", err)
	}

	if err := p.discoverUniqueConstraints(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("discovering unique constraints: %w", err)
	}

	return &schema.Schema{
		DatabaseType: "postgresql",
		Host:         p.cfg.Host,
		Database:     p.cfg.Database,
		SchemaName:   p.schema,
		Tables:       tables,
	}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// discoverTables lists all user tables in the schema.
func (p *Postgres) discoverTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT c.relname AS table_name
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := p.pool.Query(ctx, query, p.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// discoverColumns fetches all columns, including the identity and
// generated-always markers the temporal rules need.
func (p *Postgres) discoverColumns(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			table_name,
			column_name,
			data_type,
			is_nullable,
			column_default,
			is_identity,
			is_generated
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, colName, dataType, nullable string
			defaultVal                             *string
			isIdentity, isGenerated                string
		)
		if err := rows.Scan(&tableName, &colName, &dataType, &nullable, &defaultVal, &isIdentity, &isGenerated); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		t.Columns = append(t.Columns, schema.Column{
			Name:         colName,
			DataType:     dataType,
			Nullable:     nullable == "YES",
			DefaultValue: defaultVal,
			IsIdentity:   isIdentity == "YES",
			IsGenerated:  isGenerated == "ALWAYS",
		})
	}
	return rows.Err()
}

// discoverPrimaryKeys fetches primary key constraints and marks the
// member columns.
func (p *Postgres) discoverPrimaryKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, kcu.ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, colName string
		if err := rows.Scan(&tableName, &constraintName, &colName); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		if t.PrimaryKey == nil {
			t.PrimaryKey = &schema.PrimaryKey{Name: constraintName}
		}
		t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, colName)
		if col := t.Column(colName); col != nil {
			col.IsPrimaryKey = true
		}
	}
	return rows.Err()
}

// discoverForeignKeys fetches foreign-key relationships including
// composite keys and the on-delete action.
func (p *Postgres) discoverForeignKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column,
			rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		JOIN information_schema.referential_constraints rc
		  ON tc.constraint_name = rc.constraint_name
		  AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	// Composite FKs span multiple rows; group by constraint name.
	type fkKey struct{ table, constraint string }
	grouped := make(map[fkKey]*schema.ForeignKey)
	var order []fkKey

	for rows.Next() {
		var tableName, constraintName, column, refTable, refColumn, deleteRule string
		if err := rows.Scan(&tableName, &constraintName, &column, &refTable, &refColumn, &deleteRule); err != nil {
			return err
		}

		k := fkKey{tableName, constraintName}
		fk, exists := grouped[k]
		if !exists {
			fk = &schema.ForeignKey{
				Name:            constraintName,
				ReferencedTable: refTable,
				OnDelete:        deleteRule,
			}
			grouped[k] = fk
			order = append(order, k)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		t, ok := tableMap[k.table]
		if !ok {
			continue
		}
		fk := grouped[k]
		t.ForeignKeys = append(t.ForeignKeys, *fk)
		if len(fk.Columns) == 1 {
			if col := t.Column(fk.Columns[0]); col != nil {
				col.References = &schema.ColumnRef{Table: fk.ReferencedTable, Column: fk.ReferencedColumns[0]}
			}
		}
	}

	return nil
}

// discoverCheckConstraints fetches CHECK constraints (excluding the
// NOT NULL ones, which live on the column).
func (p *Postgres) discoverCheckConstraints(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			cc.check_clause
		FROM information_schema.table_constraints tc
		JOIN information_schema.check_constraints cc
		  ON tc.constraint_name = cc.constraint_name
		  AND tc.constraint_schema = cc.constraint_schema
		WHERE tc.constraint_type = 'CHECK'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		  AND tc.constraint_name NOT LIKE '%_not_null'
		ORDER BY tc.table_name, tc.constraint_name`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, checkClause string
		if err := rows.Scan(&tableName, &constraintName, &checkClause); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		t.Constraints = append(t.Constraints, schema.Constraint{
			Name:       constraintName,
			Type:       "check",
			Definition: checkClause,
		})
	}
	return rows.Err()
}

// discoverUniqueConstraints fetches unique indexes, including partial
// ones whose predicate the validation rules inspect.
func (p *Postgres) discoverUniqueConstraints(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			t.relname AS table_name,
			i.relname AS index_name,
			a.attname AS column_name,
			COALESCE(pg_get_expr(ix.indpred, ix.indrelid), '') AS predicate
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = ANY($2)
		  AND ix.indisunique
		  AND NOT ix.indisprimary
		ORDER BY t.relname, i.relname, array_position(ix.indkey, a.attnum)`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	type idxKey struct{ table, index string }
	grouped := make(map[idxKey]*schema.Constraint)
	var order []idxKey

	for rows.Next() {
		var tableName, indexName, colName, predicate string
		if err := rows.Scan(&tableName, &indexName, &colName, &predicate); err != nil {
			return err
		}

		k := idxKey{tableName, indexName}
		c, exists := grouped[k]
		if !exists {
			c = &schema.Constraint{
				Name:   indexName,
				Type:   "unique",
				Filter: predicate,
			}
			grouped[k] = c
			order = append(order, k)
		}
		c.Columns = append(c.Columns, colName)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		t, ok := tableMap[k.table]
		if !ok {
			continue
		}
		t.Constraints = append(t.Constraints, *grouped[k])
		if c := grouped[k]; len(c.Columns) == 1 {
			if col := t.Column(c.Columns[0]); col != nil {
				col.IsUnique = true
			}
		}
	}

	return nil
}

func tableNames(tableMap map[string]*schema.Table) []string {
	names := make([]string, 0, len(tableMap))
	for name := range tableMap {
		names = append(names, name)
	}
	return names
}
