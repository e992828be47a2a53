package schema

import "strings"

// SoftDeleteMode controls how a parent table's deactivation affects rows
// referencing it.
type SoftDeleteMode string

const (
	SoftDeleteCascade  SoftDeleteMode = "cascade"
	SoftDeleteRestrict SoftDeleteMode = "restrict"
	SoftDeleteIgnore   SoftDeleteMode = "ignore"
)

// Schema is the full set of table descriptors for one run.
type Schema struct {
	DatabaseType string  `yaml:"database_type,omitempty"` // postgresql
	Host         string  `yaml:"host,omitempty"`
	Database     string  `yaml:"database,omitempty"`
	SchemaName   string  `yaml:"schema_name,omitempty"`
	Tables       []Table `yaml:"tables"`
}

// Table is one table descriptor. The raw facts (columns, keys,
// constraints) come from the frontend; the remaining fields are filled in
// by pattern detection and graph analysis. Descriptors are treated as
// immutable values: every enrichment stage clones before writing.
type Table struct {
	Name        string       `yaml:"name"`
	Schema      string       `yaml:"schema,omitempty"`
	Category    string       `yaml:"category,omitempty"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  *PrimaryKey  `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
	Constraints []Constraint `yaml:"constraints,omitempty"`

	// Detected patterns.
	HasActiveColumn       bool              `yaml:"has_active_column,omitempty"`
	HasTemporalVersioning bool              `yaml:"has_temporal_versioning,omitempty"`
	HasSoftDelete         bool              `yaml:"has_soft_delete,omitempty"`
	SoftDeleteMode        SoftDeleteMode    `yaml:"soft_delete_mode,omitempty"`
	IsAppendOnly          bool              `yaml:"is_append_only,omitempty"`
	IsPolymorphic         bool              `yaml:"is_polymorphic,omitempty"`
	Polymorphic           *PolymorphicOwner `yaml:"polymorphic,omitempty"`
	IsHistoryTable        bool              `yaml:"is_history_table,omitempty"`
	HistoryTable          string            `yaml:"history_table,omitempty"`

	// Graph-derived fields, recomputed after the full set exists.
	IsLeafTable bool     `yaml:"is_leaf_table,omitempty"`
	ChildTables []string `yaml:"child_tables,omitempty"`

	// Reactivation cascade opt-in and its timestamp tolerance.
	ReactivationCascade         bool `yaml:"reactivation_cascade,omitempty"`
	ReactivationToleranceMillis int  `yaml:"reactivation_tolerance_millis,omitempty"`
}

// Column is one column descriptor.
type Column struct {
	Name            string     `yaml:"name"`
	DataType        string     `yaml:"data_type"`
	Nullable        bool       `yaml:"nullable"`
	DefaultValue    *string    `yaml:"default_value,omitempty"`
	IsPrimaryKey    bool       `yaml:"is_primary_key,omitempty"`
	IsUnique        bool       `yaml:"is_unique,omitempty"`
	IsIdentity      bool       `yaml:"is_identity,omitempty"`
	IsGenerated     bool       `yaml:"is_generated,omitempty"` // generated-always temporal period columns
	IsPolymorphicFK bool       `yaml:"is_polymorphic_fk,omitempty"`
	References      *ColumnRef `yaml:"references,omitempty"`
}

// ColumnRef points a single column at a referenced table column.
type ColumnRef struct {
	Table  string `yaml:"table"`
	Schema string `yaml:"schema,omitempty"`
	Column string `yaml:"column"`
}

// PrimaryKey names the primary-key constraint and its columns in order.
type PrimaryKey struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
}

// ForeignKey is one foreign-key reference, possibly multi-column.
// Implicit marks references synthesized by audit-column wiring rather
// than declared in the DDL.
type ForeignKey struct {
	Name              string   `yaml:"name,omitempty"`
	Columns           []string `yaml:"columns"`
	ReferencedTable   string   `yaml:"referenced_table"`
	ReferencedSchema  string   `yaml:"referenced_schema,omitempty"`
	ReferencedColumns []string `yaml:"referenced_columns"`
	OnDelete          string   `yaml:"on_delete,omitempty"`
	Implicit          bool     `yaml:"implicit,omitempty"`
}

// Constraint is a check or unique constraint.
type Constraint struct {
	Name       string   `yaml:"name,omitempty"`
	Type       string   `yaml:"type"` // check or unique
	Columns    []string `yaml:"columns,omitempty"`
	Definition string   `yaml:"definition,omitempty"` // check expression
	Filter     string   `yaml:"filter,omitempty"`     // partial-unique predicate
}

// PolymorphicOwner records the owner-type/owner-id column pair and the
// allowed owner values mined from the referencing CHECK constraint.
type PolymorphicOwner struct {
	TypeColumn    string   `yaml:"type_column"`
	IDColumn      string   `yaml:"id_column"`
	AllowedValues []string `yaml:"allowed_values,omitempty"`
}

// Column returns the column with the given name, matched
// case-insensitively, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	return name != "" && t.Column(name) != nil
}

// PrimaryKeyColumns returns the primary-key column names, or nil when the
// table has no primary key.
func (t *Table) PrimaryKeyColumns() []string {
	if t.PrimaryKey == nil {
		return nil
	}
	return t.PrimaryKey.Columns
}

// Clone returns a deep copy of the table descriptor. Enrichment stages
// clone first so the input set is never mutated.
func (t *Table) Clone() Table {
	out := *t
	out.Columns = make([]Column, len(t.Columns))
	copy(out.Columns, t.Columns)
	for i := range out.Columns {
		if ref := out.Columns[i].References; ref != nil {
			r := *ref
			out.Columns[i].References = &r
		}
	}
	if t.PrimaryKey != nil {
		pk := PrimaryKey{Name: t.PrimaryKey.Name, Columns: append([]string(nil), t.PrimaryKey.Columns...)}
		out.PrimaryKey = &pk
	}
	out.ForeignKeys = make([]ForeignKey, len(t.ForeignKeys))
	for i, fk := range t.ForeignKeys {
		fk.Columns = append([]string(nil), fk.Columns...)
		fk.ReferencedColumns = append([]string(nil), fk.ReferencedColumns...)
		out.ForeignKeys[i] = fk
	}
	out.Constraints = make([]Constraint, len(t.Constraints))
	for i, c := range t.Constraints {
		c.Columns = append([]string(nil), c.Columns...)
		out.Constraints[i] = c
	}
	if t.Polymorphic != nil {
		p := *t.Polymorphic
		p.AllowedValues = append([]string(nil), t.Polymorphic.AllowedValues...)
		out.Polymorphic = &p
	}
	out.ChildTables = append([]string(nil), t.ChildTables...)
	return out
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	out := *s
	out.Tables = make([]Table, len(s.Tables))
	for i := range s.Tables {
		out.Tables[i] = s.Tables[i].Clone()
	}
	return &out
}

// Table returns the descriptor with the given name, matched
// case-insensitively, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i]
		}
	}
	return nil
}
