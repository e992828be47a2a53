package config

import "github.com/reapersql/reaper/internal/schema"

const CurrentVersion = 1

// Config is the top-level configuration.
type Config struct {
	Version     int          `yaml:"version"`
	Source      SourceConfig `yaml:"source,omitempty"`
	Conventions Conventions  `yaml:"conventions,omitempty"`
	Features    Features     `yaml:"features,omitempty"`
	Generation  Generation   `yaml:"generation,omitempty"`
	Overrides   []Override   `yaml:"overrides,omitempty"`
	Validation  Validation   `yaml:"validation,omitempty"`
	Logging     LogConfig    `yaml:"logging,omitempty"`
}

// Validation toggles the individual rule checks. Nil means enabled.
// The always-on checks (primary keys, cycles, soft-delete shape, unique
// columns) have no toggle.
type Validation struct {
	ForeignKeys *bool `yaml:"foreign_keys,omitempty"`
	Polymorphic *bool `yaml:"polymorphic,omitempty"`
	Temporal    *bool `yaml:"temporal,omitempty"`
	Audit       *bool `yaml:"audit,omitempty"`
	Naming      *bool `yaml:"naming,omitempty"`
}

// SourceConfig defines the database connection used by live discovery.
type SourceConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	Schema   string `yaml:"schema,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSL      bool   `yaml:"ssl,omitempty"`
}

// Conventions names the columns and tables the pattern rules look for.
// Overrides may remap any of them per table, category, or glob pattern.
type Conventions struct {
	ActiveColumn        string               `yaml:"active_column,omitempty"`         // default is_active
	CreatedAtColumn     string               `yaml:"created_at_column,omitempty"`     // default created_at
	CreatedByColumn     string               `yaml:"created_by_column,omitempty"`     // default created_by
	UpdatedAtColumn     string               `yaml:"updated_at_column,omitempty"`     // default updated_at
	UpdatedByColumn     string               `yaml:"updated_by_column,omitempty"`     // default updated_by
	DeactivatedAtColumn string               `yaml:"deactivated_at_column,omitempty"` // default deleted_at
	PeriodStartColumn   string               `yaml:"period_start_column,omitempty"`   // default valid_from
	PeriodEndColumn     string               `yaml:"period_end_column,omitempty"`     // default valid_to
	HistoryTableSuffix  string               `yaml:"history_table_suffix,omitempty"`  // default _history
	AuditTable          string               `yaml:"audit_table,omitempty"`           // default users
	AuditIDColumn       string               `yaml:"audit_id_column,omitempty"`       // default id
	PolymorphicPatterns []PolymorphicPattern `yaml:"polymorphic_patterns,omitempty"`
}

// PolymorphicPattern is one (type column, id column) pair the detector
// probes for.
type PolymorphicPattern struct {
	TypeColumn string `yaml:"type_column"`
	IDColumn   string `yaml:"id_column"`
}

// Features holds the global feature gates. Each flag is tri-state:
// explicit true, explicit false, or nil meaning inherit the default.
type Features struct {
	SoftDelete          *bool `yaml:"soft_delete,omitempty"`
	AppendOnly          *bool `yaml:"append_only,omitempty"`
	Polymorphic         *bool `yaml:"polymorphic,omitempty"`
	AuditWiring         *bool `yaml:"audit_wiring,omitempty"`
	ReactivationCascade *bool `yaml:"reactivation_cascade,omitempty"`
}

// Generation holds the code-generation settings.
type Generation struct {
	Dialect            string `yaml:"dialect,omitempty"`              // only postgres
	OutputDir          string `yaml:"output_dir,omitempty"`           // default generated
	PurgeProcedureName string `yaml:"purge_procedure_name,omitempty"` // default purge_soft_deleted
	ActiveViewPattern  string `yaml:"active_view_pattern,omitempty"`  // default vw_{table}_active
	DeletedViewPattern string `yaml:"deleted_view_pattern,omitempty"` // default vw_{table}_deleted
	GraceDays          int    `yaml:"grace_days,omitempty"`           // default 30
	BatchSize          int    `yaml:"batch_size,omitempty"`           // default 10000
	ToleranceMillis    int    `yaml:"tolerance_millis,omitempty"`     // default 2000
	Force              bool   `yaml:"force,omitempty"`
}

// Override is one configuration layer. Exactly one of Table, Category,
// or Pattern selects the tables it applies to; every other field is
// optional and falls through to the next layer when unset.
type Override struct {
	Table    string `yaml:"table,omitempty"`
	Category string `yaml:"category,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`

	SoftDelete          *bool  `yaml:"soft_delete,omitempty"`
	SoftDeleteMode      string `yaml:"soft_delete_mode,omitempty"`
	AppendOnly          *bool  `yaml:"append_only,omitempty"`
	Polymorphic         *bool  `yaml:"polymorphic,omitempty"`
	AuditWiring         *bool  `yaml:"audit_wiring,omitempty"`
	ReactivationCascade *bool  `yaml:"reactivation_cascade,omitempty"`
	ToleranceMillis     *int   `yaml:"tolerance_millis,omitempty"`

	ActiveColumn        string `yaml:"active_column,omitempty"`
	CreatedAtColumn     string `yaml:"created_at_column,omitempty"`
	CreatedByColumn     string `yaml:"created_by_column,omitempty"`
	UpdatedByColumn     string `yaml:"updated_by_column,omitempty"`
	DeactivatedAtColumn string `yaml:"deactivated_at_column,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.reaper/logs/
}

// Effective is the configuration one table sees after every layer has
// been applied. All tri-state flags are collapsed to concrete values.
type Effective struct {
	Conventions Conventions

	SoftDelete          bool
	SoftDeleteMode      schema.SoftDeleteMode
	AppendOnly          bool
	Polymorphic         bool
	AuditWiring         bool
	ReactivationCascade bool
	ToleranceMillis     int
}
