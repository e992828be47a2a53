package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "~/.reaper/reaper.yaml"

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.validateOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Default returns a config with every default applied, suitable for runs
// without a config file.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset scalar with its documented default.
func (c *Config) ApplyDefaults() {
	cv := &c.Conventions
	setIfEmpty(&cv.ActiveColumn, "is_active")
	setIfEmpty(&cv.CreatedAtColumn, "created_at")
	setIfEmpty(&cv.CreatedByColumn, "created_by")
	setIfEmpty(&cv.UpdatedAtColumn, "updated_at")
	setIfEmpty(&cv.UpdatedByColumn, "updated_by")
	setIfEmpty(&cv.DeactivatedAtColumn, "deleted_at")
	setIfEmpty(&cv.PeriodStartColumn, "valid_from")
	setIfEmpty(&cv.PeriodEndColumn, "valid_to")
	setIfEmpty(&cv.HistoryTableSuffix, "_history")
	setIfEmpty(&cv.AuditTable, "users")
	setIfEmpty(&cv.AuditIDColumn, "id")
	if len(cv.PolymorphicPatterns) == 0 {
		cv.PolymorphicPatterns = []PolymorphicPattern{
			{TypeColumn: "owner_type", IDColumn: "owner_id"},
		}
	}

	g := &c.Generation
	setIfEmpty(&g.Dialect, "postgres")
	setIfEmpty(&g.OutputDir, "generated")
	setIfEmpty(&g.PurgeProcedureName, "purge_soft_deleted")
	setIfEmpty(&g.ActiveViewPattern, "vw_{table}_active")
	setIfEmpty(&g.DeletedViewPattern, "vw_{table}_deleted")
	if g.GraceDays == 0 {
		g.GraceDays = 30
	}
	if g.BatchSize == 0 {
		g.BatchSize = 10000
	}
	if g.ToleranceMillis == 0 {
		g.ToleranceMillis = 2000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.reaper/logs/")
	}
}

func setIfEmpty(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// validateOverrides rejects layers that name zero or more than one
// selector. Silently guessing which selector wins would hide typos.
func (c *Config) validateOverrides() error {
	for i, o := range c.Overrides {
		n := 0
		for _, sel := range []string{o.Table, o.Category, o.Pattern} {
			if sel != "" {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("override %d: exactly one of table, category, or pattern must be set", i)
		}
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{ENV:([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Source.Password, err = ResolveValue(c.Source.Password)
	if err != nil {
		return fmt.Errorf("source password: %w", err)
	}
	return nil
}

// ResolveValue resolves ${ENV:NAME} references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	name := matches[1]
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("environment variable %s not set", name)
	}
	return v, nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
