package config

import (
	"strings"

	"github.com/ryanuber/go-glob"

	"github.com/reapersql/reaper/internal/schema"
)

// Resolve merges every applicable configuration layer into the effective
// configuration for one table. Precedence, highest first: exact table
// name, category, glob pattern, global defaults. Each layer may leave
// fields unset, which fall through to the next layer.
//
// When several glob overrides match the same table, the first one in
// declared override order wins; later matches are ignored entirely
// rather than merged, so a table's glob layer is always a single
// override. Resolution is pure: no I/O, no mutation of the config.
func (c *Config) Resolve(tableName, category string) Effective {
	eff := Effective{
		Conventions:         c.Conventions,
		SoftDelete:          boolOr(c.Features.SoftDelete, true),
		SoftDeleteMode:      schema.SoftDeleteCascade,
		AppendOnly:          boolOr(c.Features.AppendOnly, true),
		Polymorphic:         boolOr(c.Features.Polymorphic, true),
		AuditWiring:         boolOr(c.Features.AuditWiring, true),
		ReactivationCascade: boolOr(c.Features.ReactivationCascade, false),
		ToleranceMillis:     c.Generation.ToleranceMillis,
	}

	// Apply lowest precedence first so higher layers overwrite.
	if o := c.globLayer(tableName); o != nil {
		eff.apply(o)
	}
	if o := c.categoryLayer(category); o != nil {
		eff.apply(o)
	}
	if o := c.tableLayer(tableName); o != nil {
		eff.apply(o)
	}
	return eff
}

func (c *Config) tableLayer(tableName string) *Override {
	for i := range c.Overrides {
		if c.Overrides[i].Table != "" && strings.EqualFold(c.Overrides[i].Table, tableName) {
			return &c.Overrides[i]
		}
	}
	return nil
}

func (c *Config) categoryLayer(category string) *Override {
	if category == "" {
		return nil
	}
	for i := range c.Overrides {
		if c.Overrides[i].Category != "" && strings.EqualFold(c.Overrides[i].Category, category) {
			return &c.Overrides[i]
		}
	}
	return nil
}

func (c *Config) globLayer(tableName string) *Override {
	name := strings.ToLower(tableName)
	for i := range c.Overrides {
		p := c.Overrides[i].Pattern
		if p != "" && glob.Glob(strings.ToLower(p), name) {
			return &c.Overrides[i]
		}
	}
	return nil
}

// apply copies every set field of the override onto the effective
// configuration. Unset fields (nil pointers, empty strings) are left
// alone.
func (e *Effective) apply(o *Override) {
	if o.SoftDelete != nil {
		e.SoftDelete = *o.SoftDelete
	}
	if o.SoftDeleteMode != "" {
		e.SoftDeleteMode = schema.SoftDeleteMode(strings.ToLower(o.SoftDeleteMode))
	}
	if o.AppendOnly != nil {
		e.AppendOnly = *o.AppendOnly
	}
	if o.Polymorphic != nil {
		e.Polymorphic = *o.Polymorphic
	}
	if o.AuditWiring != nil {
		e.AuditWiring = *o.AuditWiring
	}
	if o.ReactivationCascade != nil {
		e.ReactivationCascade = *o.ReactivationCascade
	}
	if o.ToleranceMillis != nil {
		e.ToleranceMillis = *o.ToleranceMillis
	}

	if o.ActiveColumn != "" {
		e.Conventions.ActiveColumn = o.ActiveColumn
	}
	if o.CreatedAtColumn != "" {
		e.Conventions.CreatedAtColumn = o.CreatedAtColumn
	}
	if o.CreatedByColumn != "" {
		e.Conventions.CreatedByColumn = o.CreatedByColumn
	}
	if o.UpdatedByColumn != "" {
		e.Conventions.UpdatedByColumn = o.UpdatedByColumn
	}
	if o.DeactivatedAtColumn != "" {
		e.Conventions.DeactivatedAtColumn = o.DeactivatedAtColumn
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
