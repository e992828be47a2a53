package generate

import (
	"fmt"
	"strings"
)

// Views emits an active and a deleted convenience view for every
// soft-delete table, named via the configured {table} patterns.
func (g *Generator) Views() []Artifact {
	var artifacts []Artifact
	for i := range g.Schema.Tables {
		t := &g.Schema.Tables[i]
		if !t.HasSoftDelete || t.IsHistoryTable {
			continue
		}
		eff := g.Config.Resolve(t.Name, t.Category)
		active := eff.Conventions.ActiveColumn

		activeName := viewName(g.Config.Generation.ActiveViewPattern, t.Name)
		artifacts = append(artifacts, Artifact{
			Kind:     KindActiveView,
			Table:    t.Name,
			Name:     activeName,
			FileName: activeName + ".sql",
			SQL: fmt.Sprintf(`%s
CREATE OR REPLACE VIEW %s AS
SELECT *
FROM %s
WHERE %s;
`, Header, activeName, qualified(t), active),
		})

		deletedName := viewName(g.Config.Generation.DeletedViewPattern, t.Name)
		artifacts = append(artifacts, Artifact{
			Kind:     KindDeletedView,
			Table:    t.Name,
			Name:     deletedName,
			FileName: deletedName + ".sql",
			SQL: fmt.Sprintf(`%s
CREATE OR REPLACE VIEW %s AS
SELECT *
FROM %s
WHERE NOT %s;
`, Header, deletedName, qualified(t), active),
		})
	}
	return artifacts
}

func viewName(pattern, table string) string {
	return strings.ReplaceAll(pattern, "{table}", strings.ToLower(table))
}
