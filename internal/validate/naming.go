package validate

import (
	"regexp"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/reapersql/reaper/internal/diag"
)

var snakeCase = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// checkNaming enforces the naming conventions: lower snake_case for
// table and column names, and plural table names. Always warnings.
func (v *Validator) checkNaming(diags *diag.List) {
	for i := range v.Schema.Tables {
		t := &v.Schema.Tables[i]

		if !snakeCase.MatchString(t.Name) {
			diags.Warnf(diag.CodeNaming, t.Name, "", "table name should be lower snake_case")
		} else if !t.IsHistoryTable {
			// History tables inherit their base table's name.
			last := lastWord(t.Name)
			if inflect.Pluralize(last) != last {
				diags.Warnf(diag.CodeNaming, t.Name, "", "table name should be plural")
			}
		}

		for _, c := range t.Columns {
			if !snakeCase.MatchString(c.Name) {
				diags.Warnf(diag.CodeNaming, t.Name, c.Name, "column name should be lower snake_case")
			}
		}
	}
}

func lastWord(name string) string {
	if i := strings.LastIndex(name, "_"); i >= 0 {
		return name[i+1:]
	}
	return name
}
