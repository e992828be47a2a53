package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateScriptDefaultsToPublicSchema(t *testing.T) {
	sg := &ScriptGenerator{}
	script := sg.GenerateScript()

	assert.Contains(t, script, "n.nspname = 'public'")
	assert.Contains(t, script, "information_schema.columns")
	assert.Contains(t, script, "'PRIMARY KEY'")
	assert.Contains(t, script, "'FOREIGN KEY'")
	assert.Contains(t, script, "delete_rule")
	assert.Contains(t, script, "'CHECK'")
}

func TestGenerateScriptUsesConfiguredSchema(t *testing.T) {
	sg := &ScriptGenerator{Schema: "billing"}
	script := sg.GenerateScript()

	assert.Contains(t, script, "'billing'")
	assert.NotContains(t, script, "'public'")
}

func TestGenerateShellWrapperRunsPsql(t *testing.T) {
	sg := &ScriptGenerator{}
	wrapper := sg.GenerateShellWrapper()

	assert.True(t, strings.HasPrefix(wrapper, "#!/bin/bash"))
	assert.Contains(t, wrapper, "psql")
	assert.Contains(t, wrapper, "discover.sql")
	assert.Contains(t, wrapper, "reaper analyze")
}
