package discovery

import "fmt"

// ScriptGenerator produces an offline SQL script for environments where
// reaper has no direct database access. The script queries the catalog
// and emits YAML in the schema file format, so the output can be fed
// straight to analyze and generate.
type ScriptGenerator struct {
	Schema string
}

// GenerateScript returns the psql discovery script.
func (sg *ScriptGenerator) GenerateScript() string {
	schemaName := sg.Schema
	if schemaName == "" {
		schemaName = "public"
	}

	return fmt.Sprintf(`-- Reaper Offline Discovery Script (PostgreSQL)
-- Run: psql -h HOST -U USER -d DB -f this_script.sql -o schema.yaml -t -A

SELECT 'tables:';

-- Tables
SELECT '- name: ' || c.relname
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = '%s'
  AND c.relkind = 'r'
ORDER BY c.relname;

-- Columns
SELECT '  columns:';
SELECT '  - name: ' || column_name ||
       E'\n    data_type: ' || data_type ||
       E'\n    nullable: ' || CASE WHEN is_nullable = 'YES' THEN 'true' ELSE 'false' END ||
       CASE WHEN is_identity = 'YES' THEN E'\n    identity: true' ELSE '' END ||
       CASE WHEN is_generated = 'ALWAYS' THEN E'\n    generated: true' ELSE '' END
FROM information_schema.columns
WHERE table_schema = '%s'
ORDER BY table_name, ordinal_position;

-- Primary keys
SELECT '  primary_key:';
SELECT '    name: ' || tc.constraint_name ||
       E'\n    columns: [' || string_agg(kcu.column_name, ', ' ORDER BY kcu.ordinal_position) || ']'
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema = '%s'
GROUP BY tc.table_name, tc.constraint_name
ORDER BY tc.table_name;

-- Foreign keys with delete rules
SELECT '  foreign_keys:';
SELECT '  - name: ' || tc.constraint_name ||
       E'\n    referenced_table: ' || ccu.table_name ||
       E'\n    columns: [' || string_agg(DISTINCT kcu.column_name, ', ') || ']' ||
       E'\n    referenced_columns: [' || string_agg(DISTINCT ccu.column_name, ', ') || ']' ||
       E'\n    on_delete: ' || rc.delete_rule
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
JOIN information_schema.referential_constraints rc
  ON tc.constraint_name = rc.constraint_name AND tc.table_schema = rc.constraint_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_schema = '%s'
GROUP BY tc.table_name, tc.constraint_name, ccu.table_name, rc.delete_rule
ORDER BY tc.table_name;

-- Check constraints, needed for polymorphic IN-list mining
SELECT '  constraints:';
SELECT '  - name: ' || tc.constraint_name ||
       E'\n    type: check' ||
       E'\n    definition: "' || replace(cc.check_clause, '"', '\"') || '"'
FROM information_schema.table_constraints tc
JOIN information_schema.check_constraints cc
  ON tc.constraint_name = cc.constraint_name AND tc.constraint_schema = cc.constraint_schema
WHERE tc.constraint_type = 'CHECK'
  AND tc.table_schema = '%s'
  AND tc.constraint_name NOT LIKE '%%_not_null'
ORDER BY tc.table_name;
`, schemaName, schemaName, schemaName, schemaName, schemaName)
}

// GenerateShellWrapper returns a bash wrapper that runs the SQL and
// captures the output.
func (sg *ScriptGenerator) GenerateShellWrapper() string {
	return `#!/bin/bash
# Reaper Offline Discovery Wrapper (PostgreSQL)
# Usage: ./discover.sh -h HOST -p PORT -U USER -d DATABASE

set -euo pipefail

OUTPUT="${REAPER_OUTPUT:-schema.yaml}"

echo "Running PostgreSQL schema discovery..."
echo "Output: ${OUTPUT}"

psql "$@" -f "$(dirname "$0")/discover.sql" -t -A -o "${OUTPUT}"

echo "Done. Analyze with: reaper analyze --schema ${OUTPUT}"
`
}
