package generate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifacts() []Artifact {
	return []Artifact{
		{Kind: KindActiveView, Table: "orders", Name: "vw_orders_active",
			FileName: "vw_orders_active.sql", SQL: Header + "\nCREATE OR REPLACE VIEW vw_orders_active AS SELECT 1;\n"},
	}
}

func TestWriterWritesNewFiles(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{OutputDir: dir}

	res, err := w.Write(sampleArtifacts())
	require.NoError(t, err)
	assert.Equal(t, []string{"vw_orders_active.sql"}, res.Written)

	data, err := os.ReadFile(filepath.Join(dir, "vw_orders_active.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), Header)
}

func TestWriterIsIdempotentWithoutForce(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{OutputDir: dir}

	_, err := w.Write(sampleArtifacts())
	require.NoError(t, err)

	res, err := w.Write(sampleArtifacts())
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Equal(t, []string{"vw_orders_active.sql"}, res.SkippedExisting)
}

func TestWriterForceRewritesGeneratedFiles(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{OutputDir: dir}
	_, err := w.Write(sampleArtifacts())
	require.NoError(t, err)

	updated := sampleArtifacts()
	updated[0].SQL = Header + "\n-- updated\n"
	w.Force = true
	res, err := w.Write(updated)
	require.NoError(t, err)
	assert.Equal(t, []string{"vw_orders_active.sql"}, res.Written)

	data, _ := os.ReadFile(filepath.Join(dir, "vw_orders_active.sql"))
	assert.Contains(t, string(data), "-- updated")
}

func TestWriterNeverTouchesExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	explicit := "-- hand-authored view, keep\nCREATE VIEW vw_orders_active AS SELECT 2;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vw_orders_active.sql"), []byte(explicit), 0o644))

	w := &Writer{OutputDir: dir, Force: true}
	res, err := w.Write(sampleArtifacts())
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Equal(t, []string{"vw_orders_active.sql"}, res.SkippedExplicit)

	data, _ := os.ReadFile(filepath.Join(dir, "vw_orders_active.sql"))
	assert.Equal(t, explicit, string(data))
}

func TestWriterDetectsHeaderAfterLeadingWhitespace(t *testing.T) {
	assert.True(t, isGenerated([]byte("\n\n"+Header+"\nSELECT 1;")))
	assert.False(t, isGenerated([]byte("-- mine\n"+Header)))
}
