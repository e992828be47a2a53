package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Acquire(dir))
	held, pid, err := IsHeld(dir)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, Release(dir))
	held, _, err = IsHeld(dir)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestAcquireFailsWhileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Acquire(dir))

	err := Acquire(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another reaper run")
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	// A PID that cannot be running.
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(strconv.Itoa(1<<22+7)), 0o644))

	require.NoError(t, Acquire(dir))
	_, pid, err := IsHeld(dir)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireIgnoresGarbageLockFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not a pid"), 0o644))
	require.NoError(t, Acquire(dir))
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Release(dir))
}

func TestAcquireCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generated")
	require.NoError(t, Acquire(dir))
	held, _, err := IsHeld(dir)
	require.NoError(t, err)
	assert.True(t, held)
}
