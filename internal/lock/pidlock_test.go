package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run", "hookserver.pid")
	l, err := Acquire(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	assert.Equal(t, path, l.Path())
	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireOverwritesStalePID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hookserver.pid")
	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0o644))

	l, err := Acquire(path)
	require.NoError(t, err)
	defer l.Release()

	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hookserver.pid")
	first, err := Acquire(path)
	require.NoError(t, err)

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "pid")

	require.NoError(t, first.Release())
	second, err := Acquire(path)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
	assert.NoError(t, second.Release(), "release is idempotent")
}

func TestAcquireEmptyPath(t *testing.T) {
	_, err := Acquire("")
	assert.Error(t, err)
}

func TestReadPIDGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))
	_, err := ReadPID(path)
	assert.Error(t, err)
}

func TestPathFor(t *testing.T) {
	cases := map[string]string{
		"./data/hookserver.db": "data/hookserver.pid",
		"/var/lib/hooks":       "/var/lib/hooks.pid",
	}
	for in, want := range cases {
		assert.Equal(t, filepath.Clean(want), filepath.Clean(PathFor(in)), in)
	}
}
