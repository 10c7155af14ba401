package fsprobe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_MissingDirectory(t *testing.T) {
	res := Probe(filepath.Join(t.TempDir(), "missing"), DefaultTimeout)
	assert.False(t, res.FsnotifySupported)
	assert.Contains(t, res.Reason, "stat failed")
}

func TestProbe_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "keepoid.conf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	res := Probe(file, DefaultTimeout)
	assert.False(t, res.FsnotifySupported)
	assert.Contains(t, res.Reason, "not a directory")
}

func TestProbe_CleansUp(t *testing.T) {
	dir := t.TempDir()
	res := Probe(dir, DefaultTimeout)
	if !res.FsnotifySupported {
		t.Logf("fsnotify not supported here: %s", res.Reason)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
