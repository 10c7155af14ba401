package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepoid/keepoid/internal/core"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"invalid config", core.WrapError(core.ErrConfigInvalid, errors.New("x")), exitConfig},
		{"missing config", fmt.Errorf("load: %w", core.ErrConfigMissing), exitConfig},
		{"listing", core.WrapError(core.ErrListFailed, errors.New("x")), exitList},
		{"destroy", core.WrapError(core.ErrDestroyFailed, errors.New("x")), exitDestroy},
		{"other", errors.New("boom"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, debug, dryRun, nowFlag, snapshots, format = "", false, false, "", "", "text"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRoot_DryRunFromListing(t *testing.T) {
	conf := writeTemp(t, "keepoid.conf", `
path: tank/home
identifier: zfs-auto-snap_
timestampFormat: "2006-01-02-1504"
pruneAfter: 2h
timezone: UTC
retention:
  - interval: 1d
    count: 1
`)
	listing := writeTemp(t, "snapshots.txt", strings.Join([]string{
		"tank/home@zfs-auto-snap_2023-10-26-0000",
		"tank/home@zfs-auto-snap_2023-10-27-0000",
		"tank/home@zfs-auto-snap_2023-10-27-1300",
	}, "\n"))

	out, err := execute(t, "--config", conf, "--snapshots", listing, "--dry-run", "--now", "2023-10-27T14:00:00Z")
	require.NoError(t, err)

	assert.Contains(t, out, "keep\ttank/home@zfs-auto-snap_2023-10-27-0000\n")
	assert.Contains(t, out, "pending\ttank/home@zfs-auto-snap_2023-10-27-1300\n")
	assert.Contains(t, out, "prune\ttank/home@zfs-auto-snap_2023-10-26-0000\n")
	assert.Contains(t, out, "(dry run)")
}

func TestRoot_ConfigRequired(t *testing.T) {
	_, err := execute(t)
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestRoot_InvalidConfig(t *testing.T) {
	conf := writeTemp(t, "keepoid.conf", "path: tank\nidentifier: x\n")

	_, err := execute(t, "--config", conf, "--dry-run")
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestRoot_BadNow(t *testing.T) {
	_, err := execute(t, "--config", "whatever", "--now", "yesterday")
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestRoot_BadFormatRejectedUpFront(t *testing.T) {
	_, err := execute(t, "--config", "whatever", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"xml"`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "keepoid dev")
}
