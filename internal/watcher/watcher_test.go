package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func reloadConfig(method string) config.ReloadConfig {
	return config.ReloadConfig{
		Enabled:      true,
		Method:       method,
		PollInterval: config.Duration(10 * time.Millisecond),
		Debounce:     config.Duration(10 * time.Millisecond),
	}
}

func TestWatcher_DetectOnlyFiresOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepoid.conf")
	writeFile(t, path, "path: pool\n")

	var calls atomic.Int32
	w := New(path, reloadConfig("poll"), zap.NewNop(), func() { calls.Add(1) })

	w.detect()
	assert.Equal(t, int32(0), calls.Load())

	writeFile(t, path, "path: pool/data\n")
	w.detect()
	assert.Equal(t, int32(1), calls.Load())

	w.detect()
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_DetectIgnoresMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepoid.conf")
	writeFile(t, path, "a")

	var calls atomic.Int32
	w := New(path, reloadConfig("poll"), zap.NewNop(), func() { calls.Add(1) })

	require.NoError(t, os.Remove(path))
	w.detect()
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_SettledAfterShutdownDoesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepoid.conf")
	writeFile(t, path, "a")

	var calls atomic.Int32
	w := New(path, reloadConfig("fsnotify"), zap.NewNop(), func() { calls.Add(1) })
	writeFile(t, path, "changed after the timer was armed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.settled(ctx)
	assert.Equal(t, int32(0), calls.Load())

	w.settled(context.Background())
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_Polling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepoid.conf")
	writeFile(t, path, "a")

	changed := make(chan struct{}, 1)
	w := New(path, reloadConfig("poll"), zap.NewNop(), func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	writeFile(t, path, "a longer document")

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("change not detected by polling")
	}
}

func TestWatcher_UnknownMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepoid.conf")
	writeFile(t, path, "a")

	w := New(path, reloadConfig("inotify"), zap.NewNop(), func() {})
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_UpdateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepoid.conf")
	w := New(path, reloadConfig("poll"), zap.NewNop(), func() {})

	w.UpdateConfig(config.ReloadConfig{PollInterval: config.Duration(time.Minute), Debounce: config.Duration(time.Second)})
	assert.Equal(t, time.Minute, w.interval)
	assert.Equal(t, time.Second, w.debounce)
}
