package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StartFsNotify triggers detect() when fsnotify reports changes to the file.
// The parent directory is watched so editors that replace the file by
// rename are still seen.
func (w *Watcher) StartFsNotify(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	w.mu.RLock()
	path := w.path
	w.mu.RUnlock()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	base := filepath.Base(path)

	// Channel to request debounce resets
	resetCh := make(chan struct{}, 1)
	defer close(resetCh)

	// Debounce goroutine
	go func() {
		var t *time.Timer
		for range resetCh {
			if t != nil {
				t.Stop()
			}
			w.mu.RLock()
			debounce := w.debounce
			w.mu.RUnlock()
			t = time.AfterFunc(debounce, func() { w.settled(ctx) })
		}
		if t != nil {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				w.log.Error("events channel closed")
				return nil
			}

			if filepath.Base(ev.Name) != base {
				continue
			}
			w.log.Debug("event", zap.String("name", ev.Name), zap.Stringer("op", ev.Op))

			// Non-blocking send to reset debounce
			select {
			case resetCh <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("fsnotify error", zap.Error(err))
		}
	}
}

// settled runs when the debounce window closes. A timer armed before
// shutdown must not trigger a reload afterwards.
func (w *Watcher) settled(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("detect panic", zap.Any("panic", r))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	w.detect()
}
