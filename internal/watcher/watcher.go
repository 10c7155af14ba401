// Package watcher monitors the configuration file and triggers a reload
// when its content changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/config"
	"github.com/keepoid/keepoid/internal/fsprobe"
)

// Watcher observes one file and calls onChange after it settles.
type Watcher struct {
	mu sync.RWMutex

	path     string
	interval time.Duration
	method   string
	debounce time.Duration

	log *zap.Logger

	lastModTime time.Time
	lastSize    int64

	onChange func()
}

// New creates a watcher for path using the reload settings in cfg.
func New(path string, cfg config.ReloadConfig, log *zap.Logger, onChange func()) *Watcher {
	w := &Watcher{
		path:     path,
		interval: cfg.PollInterval.Std(),
		method:   cfg.Method,
		debounce: cfg.Debounce.Std(),
		log:      log.Named("watcher"),
		onChange: onChange,
	}
	w.lastModTime, w.lastSize = w.stat()
	return w
}

// Start chooses the watching strategy and blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.RLock()
	method := w.method
	dir := filepath.Dir(w.path)
	w.mu.RUnlock()

	switch method {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto", "":
		res := fsprobe.Probe(dir, fsprobe.DefaultTimeout)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled, polling instead", zap.String("reason", res.Reason))
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("unknown reload method %q", method)
	}
}
