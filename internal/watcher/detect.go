package watcher

import (
	"os"
	"time"

	"go.uber.org/zap"
)

func (w *Watcher) stat() (time.Time, int64) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}

// detect calls onChange when the file's modification time or size moved.
func (w *Watcher) detect() {
	w.mu.RLock()
	lastMod, lastSize := w.lastModTime, w.lastSize
	w.mu.RUnlock()

	mod, size := w.stat()
	if size < 0 {
		// mid-replace or deleted; the next event or tick will see it again
		return
	}
	if mod.Equal(lastMod) && size == lastSize {
		return
	}

	w.mu.Lock()
	w.lastModTime = mod
	w.lastSize = size
	w.mu.Unlock()

	w.log.Info("configuration file changed", zap.String("path", w.path))
	w.onChange()
}
