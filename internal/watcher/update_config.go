package watcher

import (
	"github.com/keepoid/keepoid/internal/config"
)

// UpdateConfig updates the debounce and poll settings for hot-reload.
// Running loops pick the values up on their next event or tick; the
// watching method is fixed when Start is called.
func (w *Watcher) UpdateConfig(cfg config.ReloadConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.interval = cfg.PollInterval.Std()
	w.debounce = cfg.Debounce.Std()
}
