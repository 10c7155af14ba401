package zfs

import (
	"context"
	"fmt"
	"time"
)

// retry runs fn until it succeeds, fails permanently, or attempts run out.
// The wait doubles after each transient failure.
func retry(ctx context.Context, attempts int, base time.Duration, opName string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isTransient(err) {
			return fmt.Errorf("%s failed permanently: %w", opName, err)
		}

		if attempt == attempts {
			break
		}

		t := time.NewTimer(base * (1 << (attempt - 1)))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", opName, attempts, lastErr)
}
