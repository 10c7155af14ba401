package zfs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Result is the outcome of destroying one snapshot.
type Result struct {
	Name string
	Err  error
}

// Destroy removes a single snapshot, retrying transient failures.
func (c *Client) Destroy(ctx context.Context, name string) error {
	dataset, label, ok := strings.Cut(name, "@")
	if !ok || dataset == "" || label == "" || strings.ContainsAny(name, " \t\n%,") {
		return fmt.Errorf("%w: %q", ErrNotSnapshot, name)
	}

	return retry(ctx, c.retries, c.backoff, "destroy "+name, func() error {
		_, err := c.runner.Run(ctx, c.command, "destroy", name)
		return err
	})
}

// DestroyAll attempts every name even when some fail. The returned error
// combines the individual failures.
func (c *Client) DestroyAll(ctx context.Context, names []string) ([]Result, error) {
	results := make([]Result, 0, len(names))
	var errs error

	for _, name := range names {
		err := ctx.Err()
		if err == nil {
			c.log.Info("destroying snapshot", zap.String("snapshot", name))
			err = c.Destroy(ctx, name)
		}
		if err != nil {
			c.log.Error("destroy failed", zap.String("snapshot", name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
		results = append(results, Result{Name: name, Err: err})
	}

	return results, errs
}
