// Package zfs drives the zfs command line: it lists snapshots for the
// retention engine and destroys the ones it prunes.
package zfs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner executes a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, &CommandError{
			Args:   append([]string{name}, args...),
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return out, nil
}

// CommandError carries the stderr of a failed zfs invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Record is one line of `zfs list` output.
type Record struct {
	Name     string
	Creation time.Time // zero when the source did not report it
}

type Client struct {
	runner  Runner
	command string
	retries int
	backoff time.Duration
	log     *zap.Logger
}

type Option func(*Client)

func WithRunner(r Runner) Option { return func(c *Client) { c.runner = r } }

// WithRetries sets how many attempts a destroy gets for transient failures.
func WithRetries(n int) Option { return func(c *Client) { c.retries = n } }

func WithBackoff(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

func New(command string, log *zap.Logger, opts ...Option) *Client {
	if command == "" {
		command = "zfs"
	}
	c := &Client{
		runner:  ExecRunner{},
		command: command,
		retries: 5,
		backoff: 100 * time.Millisecond,
		log:     log.Named("zfs"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retries < 1 {
		c.retries = 1
	}
	return c
}
