package zfs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type call struct {
	name string
	args []string
}

// fakeRunner replays canned output and records every invocation.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []call
	output []byte
	errFor func(args []string) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()

	if f.errFor != nil {
		if err := f.errFor(args); err != nil {
			return nil, err
		}
	}
	return f.output, nil
}

func newTestClient(r Runner) *Client {
	return New("zfs", zap.NewNop(), WithRunner(r), WithBackoff(time.Millisecond))
}

func TestParseList(t *testing.T) {
	input := strings.Join([]string{
		"NAME\tCREATION",
		"pool/data@autosnap_2023-10-27T13:00:00\t1698411600",
		"",
		"# comment",
		"pool/data@autosnap_2023-10-27T14:00:00",
		"pool/data",
		"pool/data@bad\tnot-a-number",
		"pool/data@extra\t1\t2",
	}, "\n")

	recs, err := ParseList(strings.NewReader(input), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "pool/data@autosnap_2023-10-27T13:00:00", recs[0].Name)
	assert.Equal(t, int64(1698411600), recs[0].Creation.Unix())
	assert.Equal(t, "pool/data@autosnap_2023-10-27T14:00:00", recs[1].Name)
	assert.True(t, recs[1].Creation.IsZero())
}

func TestClient_List(t *testing.T) {
	r := &fakeRunner{output: []byte("pool/a@s1\t100\npool/a@s2\t200\n")}
	c := newTestClient(r)

	recs, err := c.List(context.Background(), "pool")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "zfs", r.calls[0].name)
	assert.Equal(t, []string{
		"list", "-H", "-p", "-t", "snapshot", "-o", "name,creation", "-s", "creation", "-r", "pool",
	}, r.calls[0].args)
}

func TestClient_ListFailure(t *testing.T) {
	r := &fakeRunner{errFor: func([]string) error {
		return &CommandError{Args: []string{"zfs", "list"}, Stderr: "cannot open 'nope': dataset does not exist", Err: errors.New("exit status 1")}
	}}

	_, err := newTestClient(r).List(context.Background(), "nope")
	require.Error(t, err)

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "dataset does not exist")
}

func TestClient_DestroyRejectsNonSnapshots(t *testing.T) {
	r := &fakeRunner{}
	c := newTestClient(r)

	for _, name := range []string{"pool/data", "@label", "pool/data@", "pool/a@x,pool/b@y", "pool/a@1%2"} {
		err := c.Destroy(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotSnapshot, name)
	}
	assert.Empty(t, r.calls)
}

func TestClient_DestroyRetriesTransientErrors(t *testing.T) {
	attempts := 0
	r := &fakeRunner{errFor: func([]string) error {
		attempts++
		if attempts < 3 {
			return &CommandError{Stderr: "cannot destroy snapshot: dataset is busy", Err: errors.New("exit status 1")}
		}
		return nil
	}}

	err := newTestClient(r).Destroy(context.Background(), "pool/a@s1")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"destroy", "pool/a@s1"}, r.calls[0].args)
}

func TestClient_DestroyStopsOnPermanentError(t *testing.T) {
	r := &fakeRunner{errFor: func([]string) error {
		return &CommandError{Stderr: "permission denied", Err: errors.New("exit status 1")}
	}}

	err := newTestClient(r).Destroy(context.Background(), "pool/a@s1")
	require.Error(t, err)
	assert.Len(t, r.calls, 1)
	assert.Contains(t, err.Error(), "permanently")
}

func TestClient_DestroyGivesUp(t *testing.T) {
	r := &fakeRunner{errFor: func([]string) error {
		return &CommandError{Stderr: "dataset is busy", Err: errors.New("exit status 1")}
	}}
	c := New("zfs", zap.NewNop(), WithRunner(r), WithRetries(2), WithBackoff(time.Millisecond))

	err := c.Destroy(context.Background(), "pool/a@s1")
	require.Error(t, err)
	assert.Len(t, r.calls, 2)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestClient_DestroyAllContinuesPastFailures(t *testing.T) {
	r := &fakeRunner{errFor: func(args []string) error {
		if args[1] == "pool/a@s2" {
			return &CommandError{Stderr: "snapshot has dependent clones", Err: errors.New("exit status 1")}
		}
		return nil
	}}

	results, err := newTestClient(r).DestroyAll(context.Background(), []string{"pool/a@s1", "pool/a@s2", "pool/a@s3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool/a@s2")

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Len(t, r.calls, 3)
}

func TestClient_DestroyAllHonoursCancellation(t *testing.T) {
	r := &fakeRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newTestClient(r).DestroyAll(ctx, []string{"pool/a@s1", "pool/a@s2"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 2)
	assert.Empty(t, r.calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&CommandError{Stderr: "Dataset is busy"}))
	assert.False(t, isTransient(&CommandError{Stderr: "could not find any snapshots to destroy"}))
	assert.False(t, isTransient(errors.New("boom")))
}
