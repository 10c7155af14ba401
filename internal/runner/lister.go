package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/keepoid/keepoid/internal/zfs"
)

// Lister reports every snapshot below a dataset path.
type Lister interface {
	List(ctx context.Context, path string) ([]zfs.Record, error)
}

// Destroyer removes the named snapshots, attempting every entry.
type Destroyer interface {
	DestroyAll(ctx context.Context, names []string) ([]zfs.Result, error)
}

// FileLister reads a saved listing instead of calling zfs. A path of "-"
// reads from In (stdin when nil). Lines use the `zfs list -H -p` layout.
type FileLister struct {
	Path string
	In   io.Reader
	Log  *zap.Logger
}

func (f FileLister) List(_ context.Context, _ string) ([]zfs.Record, error) {
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}

	if f.Path == "-" {
		in := f.In
		if in == nil {
			in = os.Stdin
		}
		return zfs.ParseList(in, log)
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot listing: %w", err)
	}
	defer file.Close()

	return zfs.ParseList(file, log)
}
