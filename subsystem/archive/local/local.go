// Package local implements the last-resort archive backend on the local disk.
package local

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/micromdm/nanoscreen/subsystem/archive"

	"github.com/micromdm/nanolib/storage/kv"
	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Local stores documents as <digest>.json files in a directory.
type Local struct {
	b kv.CRUDBucket
}

// New creates a local backend in dir. The directory is created on first write.
// Writes are staged in a sibling temporary directory and renamed into place.
func New(dir string) *Local {
	return NewWithBucket(newDiskBucket(dir))
}

func newDiskBucket(dir string) *kvdiskv.KVDiskv {
	dir = filepath.Clean(dir)
	return kvdiskv.New(diskv.New(diskv.Options{
		BasePath:     dir,
		TempDir:      dir + ".tmp",
		Transform:    kvdiskv.FlatTransform,
		CacheSizeMax: 1024 * 1024,
	}))
}

// NewWithBucket creates a local backend over an arbitrary bucket.
func NewWithBucket(b kv.CRUDBucket) *Local {
	return &Local{b: b}
}

func (l *Local) Name() string { return archive.BackendLocal }

func key(digest string) string {
	return digest + ".json"
}

// Put writes data keyed by digest.
func (l *Local) Put(ctx context.Context, digest string, data []byte) (*archive.Reference, error) {
	if err := l.b.Set(ctx, key(digest), data); err != nil {
		return nil, fmt.Errorf("writing document: %w", err)
	}
	return &archive.Reference{Backend: archive.BackendLocal, Hash: digest}, nil
}

// Get reads the document for ref.
func (l *Local) Get(ctx context.Context, ref *archive.Reference) ([]byte, error) {
	if ref.Hash == "" {
		return nil, fmt.Errorf("%w: missing hash", archive.ErrInvalidRef)
	}
	return l.b.Get(ctx, key(ref.Hash))
}
