// Package diskv implements an engine storage backend using the diskv key-value store.
package diskv

import (
	"path/filepath"

	"github.com/micromdm/nanoscreen/engine/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is a a diskv-backed engine storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new diskv storage backend rooted at path.
// State records are files under path/engine/state.
func New(path string) *Diskv {
	base := filepath.Join(path, "engine", "state")
	return &Diskv{
		KV: kv.New(kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     base,
			TempDir:      filepath.Join(path, "engine", "tmp"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		}))),
	}
}
