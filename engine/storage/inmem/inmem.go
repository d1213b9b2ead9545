// Package inmem implements an engine storage backend using the a map-based key-value store.
// State is lost when the process exits.
package inmem

import (
	"github.com/micromdm/nanoscreen/engine/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
)

// InMem is an in-memory engine storage backend.
type InMem struct {
	*kv.KV
}

func New() *InMem {
	return &InMem{KV: kv.New(kvmap.New())}
}
