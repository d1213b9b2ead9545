// Package kv implements an engine storage backend using JSON documents in a key-value store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/engine/storage"

	"github.com/micromdm/nanolib/storage/kv"
)

// KV is an engine storage backend using a key-value store.
// Each state record is a single JSON value keyed by its ID.
type KV struct {
	b kv.CRUDBucket
}

// New creates a new key-value engine storage backend using b.
func New(b kv.CRUDBucket) *KV {
	return &KV{b: b}
}

// RetrieveState returns the state record for id.
func (s *KV) RetrieveState(ctx context.Context, id string) (*storage.State, error) {
	if id == "" {
		return nil, storage.ErrMissingID
	}
	raw, err := s.b.Get(ctx, id)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrStateNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("getting state: %w", err)
	}
	state := new(storage.State)
	if err = json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, nil
}

// StoreState writes state for id.
func (s *KV) StoreState(ctx context.Context, id string, state *storage.State) error {
	if id == "" {
		return storage.ErrMissingID
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("validating state: %w", err)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err = s.b.Set(ctx, id, raw); err != nil {
		return fmt.Errorf("setting state: %w", err)
	}
	return nil
}
