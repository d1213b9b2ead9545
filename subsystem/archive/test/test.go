// Package test provides archive backend fakes and a backend contract test.
package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/micromdm/nanoscreen/subsystem/archive"
	"github.com/micromdm/nanoscreen/utils/canon"
)

// ErrFakeUnavailable is returned by a failing MemBackend.
var ErrFakeUnavailable = errors.New("fake backend unavailable")

// MemBackend is an in-memory archive backend.
// It references documents by hash under any backend name.
type MemBackend struct {
	name string
	fail bool

	mu    sync.RWMutex
	docs  map[string][]byte
	calls int
}

// NewMemBackend creates a new in-memory backend named name.
// If fail is true every Put and Get fails.
func NewMemBackend(name string, fail bool) *MemBackend {
	return &MemBackend{name: name, fail: fail, docs: make(map[string][]byte)}
}

func (m *MemBackend) Name() string { return m.name }

// Calls returns the number of Put calls.
func (m *MemBackend) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *MemBackend) Put(_ context.Context, digest string, data []byte) (*archive.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return nil, ErrFakeUnavailable
	}
	m.docs[digest] = append([]byte(nil), data...)
	return &archive.Reference{Backend: m.name, Hash: digest}, nil
}

func (m *MemBackend) Get(_ context.Context, ref *archive.Reference) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail {
		return nil, ErrFakeUnavailable
	}
	data, ok := m.docs[ref.Hash]
	if !ok {
		return nil, fmt.Errorf("not found: %s", ref.Hash)
	}
	return append([]byte(nil), data...), nil
}

// Tamper replaces the stored bytes for digest.
func (m *MemBackend) Tamper(digest string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[digest] = data
}

// TestBackend runs the backend contract tests against b.
func TestBackend(t *testing.T, b archive.Backend) {
	ctx := context.Background()
	data := []byte(`{"address":"0xabc","owner_ack":true}`)
	digest := canon.Digest(data)

	ref, err := b.Put(ctx, digest, data)
	if err != nil {
		t.Fatal(err)
	}
	if err = ref.Validate(); err != nil {
		t.Fatal(err)
	}
	if want, have := b.Name(), ref.Backend; want != have {
		t.Errorf("backend: want %q, have %q", want, have)
	}

	have, err := b.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(have, data) {
		t.Errorf("content: want %s, have %s", data, have)
	}

	// storing identical content again is idempotent
	ref2, err := b.Put(ctx, digest, data)
	if err != nil {
		t.Fatal(err)
	}
	if *ref2 != *ref {
		t.Errorf("reference changed: %+v vs %+v", ref, ref2)
	}
}
