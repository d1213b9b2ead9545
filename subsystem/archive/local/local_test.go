package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/micromdm/nanoscreen/subsystem/archive"
	"github.com/micromdm/nanoscreen/subsystem/archive/test"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
	kvtest "github.com/micromdm/nanolib/storage/kv/test"
)

func TestLocalBackend(t *testing.T) {
	test.TestBackend(t, New(t.TempDir()))
}

func TestDiskBucket(t *testing.T) {
	kvtest.TestBucketSimple(t, context.Background(), newDiskBucket(t.TempDir()))
}

func TestLocalWithMapBucket(t *testing.T) {
	test.TestBackend(t, NewWithBucket(kvmap.New()))
}

func TestLocalFileLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "acks")
	l := New(dir)
	ref, err := l.Put(context.Background(), "abc123", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if want, have := (archive.Reference{Backend: archive.BackendLocal, Hash: "abc123"}), *ref; want != have {
		t.Errorf("want %+v, have %+v", want, have)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "abc123.json"))
	if err != nil {
		t.Fatal(err)
	}
	if want, have := `{}`, string(raw); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
}
