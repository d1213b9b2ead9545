// Package test provides a shared contract test for engine storage backends.
package test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/micromdm/nanoscreen/workflow"
)

// jsonEqual compares two JSON documents semantically.
// Some backends (e.g. database JSON columns) normalize whitespace and key order.
func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		t.Fatal(err)
	}
	return reflect.DeepEqual(av, bv)
}

func compareState(t *testing.T, have, want *storage.State) {
	t.Helper()
	if have == nil {
		t.Fatal("nil state")
	}
	if have.Status != want.Status {
		t.Errorf("status: have %q, want %q", have.Status, want.Status)
	}
	if have.TaskType != want.TaskType {
		t.Errorf("task type: have %q, want %q", have.TaskType, want.TaskType)
	}
	if !jsonEqual(t, have.Payload, want.Payload) {
		t.Errorf("payload: have %s, want %s", have.Payload, want.Payload)
	}
	if have.Position != want.Position {
		t.Errorf("position: have %d, want %d", have.Position, want.Position)
	}
	if !jsonEqual(t, have.Result, want.Result) {
		t.Errorf("result: have %s, want %s", have.Result, want.Result)
	}
}

// TestStateStorage runs the storage contract tests against the
// backend created by newStorage.
// IDs are prefixed by a unique-enough string so that persistent
// backends can be re-used between runs.
func TestStateStorage(t *testing.T, prefix string, newStorage func() storage.Storage) {
	s := newStorage()
	ctx := context.Background()

	id := func(name string) string { return prefix + name }

	t.Run("not-found", func(t *testing.T) {
		_, err := s.RetrieveState(ctx, id("missing-"+prefix))
		if !errors.Is(err, storage.ErrStateNotFound) {
			t.Errorf("have %v, want %v", err, storage.ErrStateNotFound)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if err := s.StoreState(ctx, id("invalid"), nil); err == nil {
			t.Error("expected error storing nil state")
		}
		if err := s.StoreState(ctx, id("invalid"), &storage.State{Status: "nope"}); err == nil {
			t.Error("expected error storing invalid status")
		}
		if err := s.StoreState(ctx, "", &storage.State{Status: workflow.StatusQueued}); err == nil {
			t.Error("expected error storing empty id")
		}
	})

	t.Run("store-retrieve", func(t *testing.T) {
		want := &storage.State{
			Status:   workflow.StatusQueued,
			TaskType: workflow.TaskTypeWorkflow,
		}
		if err := s.StoreState(ctx, id("wf"), want); err != nil {
			t.Fatal(err)
		}
		have, err := s.RetrieveState(ctx, id("wf"))
		if err != nil {
			t.Fatal(err)
		}
		compareState(t, have, want)

		// read-after-write of an overwrite
		want = &storage.State{
			Status:   workflow.StatusSuccess,
			TaskType: workflow.TaskTypeWorkflow,
			Result:   []byte(`{"address":"0xabc","certificate":{"acknowledged":true}}`),
			Position: 5,
		}
		if err := s.StoreState(ctx, id("wf"), want); err != nil {
			t.Fatal(err)
		}
		have, err = s.RetrieveState(ctx, id("wf"))
		if err != nil {
			t.Fatal(err)
		}
		compareState(t, have, want)
	})

	t.Run("payload", func(t *testing.T) {
		want := &storage.State{
			Status:   workflow.StatusQueued,
			TaskType: "sanction_screen",
			Payload:  []byte(`{"address":"0xdef","owner_ack":false}`),
		}
		if err := s.StoreState(ctx, id("task"), want); err != nil {
			t.Fatal(err)
		}
		have, err := s.RetrieveState(ctx, id("task"))
		if err != nil {
			t.Fatal(err)
		}
		compareState(t, have, want)
	})

	t.Run("concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.StoreState(ctx, id(fmt.Sprintf("c%d", i)), &storage.State{
					Status: workflow.StatusRunning,
					Result: []byte(fmt.Sprintf(`{"n":%d}`, i)),
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}
		for i := 0; i < 10; i++ {
			have, err := s.RetrieveState(ctx, id(fmt.Sprintf("c%d", i)))
			if err != nil {
				t.Fatal(err)
			}
			compareState(t, have, &storage.State{
				Status: workflow.StatusRunning,
				Result: []byte(fmt.Sprintf(`{"n":%d}`, i)),
			})
		}
	})
}
