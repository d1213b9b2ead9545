// Package test provides workflow test helpers.
package test

import (
	"context"
	"sync"

	"github.com/micromdm/nanoscreen/workflow"
)

// Update is a single recorded status update.
type Update struct {
	ID     string
	Status workflow.Status
	Result []byte
}

// RecordingUpdater records status updates and passes them to next, if set.
type RecordingUpdater struct {
	next      workflow.StatusUpdater
	updates   []Update
	updatesMu sync.RWMutex
}

// NewRecordingUpdater creates a new RecordingUpdater. next may be nil.
func NewRecordingUpdater(next workflow.StatusUpdater) *RecordingUpdater {
	return &RecordingUpdater{next: next}
}

// Updates returns a copy of the recorded updates.
func (r *RecordingUpdater) Updates() []Update {
	r.updatesMu.RLock()
	defer r.updatesMu.RUnlock()
	return append([]Update(nil), r.updates...)
}

// UpdateStatus records the update and calls the next updater.
func (r *RecordingUpdater) UpdateStatus(ctx context.Context, id string, status workflow.Status, result []byte) error {
	r.updatesMu.Lock()
	r.updates = append(r.updates, Update{
		ID:     id,
		Status: status,
		Result: append([]byte(nil), result...),
	})
	r.updatesMu.Unlock()
	if r.next == nil {
		return nil
	}
	return r.next.UpdateStatus(ctx, id, status, result)
}
