// Package storage defines types and primitives for workflow engine storage backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/workflow"
)

var (
	// ErrStateNotFound is returned when no state record exists for an ID.
	ErrStateNotFound = errors.New("state not found")

	ErrEmptyState    = errors.New("empty state")
	ErrMissingID     = errors.New("missing id")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidStep   = errors.New("invalid step position")
)

// State is the status record of a workflow instance or a standalone task.
// The JSON form is what is persisted and what pollers see.
type State struct {
	Status   workflow.Status `json:"status"`
	TaskType string          `json:"task_type,omitempty"`

	// Payload is the submitted task payload.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Result is the task result or, for workflows, the final context.
	Result json.RawMessage `json:"result,omitempty"`

	// Position is the chain index of the next workflow step to run,
	// i.e. the number of steps completed so far.
	Position int `json:"position,omitempty"`
}

// Validate checks for missing or invalid values.
func (s *State) Validate() error {
	if s == nil {
		return ErrEmptyState
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}
	if s.Position < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidStep, s.Position)
	}
	return nil
}

// ReadStorage retrieves state records.
type ReadStorage interface {
	// RetrieveState returns the state record for id.
	// ErrStateNotFound is returned (wrapped) if there is no record.
	RetrieveState(ctx context.Context, id string) (*State, error)
}

// Storage stores and retrieves state records.
//
// Each operation on a single id must be atomic with respect to other
// operations on that id and a successful store must be visible to any
// subsequent retrieve. No atomicity is required across ids.
type Storage interface {
	ReadStorage

	// StoreState writes state for id, overwriting any existing record.
	StoreState(ctx context.Context, id string, state *State) error
}
