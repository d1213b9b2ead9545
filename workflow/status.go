package workflow

import "fmt"

// Status is the lifecycle status of a workflow instance or task.
// The string values are persisted and polled by callers.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// Rank orders statuses. Terminal statuses share the highest rank.
// Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	case StatusSuccess, StatusFailed:
		return 2
	}
	return -1
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether a record in status s may move to status to.
// Statuses never move to a lower rank and terminal statuses never change.
// Re-applying the same status is allowed.
func (s Status) CanTransition(to Status) bool {
	if !to.Valid() {
		return false
	}
	if s == to {
		return true
	}
	if s.Terminal() {
		return false
	}
	return to.Rank() >= s.Rank()
}

// NewErrStatusTransition returns an error describing a disallowed transition.
func NewErrStatusTransition(from, to Status) error {
	return fmt.Errorf("%w: %q to %q", ErrStatusRegression, from, to)
}
