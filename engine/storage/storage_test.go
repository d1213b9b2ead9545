package storage

import (
	"errors"
	"testing"

	"github.com/micromdm/nanoscreen/workflow"
)

func TestStateValidate(t *testing.T) {
	var s *State
	if err := s.Validate(); !errors.Is(err, ErrEmptyState) {
		t.Errorf("nil state: have %v, want %v", err, ErrEmptyState)
	}
	s = &State{Status: "pending"}
	if err := s.Validate(); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bad status: have %v, want %v", err, ErrInvalidStatus)
	}
	s = &State{Status: workflow.StatusRunning, Position: -1}
	if err := s.Validate(); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("bad position: have %v, want %v", err, ErrInvalidStep)
	}
	s = &State{Status: workflow.StatusQueued, TaskType: workflow.TaskTypeWorkflow}
	if err := s.Validate(); err != nil {
		t.Error(err)
	}
}
