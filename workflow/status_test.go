package workflow

import (
	"errors"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	for _, tc := range []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusQueued, StatusQueued, true},
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusSuccess, true},
		{StatusRunning, StatusSuccess, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusQueued, false},
		{StatusSuccess, StatusSuccess, true},
		{StatusSuccess, StatusRunning, false},
		{StatusSuccess, StatusFailed, false},
		{StatusFailed, StatusSuccess, false},
		{StatusFailed, StatusQueued, false},
		{StatusQueued, Status("bogus"), false},
	} {
		if have, want := tc.from.CanTransition(tc.to), tc.want; have != want {
			t.Errorf("%s -> %s: have %v, want %v", tc.from, tc.to, have, want)
		}
	}
}

func TestStatusWireValues(t *testing.T) {
	for _, tc := range []struct {
		status Status
		want   string
	}{
		{StatusQueued, "queued"},
		{StatusRunning, "RUNNING"},
		{StatusSuccess, "SUCCESS"},
		{StatusFailed, "FAILED"},
	} {
		if have, want := string(tc.status), tc.want; have != want {
			t.Errorf("have %q, want %q", have, want)
		}
	}
}

func TestErrStatusTransition(t *testing.T) {
	err := NewErrStatusTransition(StatusSuccess, StatusQueued)
	if !errors.Is(err, ErrStatusRegression) {
		t.Errorf("expected ErrStatusRegression; have %v", err)
	}
}
