package workflow

import "errors"

var (
	// ErrUnknownStepName occurs when a workflow encounters a step name
	// it does not know about.
	ErrUnknownStepName = errors.New("unknown step name")

	// ErrIncorrectContextType indicates a step did not receive
	// context it could decode for this step name.
	ErrIncorrectContextType = errors.New("incorrect context type")
)

// StepContext contains context for a step.
type StepContext struct {
	// ID is the workflow instance ID or, for standalone tasks, the task ID.
	// Either way it is the key of the status record for this run.
	ID string

	// Name is used by the workflow to identify which step is being processed.
	Name string

	// Standalone is true when the step was scheduled as a single task
	// rather than as part of a workflow chain.
	Standalone bool

	// Context is the raw JSON input of this step.
	Context []byte
}

// ErrStatusRegression is returned when a status update would move a
// record backwards or change a terminal status.
var ErrStatusRegression = errors.New("status regression")
