package workflow

import "context"

// TaskTypeWorkflow is the task type recorded for workflow instances.
// Standalone scheduled tasks record their step name as the task type.
const TaskTypeWorkflow = "workflow"

// Namers provide a name string.
type Namer interface {
	// Name returns the name of the workflow; reverse-DNS style by convention.
	// This string is generally used to route messages to this workflow.
	Name() string
}

// Workflows are an ordered chain of named steps.
//
// Each step consumes the JSON context produced by the step before it
// (or the initial payload for the first step) and returns the JSON
// context for the step after it.
type Workflow interface {
	Namer

	// Steps returns the ordered step names of the workflow.
	// The first step receives the workflow payload.
	Steps() []string

	// RunStep runs the single step named in step.
	// The returned bytes are the output context handed to the next step.
	RunStep(ctx context.Context, step *StepContext) ([]byte, error)
}

// StatusUpdaters record status transitions for workflow instances and tasks.
type StatusUpdater interface {
	// UpdateStatus sets the status of id, replacing the stored result when result is non-nil.
	UpdateStatus(ctx context.Context, id string, status Status, result []byte) error
}
