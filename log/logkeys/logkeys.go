// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// a workflow instance ID; also the state key polled by callers.
	WorkflowID = "workflow_id"

	// a standalone scheduled task ID.
	TaskID = "task_id"

	WorkflowName = "workflow_name"
	StepName     = "step_name"
	TaskType     = "task_type"
	Status       = "status"

	// archive backend name (ipfs, s3, local)
	Backend = "backend"

	// queue message ID and delivery attempt
	MessageID = "message_id"
	Attempt   = "attempt"

	// chain index of a workflow step
	Position = "position"

	// a screened address. may be sensitive; only logged at debug level.
	Address = "address"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
