// Package engine implements the NanoScreen workflow engine.
//
// The engine allocates IDs, persists status records and publishes step
// chains to a task queue. A Worker consumes the queue and runs the steps.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/micromdm/nanoscreen/engine/queue"
	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/micromdm/nanoscreen/log/logkeys"
	"github.com/micromdm/nanoscreen/utils/canon"
	"github.com/micromdm/nanoscreen/utils/uuid"
	"github.com/micromdm/nanoscreen/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoSuchWorkflow = errors.New("no such workflow")
	ErrNoSuchTaskType = errors.New("no such task type")
	ErrEmptyChain     = errors.New("workflow has no steps")
	ErrInvalidPayload = errors.New("payload is not valid JSON")

	// ErrStepOutOfOrder is returned when recorded step progress does
	// not match the step being advanced from.
	ErrStepOutOfOrder = errors.New("step out of order")

	// ErrStatusRegression is returned when a status update would move
	// a record to a lower-ranked status or change a terminal status.
	ErrStatusRegression = workflow.ErrStatusRegression
)

func NewErrNoSuchWorkflow(name string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchWorkflow, name)
}

func NewErrNoSuchTaskType(taskType string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchTaskType, taskType)
}

// Engine coordinates workflows, their status records and the task queue.
type Engine struct {
	workflowsMu sync.RWMutex
	workflows   map[string]workflow.Workflow
	taskTypes   map[string]string // map of step names (task types) to workflow names

	storage   storage.Storage
	publisher queue.Publisher

	// serializes read-modify-write updates of a single record
	locks *keyLocks

	logger log.Logger
	ider   uuid.IDer
}

// Options configure the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIDer sets the generator of workflow, task and message IDs.
func WithIDer(ider uuid.IDer) Option {
	return func(e *Engine) {
		e.ider = ider
	}
}

// New creates a new NanoScreen engine with default configurations.
func New(storage storage.Storage, publisher queue.Publisher, opts ...Option) *Engine {
	engine := &Engine{
		workflows: make(map[string]workflow.Workflow),
		taskTypes: make(map[string]string),
		storage:   storage,
		publisher: publisher,
		locks:     newKeyLocks(),
		logger:    log.NopLogger,
		ider:      uuid.NewUUID(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// checkPayload makes sure payload is either empty or valid JSON.
func checkPayload(payload []byte) error {
	if len(payload) > 0 && !json.Valid(payload) {
		return ErrInvalidPayload
	}
	return nil
}

// Schedule queues a single step as a standalone task and returns its ID.
// The task's status record is created (queued) before the task is published.
func (e *Engine) Schedule(ctx context.Context, taskType string, payload []byte) (string, error) {
	w := e.taskWorkflow(taskType)
	if w == nil {
		return "", NewErrNoSuchTaskType(taskType)
	}
	if err := checkPayload(payload); err != nil {
		return "", err
	}

	id := e.ider.ID()
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.TaskID, id,
		logkeys.TaskType, taskType,
	)

	err := e.storage.StoreState(ctx, id, &storage.State{
		Status:   workflow.StatusQueued,
		TaskType: taskType,
		Payload:  payload,
	})
	if err != nil {
		return id, logAndError(err, logger, "storing task state")
	}

	err = e.publisher.Publish(ctx, &queue.Message{
		MessageID: e.ider.ID(),
		ID:        id,
		Workflow:  w.Name(),
		Steps:     []string{taskType},
		Task:      true,
		Context:   payload,
	})
	if err != nil {
		return id, logAndError(err, logger, "publishing task")
	}

	logger.Debug(logkeys.Message, "scheduled task")
	return id, nil
}

// RunWorkflow starts a new instance of the named workflow and returns its ID.
// It does not wait for any step to run. The QUEUED status record is
// written before the chain is published so that it is visible as soon
// as RunWorkflow returns and can never overwrite a later status.
func (e *Engine) RunWorkflow(ctx context.Context, name string, payload []byte) (string, error) {
	w := e.Workflow(name)
	if w == nil {
		return "", NewErrNoSuchWorkflow(name)
	}
	steps := w.Steps()
	if len(steps) < 1 {
		return "", fmt.Errorf("%w: %s", ErrEmptyChain, name)
	}
	if err := checkPayload(payload); err != nil {
		return "", err
	}

	id := e.ider.ID()
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.WorkflowID, id,
		logkeys.WorkflowName, name,
	)

	err := e.storage.StoreState(ctx, id, &storage.State{
		Status:   workflow.StatusQueued,
		TaskType: workflow.TaskTypeWorkflow,
	})
	if err != nil {
		return id, logAndError(err, logger, "storing workflow state")
	}

	err = e.publisher.Publish(ctx, &queue.Message{
		MessageID: e.ider.ID(),
		ID:        id,
		Workflow:  name,
		Steps:     steps,
		Context:   payload,
	})
	if err != nil {
		return id, logAndError(err, logger, "publishing workflow")
	}

	logger.Debug(
		logkeys.Message, "started workflow",
		logkeys.GenericCount, len(steps),
	)
	return id, nil
}

// sameJSON reports whether a and b are the same JSON document.
func sameJSON(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}
	ca, err := canon.Canonicalize(a)
	if err != nil {
		return false
	}
	cb, err := canon.Canonicalize(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// UpdateStatus sets the status of the record for id.
// The stored result is replaced only when result is non-nil.
// A missing record is created. Transitions that would lower the
// status rank or change a terminal status return ErrStatusRegression.
// So does replacing the result of a terminal record with a different one.
func (e *Engine) UpdateStatus(ctx context.Context, id string, status workflow.Status, result []byte) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", storage.ErrInvalidStatus, status)
	}

	unlock := e.locks.lock(id)
	defer unlock()

	state, err := e.storage.RetrieveState(ctx, id)
	if errors.Is(err, storage.ErrStateNotFound) {
		state = new(storage.State)
	} else if err != nil {
		return fmt.Errorf("retrieving state: %w", err)
	}

	if state.Status != "" && !state.Status.CanTransition(status) {
		return workflow.NewErrStatusTransition(state.Status, status)
	}
	if state.Status.Terminal() && result != nil && len(state.Result) > 0 && !sameJSON(state.Result, result) {
		return fmt.Errorf("%w: result of %q record is final", ErrStatusRegression, state.Status)
	}

	state.Status = status
	if result != nil {
		state.Result = result
	}
	if err = e.storage.StoreState(ctx, id, state); err != nil {
		return fmt.Errorf("storing state: %w", err)
	}

	ctxlog.Logger(ctx, e.logger).Debug(
		logkeys.Message, "updated status",
		logkeys.WorkflowID, id,
		logkeys.Status, status,
	)
	return nil
}

// AdvanceStep records that the workflow id moved from chain position
// from to position to. ErrStepOutOfOrder is returned if the recorded
// position is not from; nothing is changed in that case.
func (e *Engine) AdvanceStep(ctx context.Context, id string, from, to int) error {
	if to < 0 {
		return fmt.Errorf("%w: %d", storage.ErrInvalidStep, to)
	}

	unlock := e.locks.lock(id)
	defer unlock()

	state, err := e.storage.RetrieveState(ctx, id)
	if err != nil {
		return fmt.Errorf("retrieving state: %w", err)
	}
	if state.Position != from {
		return fmt.Errorf("%w: at %d, not %d", ErrStepOutOfOrder, state.Position, from)
	}
	state.Position = to
	if err = e.storage.StoreState(ctx, id, state); err != nil {
		return fmt.Errorf("storing state: %w", err)
	}
	return nil
}

// GetState returns the status record for id.
func (e *Engine) GetState(ctx context.Context, id string) (*storage.State, error) {
	return e.storage.RetrieveState(ctx, id)
}

func logAndError(err error, logger log.Logger, msg string) error {
	logger.Info(
		logkeys.Message, msg,
		logkeys.Error, err,
	)
	return fmt.Errorf("%s: %w", msg, err)
}
