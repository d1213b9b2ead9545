package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/engine/queue"
	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/micromdm/nanoscreen/log/logkeys"
	"github.com/micromdm/nanoscreen/utils/uuid"
	"github.com/micromdm/nanoscreen/workflow"

	"github.com/micromdm/nanolib/log"
)

type WorkflowFinder interface {
	Workflow(name string) workflow.Workflow
}

// StepTracker records workflow status and step progress.
// The Engine is a StepTracker.
type StepTracker interface {
	workflow.StatusUpdater
	GetState(ctx context.Context, id string) (*storage.State, error)
	AdvanceStep(ctx context.Context, id string, from, to int) error
}

// Worker consumes the task queue and runs workflow steps.
//
// For workflow messages the worker runs the next step and publishes
// the rest of the chain with the step's output as its context. The
// workflow is marked RUNNING when its first step starts; the chain
// itself is responsible for marking the workflow done.
//
// Step progress is recorded before the rest of the chain is published.
// A message whose position is not the recorded next position is a
// duplicate (or stale) delivery and is dropped.
//
// Standalone tasks are marked RUNNING, then SUCCESS with the step
// output or FAILED with the step error.
type Worker struct {
	wff       WorkflowFinder
	tracker   StepTracker
	publisher queue.Publisher
	consumer  queue.Consumer
	logger    log.Logger
	ider      uuid.IDer

	// one step at a time per workflow or task ID
	locks *keyLocks
}

type WorkerOption func(w *Worker)

func WithWorkerLogger(logger log.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithWorkerIDer sets the generator of message IDs.
func WithWorkerIDer(ider uuid.IDer) WorkerOption {
	return func(w *Worker) {
		w.ider = ider
	}
}

// NewWorker creates a new worker. The Engine satisfies both wff and tracker.
func NewWorker(wff WorkflowFinder, tracker StepTracker, q queue.Queue, opts ...WorkerOption) *Worker {
	w := &Worker{
		wff:       wff,
		tracker:   tracker,
		publisher: q,
		consumer:  q,
		logger:    log.NopLogger,
		ider:      uuid.NewUUID(),
		locks:     newKeyLocks(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug(logkeys.Message, "starting worker")
	return w.consumer.Consume(ctx, w.Handle)
}

// Handle processes a single queue message.
// A returned error requests redelivery of msg.
func (w *Worker) Handle(ctx context.Context, msg *queue.Message) error {
	if err := msg.Validate(); err != nil {
		w.logger.Info(logkeys.Message, "invalid message; dropping", logkeys.Error, err)
		return nil
	}

	logger := w.logger.With(
		logkeys.MessageID, msg.MessageID,
		logkeys.WorkflowID, msg.ID,
		logkeys.WorkflowName, msg.Workflow,
		logkeys.StepName, msg.Step(),
	)

	wf := w.wff.Workflow(msg.Workflow)
	if wf == nil {
		return logAndError(NewErrNoSuchWorkflow(msg.Workflow), logger, "finding workflow")
	}

	unlock := w.locks.lock(msg.ID)
	defer unlock()

	if msg.Task {
		return w.handleTask(ctx, logger, wf, msg)
	}

	state, err := w.tracker.GetState(ctx, msg.ID)
	if err != nil {
		return logAndError(err, logger, "retrieving workflow state")
	}
	if state.Status.Terminal() || state.Position != msg.Position {
		logger.Info(
			logkeys.Message, "step out of sequence; dropping duplicate",
			logkeys.Status, state.Status,
			logkeys.Position, msg.Position,
			"expected_position", state.Position,
		)
		return nil
	}

	if msg.Position == 0 {
		err = w.tracker.UpdateStatus(ctx, msg.ID, workflow.StatusRunning, nil)
		if errors.Is(err, ErrStatusRegression) {
			logger.Info(logkeys.Message, "workflow already advanced; dropping duplicate", logkeys.Error, err)
			return nil
		} else if err != nil {
			return logAndError(err, logger, "marking workflow running")
		}
	}

	out, err := wf.RunStep(ctx, &workflow.StepContext{
		ID:      msg.ID,
		Name:    msg.Step(),
		Context: msg.Context,
	})
	if err != nil {
		return logAndError(err, logger, "running step")
	}

	next := msg.Next(w.ider.ID(), out)
	if next == nil {
		logger.Debug(logkeys.Message, "chain complete")
		return nil
	}

	err = w.tracker.AdvanceStep(ctx, msg.ID, msg.Position, next.Position)
	if errors.Is(err, ErrStepOutOfOrder) {
		// another delivery of this step finished first
		logger.Info(logkeys.Message, "step already completed; dropping duplicate", logkeys.Error, err)
		return nil
	} else if err != nil {
		return logAndError(err, logger, "recording step progress")
	}

	if err = w.publisher.Publish(ctx, next); err != nil {
		// let the redelivered step run again
		if rbErr := w.tracker.AdvanceStep(ctx, msg.ID, next.Position, msg.Position); rbErr != nil {
			logger.Info(logkeys.Message, "rolling back step progress", logkeys.Error, rbErr)
		}
		return logAndError(err, logger, "publishing next step")
	}
	logger.Debug(logkeys.Message, "step complete", "next_step", next.Step())
	return nil
}

type taskError struct {
	Error string `json:"error"`
}

func (w *Worker) handleTask(ctx context.Context, logger log.Logger, wf workflow.Workflow, msg *queue.Message) error {
	logger = logger.With(logkeys.TaskID, msg.ID)

	err := w.tracker.UpdateStatus(ctx, msg.ID, workflow.StatusRunning, nil)
	if errors.Is(err, ErrStatusRegression) {
		logger.Info(logkeys.Message, "task already finished; dropping duplicate", logkeys.Error, err)
		return nil
	} else if err != nil {
		return logAndError(err, logger, "marking task running")
	}

	out, stepErr := wf.RunStep(ctx, &workflow.StepContext{
		ID:         msg.ID,
		Name:       msg.Step(),
		Standalone: true,
		Context:    msg.Context,
	})
	if stepErr != nil {
		logger.Info(logkeys.Message, "task failed", logkeys.Error, stepErr)
		result, err := json.Marshal(&taskError{Error: stepErr.Error()})
		if err != nil {
			return fmt.Errorf("marshal task error: %w", err)
		}
		err = w.tracker.UpdateStatus(ctx, msg.ID, workflow.StatusFailed, result)
		if errors.Is(err, ErrStatusRegression) {
			logger.Info(logkeys.Message, "task already finished; dropping failure", logkeys.Error, err)
		} else if err != nil {
			return logAndError(err, logger, "marking task failed")
		}
		return nil
	}

	if len(out) > 0 && !json.Valid(out) {
		// keep the record valid JSON
		out, _ = json.Marshal(string(out))
	}
	err = w.tracker.UpdateStatus(ctx, msg.ID, workflow.StatusSuccess, out)
	if errors.Is(err, ErrStatusRegression) {
		logger.Info(logkeys.Message, "task already finished; dropping result", logkeys.Error, err)
		return nil
	} else if err != nil {
		return logAndError(err, logger, "marking task success")
	}
	logger.Debug(logkeys.Message, "task complete")
	return nil
}
