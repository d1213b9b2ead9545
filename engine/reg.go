package engine

import (
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/log/logkeys"
	"github.com/micromdm/nanoscreen/workflow"
)

func in(s []string, i string) int {
	for j, v := range s {
		if v == i {
			return j
		}
	}
	return -1
}

// RegisterWorkflow associates w with the engine by name.
// Each step name of w becomes a task type that can be scheduled on its own.
// Step names must be unique across all registered workflows.
func (e *Engine) RegisterWorkflow(w workflow.Workflow) error {
	if w == nil {
		return errors.New("nil workflow")
	}
	steps := w.Steps()
	if len(steps) < 1 {
		return fmt.Errorf("%w: %s", ErrEmptyChain, w.Name())
	}
	e.workflowsMu.Lock()
	defer e.workflowsMu.Unlock()
	for i, step := range steps {
		if in(steps[:i], step) >= 0 {
			return fmt.Errorf("duplicate step name in workflow %s: %s", w.Name(), step)
		}
		if owner, ok := e.taskTypes[step]; ok && owner != w.Name() {
			return fmt.Errorf("step name %s already registered by workflow %s", step, owner)
		}
	}
	e.workflows[w.Name()] = w
	for _, step := range steps {
		e.taskTypes[step] = w.Name()
	}
	e.logger.Debug(
		logkeys.Message, "registered workflow",
		logkeys.WorkflowName, w.Name(),
		logkeys.GenericCount, len(steps),
	)
	return nil
}

// UnregisterWorkflow dissociates the named workflow from the engine by name.
func (e *Engine) UnregisterWorkflow(name string) error {
	e.workflowsMu.Lock()
	defer e.workflowsMu.Unlock()
	if _, ok := e.workflows[name]; ok {
		delete(e.workflows, name)
		for taskType, owner := range e.taskTypes {
			if owner == name {
				delete(e.taskTypes, taskType)
			}
		}
		e.logger.Debug(logkeys.Message, "unregistered workflow", logkeys.WorkflowName, name)
	} else {
		e.logger.Info(
			logkeys.Message, "unregistered workflow",
			logkeys.WorkflowName, name,
			logkeys.Error, "workflow name not found",
		)
	}
	return nil
}

// Workflow returns the registered workflow by name.
func (e *Engine) Workflow(name string) workflow.Workflow {
	e.workflowsMu.RLock()
	defer e.workflowsMu.RUnlock()
	return e.workflows[name]
}

// WorkflowRegistered returns true if the workflow name is registered.
func (e *Engine) WorkflowRegistered(name string) bool {
	e.workflowsMu.RLock()
	defer e.workflowsMu.RUnlock()
	_, ok := e.workflows[name]
	return ok
}

// taskWorkflow returns the workflow that owns the taskType step.
func (e *Engine) taskWorkflow(taskType string) workflow.Workflow {
	e.workflowsMu.RLock()
	defer e.workflowsMu.RUnlock()
	name, ok := e.taskTypes[taskType]
	if !ok {
		return nil
	}
	return e.workflows[name]
}
