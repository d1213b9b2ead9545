// Package http contains HTTP handlers that work with the NanoScreen engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micromdm/nanoscreen/engine"
	"github.com/micromdm/nanoscreen/engine/storage"
	httpcmd "github.com/micromdm/nanoscreen/http"
	"github.com/micromdm/nanoscreen/http/api"
	"github.com/micromdm/nanoscreen/log/logkeys"
	"github.com/micromdm/nanoscreen/utils/uuid"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoStarter    = errors.New("missing workflow starter")
	ErrNoScheduler  = errors.New("missing task scheduler")
	ErrMissingStore = errors.New("missing state store")
	ErrInvalidID    = errors.New("invalid id")
	ErrInvalidJSON  = errors.New("request body is not valid JSON")
)

type WorkflowStarter interface {
	RunWorkflow(ctx context.Context, name string, payload []byte) (string, error)
}

type TaskScheduler interface {
	Schedule(ctx context.Context, taskType string, payload []byte) (string, error)
}

type StateGetter interface {
	GetState(ctx context.Context, id string) (*storage.State, error)
}

// statusCode maps engine errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoSuchWorkflow), errors.Is(err, engine.ErrNoSuchTaskType), errors.Is(err, storage.ErrStateNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidPayload), errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, httpcmd.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return 0
}

// readPayload reads the request body which must be empty or JSON.
func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := httpcmd.ReadBody(w, r, 0)
	if err != nil {
		return nil, err
	}
	if len(b) > 0 && !json.Valid(b) {
		return nil, ErrInvalidJSON
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, logger log.Logger, status int, v interface{}) {
	if err := api.JSON(w, v, status); err != nil {
		logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
	}
}

// StartWorkflowHandler creates a HandlerFunc that starts a workflow.
// The request body, if any, is the JSON payload of the first step.
func StartWorkflowHandler(starter WorkflowStarter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		name := flow.Param(r.Context(), "name")
		logger = logger.With(logkeys.WorkflowName, name)
		if starter == nil {
			logger.Info(logkeys.Message, "starting workflow", logkeys.Error, ErrNoStarter)
			api.JSONError(w, ErrNoStarter, 0)
			return
		}

		payload, err := readPayload(w, r)
		if err != nil {
			logger.Info(logkeys.Message, "reading payload", logkeys.Error, err)
			api.JSONError(w, err, statusCode(err))
			return
		}

		logger.Debug(logkeys.Message, "starting workflow")
		id, err := starter.RunWorkflow(r.Context(), name, payload)
		if err != nil {
			logger.Info(logkeys.Message, "starting workflow", logkeys.Error, err)
			api.JSONError(w, err, statusCode(err))
			return
		}

		writeJSON(w, logger, http.StatusAccepted, &struct {
			WorkflowID string `json:"workflow_id"`
		}{WorkflowID: id})
	}
}

// ScheduleTaskHandler creates a HandlerFunc that schedules a standalone task.
func ScheduleTaskHandler(scheduler TaskScheduler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		taskType := flow.Param(r.Context(), "type")
		logger = logger.With(logkeys.TaskType, taskType)
		if scheduler == nil {
			logger.Info(logkeys.Message, "scheduling task", logkeys.Error, ErrNoScheduler)
			api.JSONError(w, ErrNoScheduler, 0)
			return
		}

		payload, err := readPayload(w, r)
		if err != nil {
			logger.Info(logkeys.Message, "reading payload", logkeys.Error, err)
			api.JSONError(w, err, statusCode(err))
			return
		}

		id, err := scheduler.Schedule(r.Context(), taskType, payload)
		if err != nil {
			logger.Info(logkeys.Message, "scheduling task", logkeys.Error, err)
			api.JSONError(w, err, statusCode(err))
			return
		}

		writeJSON(w, logger, http.StatusAccepted, &struct {
			TaskID string `json:"task_id"`
		}{TaskID: id})
	}
}

// GetStateHandler creates a HandlerFunc that returns the state record of a workflow or task.
func GetStateHandler(getter StateGetter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if getter == nil {
			logger.Info(logkeys.Error, ErrMissingStore)
			api.JSONError(w, ErrMissingStore, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if !uuid.Valid(id) {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrInvalidID)
			api.JSONError(w, ErrInvalidID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.WorkflowID, id)

		state, err := getter.GetState(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieving state", logkeys.Error, err)
			api.JSONError(w, err, statusCode(err))
			return
		}

		writeJSON(w, logger, 0, state)
	}
}
