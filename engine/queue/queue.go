// Package queue defines the task queue used by the workflow engine.
//
// A message carries the remaining step chain of a single workflow
// instance (or a single standalone task). Queues deliver messages at
// least once: a handler returning an error causes the message to be
// redelivered, up to a backend-specific limit.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage    = errors.New("empty message")
	ErrMissingID       = errors.New("missing id")
	ErrMissingWorkflow = errors.New("missing workflow name")
	ErrNoSteps         = errors.New("no steps")
)

// Message is a unit of work for the engine worker.
type Message struct {
	// MessageID uniquely identifies this message (not the workflow).
	MessageID string `json:"message_id"`

	// ID is the workflow instance or task ID. It keys the status record.
	ID string `json:"id"`

	// Workflow is the name of the workflow owning the steps.
	Workflow string `json:"workflow"`

	// Steps is the remaining step chain. Steps[0] runs next.
	Steps []string `json:"steps"`

	// Position is the index of Steps[0] within the full chain.
	Position int `json:"position"`

	// Task is true for standalone scheduled tasks.
	Task bool `json:"task,omitempty"`

	// Context is the JSON input of Steps[0].
	Context json.RawMessage `json:"context,omitempty"`
}

// Validate checks for missing values.
func (m *Message) Validate() error {
	if m == nil {
		return ErrEmptyMessage
	}
	if m.ID == "" {
		return ErrMissingID
	}
	if m.Workflow == "" {
		return ErrMissingWorkflow
	}
	if len(m.Steps) < 1 {
		return ErrNoSteps
	}
	return nil
}

// Step returns the name of the step to run next.
func (m *Message) Step() string {
	if m == nil || len(m.Steps) < 1 {
		return ""
	}
	return m.Steps[0]
}

// Next returns the message for the remainder of the chain with output
// as its context. Nil is returned when no steps remain.
func (m *Message) Next(messageID string, output []byte) *Message {
	if m == nil || len(m.Steps) < 2 {
		return nil
	}
	return &Message{
		MessageID: messageID,
		ID:        m.ID,
		Workflow:  m.Workflow,
		Steps:     append([]string(nil), m.Steps[1:]...),
		Position:  m.Position + 1,
		Task:      m.Task,
		Context:   append(json.RawMessage(nil), output...),
	}
}

// EncodeMessage serializes msg for the wire.
func EncodeMessage(msg *Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// DecodeMessage parses and validates a wire message.
func DecodeMessage(raw []byte) (*Message, error) {
	msg := new(Message)
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("validate message: %w", err)
	}
	return msg, nil
}

// Handler processes a single message.
// A non-nil error requests redelivery.
type Handler func(ctx context.Context, msg *Message) error

// Publisher sends messages to the queue.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Consumer delivers queued messages to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

// Queue is both a Publisher and a Consumer.
type Queue interface {
	Publisher
	Consumer
}
