// Package inmem implements an in-process task queue using channels.
// Queued messages are lost when the process exits.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/micromdm/nanoscreen/engine/queue"
	"github.com/micromdm/nanoscreen/log/logkeys"

	"github.com/micromdm/nanolib/log"
)

const (
	DefaultBufferSize  = 1024
	DefaultMaxAttempts = 3
	DefaultConcurrency = 4
)

type delivery struct {
	msg     *queue.Message
	attempt int
}

// Queue is an in-memory, at-least-once task queue.
type Queue struct {
	ch          chan delivery
	maxAttempts int
	concurrency int
	logger      log.Logger

	deadMu sync.RWMutex
	dead   []*queue.Message
}

// Option configures the queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger log.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithBufferSize sets the number of messages the queue holds before Publish blocks.
func WithBufferSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan delivery, n)
		}
	}
}

// WithMaxAttempts sets the total number of deliveries of a failing message.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithConcurrency sets the number of concurrent consumers started by Consume.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

// New creates a new in-memory queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		ch:          make(chan delivery, DefaultBufferSize),
		maxAttempts: DefaultMaxAttempts,
		concurrency: DefaultConcurrency,
		logger:      log.NopLogger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish queues a copy of msg.
// Publish blocks while the buffer is full.
func (q *Queue) Publish(ctx context.Context, msg *queue.Message) error {
	// round-trip through the wire encoding so handlers never share memory with publishers
	raw, err := queue.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	cp, err := queue.DecodeMessage(raw)
	if err != nil {
		return err
	}
	select {
	case q.ch <- delivery{msg: cp, attempt: 1}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume runs the configured number of consumers, each delivering
// messages to h, until ctx is done.
// Consume returns only after all of its goroutines have exited.
func (q *Queue) Consume(ctx context.Context, h queue.Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	var wg sync.WaitGroup
	requeue := func(d delivery) {
		select {
		case q.ch <- d:
		default:
			// buffer full; do not block the consumer
			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case q.ch <- d:
				case <-ctx.Done():
				}
			}()
		}
	}
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d := <-q.ch:
					if retry := q.deliver(ctx, h, d); retry != nil {
						requeue(*retry)
					}
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Drain synchronously delivers queued messages to h until the queue is empty.
// Messages published by h while draining are delivered too, as are
// redeliveries of failed messages.
func (q *Queue) Drain(ctx context.Context, h queue.Handler) error {
	var retries []delivery
	for {
		var d delivery
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d = <-q.ch:
		default:
			if len(retries) < 1 {
				return nil
			}
			d, retries = retries[0], retries[1:]
		}
		if retry := q.deliver(ctx, h, d); retry != nil {
			select {
			case q.ch <- *retry:
			default:
				retries = append(retries, *retry)
			}
		}
	}
}

// deliver hands d to h. The delivery to retry is returned when h
// failed and attempts remain.
func (q *Queue) deliver(ctx context.Context, h queue.Handler, d delivery) *delivery {
	err := h(ctx, d.msg)
	if err == nil {
		return nil
	}
	logger := q.logger.With(
		logkeys.MessageID, d.msg.MessageID,
		logkeys.WorkflowID, d.msg.ID,
		logkeys.StepName, d.msg.Step(),
		logkeys.Attempt, d.attempt,
		logkeys.Error, err,
	)
	if d.attempt >= q.maxAttempts {
		logger.Info(logkeys.Message, "delivery attempts exhausted; dead-lettering message")
		q.deadMu.Lock()
		q.dead = append(q.dead, d.msg)
		q.deadMu.Unlock()
		return nil
	}
	logger.Debug(logkeys.Message, "redelivering message")
	d.attempt++
	return &d
}

// Dead returns the messages whose delivery attempts were exhausted.
func (q *Queue) Dead() []*queue.Message {
	q.deadMu.RLock()
	defer q.deadMu.RUnlock()
	return append([]*queue.Message(nil), q.dead...)
}

// Len returns the number of messages waiting for delivery.
func (q *Queue) Len() int {
	return len(q.ch)
}
