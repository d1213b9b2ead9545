// Package sqs implements the task queue using AWS SQS.
//
// Messages are deleted only after the handler succeeds. Failed messages
// become visible again after the visibility timeout; configure a
// redrive policy on the queue to bound redelivery.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/micromdm/nanoscreen/engine/queue"
	"github.com/micromdm/nanoscreen/log/logkeys"

	"github.com/micromdm/nanolib/log"
)

const (
	DefaultWaitSeconds       = 20
	DefaultVisibilitySeconds = 300
	DefaultConcurrency       = 4
	DefaultErrorBackoff      = time.Second
	maxMessages              = 10
)

// API is the subset of the SQS client used by the queue.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue is an SQS-backed task queue.
type Queue struct {
	client   API
	queueURL string
	logger   log.Logger

	waitSeconds       int32
	visibilitySeconds int32
	concurrency       int
	errorBackoff      time.Duration
}

// Option configures the queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger log.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithVisibilityTimeout sets the visibility timeout in seconds of received messages.
func WithVisibilityTimeout(seconds int32) Option {
	return func(q *Queue) {
		q.visibilitySeconds = seconds
	}
}

// WithWaitTime sets the long-poll wait time in seconds.
func WithWaitTime(seconds int32) Option {
	return func(q *Queue) {
		q.waitSeconds = seconds
	}
}

// WithConcurrency sets the maximum number of in-flight handlers.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

// WithErrorBackoff sets the delay before polling again after a failed receive.
func WithErrorBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.errorBackoff = d
		}
	}
}

// New creates a new SQS queue using client.
func New(client API, queueURL string, opts ...Option) (*Queue, error) {
	if client == nil {
		return nil, errors.New("nil sqs client")
	}
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, errors.New("empty queue url")
	}
	q := &Queue{
		client:            client,
		queueURL:          queueURL,
		logger:            log.NopLogger,
		waitSeconds:       DefaultWaitSeconds,
		visibilitySeconds: DefaultVisibilitySeconds,
		concurrency:       DefaultConcurrency,
		errorBackoff:      DefaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// NewFromConfig creates a new SQS queue using the default AWS config chain for region.
func NewFromConfig(ctx context.Context, region, queueURL string, opts ...Option) (*Queue, error) {
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(sqs.NewFromConfig(cfg), queueURL, opts...)
}

// Publish sends msg to the queue.
func (q *Queue) Publish(ctx context.Context, msg *queue.Message) error {
	payload, err := queue.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

// Consume long-polls the queue and delivers messages to h until ctx is done.
// In-flight handlers are waited on before returning.
func (q *Queue) Consume(ctx context.Context, h queue.Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	sem := make(chan struct{}, q.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: maxMessages,
			WaitTimeSeconds:     q.waitSeconds,
			VisibilityTimeout:   q.visibilitySeconds,
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Info(logkeys.Message, "sqs receive message", logkeys.Error, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.errorBackoff):
			}
			continue
		}
		for _, m := range resp.Messages {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				q.handle(ctx, h, m)
			}(m)
		}
	}
}

func (q *Queue) handle(ctx context.Context, h queue.Handler, m sqstypes.Message) {
	logger := q.logger.With(
		"sqs_message_id", aws.ToString(m.MessageId),
		logkeys.Attempt, m.Attributes["ApproximateReceiveCount"],
	)
	msg, err := queue.DecodeMessage([]byte(aws.ToString(m.Body)))
	if err != nil {
		// unrecoverable; redelivering would only fail again
		logger.Info(logkeys.Message, "decoding message; deleting", logkeys.Error, err)
		q.delete(ctx, logger, m)
		return
	}
	logger = logger.With(
		logkeys.MessageID, msg.MessageID,
		logkeys.WorkflowID, msg.ID,
		logkeys.StepName, msg.Step(),
	)
	if err = h(ctx, msg); err != nil {
		logger.Info(logkeys.Message, "handling message; leaving for redelivery", logkeys.Error, err)
		return
	}
	q.delete(ctx, logger, m)
}

func (q *Queue) delete(ctx context.Context, logger log.Logger, m sqstypes.Message) {
	receipt := aws.ToString(m.ReceiptHandle)
	if receipt == "" {
		logger.Info(logkeys.Message, "deleting message", logkeys.Error, "missing receipt handle")
		return
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		logger.Info(logkeys.Message, "deleting message", logkeys.Error, err)
	}
}
