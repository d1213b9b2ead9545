package sqs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/micromdm/nanoscreen/engine/queue"
)

// fakeSQS is a single-receive fake of the SQS API.
type fakeSQS struct {
	mu       sync.Mutex
	sent     []string
	pending  []sqstypes.Message
	deleted  []string
	received chan struct{}
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, aws.ToString(params.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("sent")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	msgs := f.pending
	f.pending = nil
	f.mu.Unlock()
	if len(msgs) > 0 {
		return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
	}
	select {
	case f.received <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestPublish(t *testing.T) {
	f := &fakeSQS{}
	q, err := New(f, "https://sqs.example/queue")
	if err != nil {
		t.Fatal(err)
	}
	err = q.Publish(context.Background(), &queue.Message{
		MessageID: "m1",
		ID:        "wf1",
		Workflow:  "test.wf",
		Steps:     []string{"a"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if want, have := 1, len(f.sent); want != have {
		t.Fatalf("sent: want %d, have %d", want, have)
	}
	msg, err := queue.DecodeMessage([]byte(f.sent[0]))
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "wf1", msg.ID; want != have {
		t.Errorf("want %q, have %q", want, have)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(&fakeSQS{}, "  "); err == nil {
		t.Error("expected error")
	}
}

func TestConsumeDeletesOnSuccess(t *testing.T) {
	good := `{"message_id":"m1","id":"ok","workflow":"test.wf","steps":["a"]}`
	bad := `{"message_id":"m2","id":"fail","workflow":"test.wf","steps":["a"]}`
	f := &fakeSQS{
		received: make(chan struct{}, 1),
		pending: []sqstypes.Message{
			{MessageId: aws.String("1"), ReceiptHandle: aws.String("r-ok"), Body: aws.String(good)},
			{MessageId: aws.String("2"), ReceiptHandle: aws.String("r-fail"), Body: aws.String(bad)},
			{MessageId: aws.String("3"), ReceiptHandle: aws.String("r-poison"), Body: aws.String("not json")},
		},
	}
	q, err := New(f, "https://sqs.example/queue")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var handled sync.WaitGroup
	handled.Add(2)
	go func() {
		handled.Wait()
		<-f.received
		cancel()
	}()

	err = q.Consume(ctx, func(_ context.Context, msg *queue.Message) error {
		defer handled.Done()
		if msg.ID == "fail" {
			return errors.New("step failed")
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("have %v, want %v", err, context.Canceled)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := make(map[string]bool)
	for _, r := range f.deleted {
		deleted[r] = true
	}
	if !deleted["r-ok"] {
		t.Error("expected successful message to be deleted")
	}
	if !deleted["r-poison"] {
		t.Error("expected undecodable message to be deleted")
	}
	if deleted["r-fail"] {
		t.Error("failed message should be left for redelivery")
	}
}

// failingSQS fails every receive.
type failingSQS struct {
	fakeSQS
	receives int
}

func (f *failingSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	return nil, errors.New("service unavailable")
}

func TestConsumeBacksOffOnReceiveError(t *testing.T) {
	f := &failingSQS{}
	q, err := New(f, "https://sqs.example/queue", WithErrorBackoff(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	err = q.Consume(ctx, func(context.Context, *queue.Message) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("have %v, want %v", err, context.DeadlineExceeded)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receives < 2 || f.receives > 10 {
		t.Errorf("receives: want between 2 and 10, have %d", f.receives)
	}
}
