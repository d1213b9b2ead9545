package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/engine/queue"
	queueinmem "github.com/micromdm/nanoscreen/engine/queue/inmem"
	queuesqs "github.com/micromdm/nanoscreen/engine/queue/sqs"

	"github.com/micromdm/nanolib/log"
)

func parseQueue(ctx context.Context, logger log.Logger, name, url, region string, workers int) (queue.Queue, error) {
	switch name {
	case "inmem":
		return queueinmem.New(
			queueinmem.WithLogger(logger),
			queueinmem.WithConcurrency(workers),
		), nil
	case "sqs":
		if url == "" {
			return nil, errors.New("sqs queue requires a queue URL")
		}
		q, err := queuesqs.NewFromConfig(ctx, region, url,
			queuesqs.WithLogger(logger),
			queuesqs.WithConcurrency(workers),
		)
		if err != nil {
			return nil, fmt.Errorf("creating sqs queue: %w", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue: %s", name)
	}
}
