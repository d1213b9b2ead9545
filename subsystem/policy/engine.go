package policy

import (
	"context"
	"errors"

	"github.com/micromdm/nanoscreen/log/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Engine evaluates scores against thresholds from a source.
type Engine struct {
	src    ThresholdSource
	logger log.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the audit logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a new policy engine.
func NewEngine(src ThresholdSource, opts ...Option) (*Engine, error) {
	if src == nil {
		return nil, errors.New("nil threshold source")
	}
	e := &Engine{src: src, logger: log.NopLogger}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate loads the current thresholds, decides score and logs an audit entry.
func (e *Engine) Evaluate(ctx context.Context, score float64) (Decision, Rationale, error) {
	t, err := e.src.Thresholds(ctx)
	if err != nil {
		return "", Rationale{}, err
	}
	d, r := Decide(score, t)
	logger := ctxlog.Logger(ctx, e.logger)
	logger.Info(
		logkeys.Message, "screening analysis",
		"recommendation", d,
		"rationale", r.String(),
		"score", score,
		"threshold", r.Threshold,
	)
	return d, r, nil
}
