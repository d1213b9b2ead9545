// Package compliance implements the address screening and acknowledgment workflow.
//
// The chain collects an address and its ownership acknowledgment,
// screens the address, decides by policy, archives the acknowledgment
// and issues a certificate over a hash of the collected context.
package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/log/logkeys"
	"github.com/micromdm/nanoscreen/subsystem/archive"
	"github.com/micromdm/nanoscreen/subsystem/policy"
	"github.com/micromdm/nanoscreen/utils/canon"
	"github.com/micromdm/nanoscreen/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

const WorkflowName = "io.micromdm.wf.compliance.v1"

// Step names. Each is also a task type for standalone scheduling.
const (
	StepCollectAddress = "collect_address"
	StepSanctionScreen = "sanction_screen"
	StepAnalyzeResults = "analyze_results"
	StepStoreAck       = "store_ack"
	StepAnchorLog      = "anchor_log"
	StepMarkDone       = "mark_workflow_done"
)

var steps = []string{
	StepCollectAddress,
	StepSanctionScreen,
	StepAnalyzeResults,
	StepStoreAck,
	StepAnchorLog,
	StepMarkDone,
}

// Screener screens addresses.
type Screener interface {
	Screen(ctx context.Context, address string) (map[string]interface{}, error)
}

// Evaluator decides a risk score.
type Evaluator interface {
	Evaluate(ctx context.Context, score float64) (policy.Decision, policy.Rationale, error)
}

// Archiver persists acknowledgment documents.
type Archiver interface {
	Store(ctx context.Context, doc *archive.Acknowledgment) (*archive.Reference, error)
}

// Workflow is the compliance workflow.
type Workflow struct {
	updater   workflow.StatusUpdater
	screener  Screener
	evaluator Evaluator
	archiver  Archiver
	logger    log.Logger
}

type Option func(*Workflow)

// WithLogger sets the workflow logger.
func WithLogger(logger log.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// New creates a new compliance workflow.
// The updater (usually the engine) receives the final SUCCESS status.
func New(updater workflow.StatusUpdater, screener Screener, evaluator Evaluator, archiver Archiver, opts ...Option) (*Workflow, error) {
	switch {
	case updater == nil:
		return nil, errors.New("nil status updater")
	case screener == nil:
		return nil, errors.New("nil screener")
	case evaluator == nil:
		return nil, errors.New("nil evaluator")
	case archiver == nil:
		return nil, errors.New("nil archiver")
	}
	w := &Workflow{
		updater:   updater,
		screener:  screener,
		evaluator: evaluator,
		archiver:  archiver,
		logger:    log.NopLogger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Workflow) Name() string {
	return WorkflowName
}

func (w *Workflow) Steps() []string {
	return append([]string(nil), steps...)
}

// RunStep runs a single named step of the chain.
func (w *Workflow) RunStep(ctx context.Context, step *workflow.StepContext) ([]byte, error) {
	if step == nil {
		return nil, errors.New("nil step")
	}
	logger := ctxlog.Logger(ctx, w.logger).With(
		logkeys.WorkflowID, step.ID,
		logkeys.StepName, step.Name,
	)

	if step.Name == StepCollectAddress {
		req := new(workflow.Request)
		if err := req.UnmarshalBinary(step.Context); err != nil {
			return nil, fmt.Errorf("%w: %v", workflow.ErrIncorrectContextType, err)
		}
		return collectAddress(req).MarshalBinary()
	}

	c := new(Context)
	if err := c.UnmarshalBinary(step.Context); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrIncorrectContextType, err)
	}

	var err error
	switch step.Name {
	case StepSanctionScreen:
		w.sanctionScreen(ctx, logger, c)
	case StepAnalyzeResults:
		err = w.analyzeResults(ctx, logger, c)
	case StepStoreAck:
		err = w.storeAck(ctx, c)
	case StepAnchorLog:
		err = anchorLog(c)
	case StepMarkDone:
		return w.markDone(ctx, step.ID, c)
	default:
		return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownStepName, step.Name)
	}
	if err != nil {
		return nil, err
	}
	return c.MarshalBinary()
}

// collectAddress normalizes the inbound request.
func collectAddress(req *workflow.Request) *Context {
	return &Context{Address: req.Address, OwnerAck: req.Ack}
}

// sanctionScreen records the screening result.
// Screening failures are recorded in the context rather than returned.
func (w *Workflow) sanctionScreen(ctx context.Context, logger log.Logger, c *Context) {
	result, err := w.screener.Screen(ctx, c.Address)
	if err != nil {
		logger.Info(
			logkeys.Message, "screening failed; continuing degraded",
			logkeys.Error, err,
		)
		c.Screening = map[string]interface{}{
			"address": c.Address,
			"error":   ScreenFailed,
		}
		return
	}
	c.Screening = result
}

func (w *Workflow) analyzeResults(ctx context.Context, logger log.Logger, c *Context) error {
	score, ok := riskScore(c.Screening)
	if !ok && c.Screening != nil && !c.ScreeningFailed() {
		logger.Debug(logkeys.Message, "no usable risk_score in screening result; using 0")
	}
	d, r, err := w.evaluator.Evaluate(ctx, score)
	if err != nil {
		return fmt.Errorf("evaluating policy: %w", err)
	}
	c.Analysis = &Analysis{Decision: d, Rationale: r.String()}
	return nil
}

func (w *Workflow) storeAck(ctx context.Context, c *Context) error {
	ref, err := w.archiver.Store(ctx, &archive.Acknowledgment{
		Address:  c.Address,
		OwnerAck: c.OwnerAck,
	})
	if err != nil {
		return fmt.Errorf("archiving acknowledgment: %w", err)
	}
	c.AckRef = ref
	return nil
}

// DataHash returns the certificate hash of c.
// The anchor and certificate fields are not covered.
func DataHash(c *Context) (string, error) {
	_, digest, err := canon.Hash(c.hashable())
	return digest, err
}

func anchorLog(c *Context) error {
	digest, err := DataHash(c)
	if err != nil {
		return fmt.Errorf("hashing context: %w", err)
	}
	c.AnchorRef = digest
	c.Certificate = &Certificate{
		Address:      c.Address,
		Acknowledged: c.OwnerAck,
		DataHash:     digest,
	}
	return nil
}

// markDone records the final context as the SUCCESS result of id.
func (w *Workflow) markDone(ctx context.Context, id string, c *Context) ([]byte, error) {
	out, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err = w.updater.UpdateStatus(ctx, id, workflow.StatusSuccess, out); err != nil {
		return nil, fmt.Errorf("marking workflow done: %w", err)
	}
	return out, nil
}
