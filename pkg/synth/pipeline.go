package synth

import (
	"context"

	"conductor/pkg/config"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/model"
	"conductor/pkg/store"
	"conductor/pkg/taskgraph"
)

// DefaultMaxRetries bounds the correction loop after the first attempt.
const DefaultMaxRetries = 3

// Pipeline runs the generate-validate-retry loop against one store.
type Pipeline struct {
	ops        *store.Ops
	gen        Generator
	logger     *logx.Logger
	metrics    *metrics.Metrics
	maxRetries int
}

// NewPipeline wires a pipeline with the default retry budget.
func NewPipeline(ops *store.Ops, gen Generator) *Pipeline {
	return &Pipeline{
		ops:        ops,
		gen:        gen,
		logger:     logx.NewLogger("synth"),
		maxRetries: DefaultMaxRetries,
	}
}

// SetMaxRetries overrides the retry budget.
func (p *Pipeline) SetMaxRetries(n int) {
	if n >= 0 {
		p.maxRetries = n
	}
}

// Configure applies the operator settings that concern generation.
func (p *Pipeline) Configure(cfg *config.Config) {
	p.SetMaxRetries(cfg.MaxGenerationRetries)
}

// SetMetrics attaches instrumentation. Nil metrics are safe.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SynthesisResult is the outcome of a successful whole-queue synthesis.
type SynthesisResult struct {
	Payload  *SynthesisPayload
	Warnings []string
	Attempts int
}

// SynthesizeQueue composes the synthesis context, drives the retry loop,
// and on success stores the milestones and tasks in one transaction.
// Validation runs against the union of stored and generated milestones and
// the full stored decision set.
func (p *Pipeline) SynthesizeQueue(ctx context.Context) (*SynthesisResult, error) {
	composed, err := ComposeSynthesisContext(p.ops)
	if err != nil {
		return nil, err
	}

	req := &Request{Kind: KindSynthesis, Context: composed}
	var lastOutput string
	var lastErrs []string

	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		req.Attempt = attempt

		raw, err := p.gen.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		lastOutput = raw

		payload, recordErrs, err := ParseSynthesis(raw)
		if err != nil {
			lastErrs = []string{err.Error()}
			p.prepareRetry(req, raw, lastErrs, nil)
			continue
		}

		allMilestones := make([]*model.Milestone, 0, len(composed.Milestones)+len(payload.Milestones))
		allMilestones = append(allMilestones, composed.Milestones...)
		allMilestones = append(allMilestones, payload.Milestones...)
		result := taskgraph.Validate(payload.Tasks, allMilestones, composed.Decisions)
		result.Errors = append(recordErrs, result.Errors...)

		if !result.Valid() {
			lastErrs = result.Errors
			p.logger.Debug("synthesis attempt %d failed with %d errors", attempt, len(result.Errors))
			p.prepareRetry(req, raw, result.Errors, result.Warnings)
			continue
		}

		if err := p.ops.StoreTaskBatch(payload.Milestones, payload.Tasks); err != nil {
			return nil, err
		}
		p.logger.Info("synthesized %d tasks across %d milestones in %d attempt(s)",
			len(payload.Tasks), len(allMilestones), attempt)
		return &SynthesisResult{Payload: payload, Warnings: result.Warnings, Attempts: attempt}, nil
	}

	return nil, &RetryExhaustedError{
		Attempts:   p.maxRetries + 1,
		Errors:     lastErrs,
		LastOutput: lastOutput,
	}
}

// prepareRetry mutates the request for the next attempt and counts it.
func (p *Pipeline) prepareRetry(req *Request, raw string, errs, warnings []string) {
	req.RetryMessage = BuildRetryMessage(req.Kind, raw, errs, warnings)
	p.metrics.IncGenerationRetries()
}
