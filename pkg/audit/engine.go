package audit

import (
	"fmt"
	"sort"
	"strings"

	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/model"
	"conductor/pkg/store"
)

// Engine runs the completeness audit against one store.
type Engine struct {
	ops     *store.Ops
	logger  *logx.Logger
	metrics *metrics.Metrics
}

// NewEngine wires an audit engine.
func NewEngine(ops *store.Ops) *Engine {
	return &Engine{ops: ops, logger: logx.NewLogger("audit")}
}

// SetMetrics attaches instrumentation. Nil metrics are safe.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// RunResult is the outcome of one deterministic audit run.
type RunResult struct {
	Gaps        []*model.AuditGap
	NextGapID   int
	TaskCount   int
	RuleMatches int
}

// Run executes layers 1 and 2 and replaces all open gaps with the result in
// one transaction. Gap ids are numbered layer 1 first, layer 2 continuing,
// never restarting, and never reusing a number held by an accepted or
// dismissed gap. Re-running against unchanged state reproduces an identical
// gap set.
func (e *Engine) Run() (*RunResult, error) {
	decisions, err := e.ops.ListDecisions()
	if err != nil {
		return nil, err
	}
	tasks, err := e.ops.ListTasks()
	if err != nil {
		return nil, err
	}

	reserved, err := e.reservedGapNumber()
	if err != nil {
		return nil, err
	}
	next := reserved + 1

	c := buildCorpus(decisions, tasks)
	layer1, next := runImplications(c, next)
	layer2, next := runContracts(tasks, next)

	gaps := make([]*model.AuditGap, 0, len(layer1)+len(layer2))
	gaps = append(gaps, layer1...)
	gaps = append(gaps, layer2...)

	if err := e.ops.ReplaceOpenGaps(gaps); err != nil {
		return nil, err
	}
	e.metrics.IncAuditRuns()
	e.logger.Info("audit found %d gaps (%d implication, %d contract) over %d tasks",
		len(gaps), len(layer1), len(layer2), len(tasks))

	return &RunResult{
		Gaps:      gaps,
		NextGapID: next,
		TaskCount: len(tasks),
	}, nil
}

// reservedGapNumber returns the highest gap number held by a non-open gap.
// Open gaps are about to be cleared, so only accepted, dismissed, and
// deferred gaps pin their numbers.
func (e *Engine) reservedGapNumber() (int, error) {
	max := 0
	for _, status := range []string{model.GapStatusAccepted, model.GapStatusDismissed, model.GapStatusDeferred} {
		gaps, err := e.ops.ListGapsByStatus(status)
		if err != nil {
			return 0, err
		}
		for _, g := range gaps {
			if n := model.GapNumber(g.ID); n > max {
				max = n
			}
		}
	}
	return max, nil
}

// MergeJourneys parses an externally produced journey-tracing response and
// appends its gaps to the persisted run, numbering them after every gap
// already stored. Per-record enum failures are returned without blocking
// valid records.
func (e *Engine) MergeJourneys(response string) (*JourneyPayload, []string, error) {
	max, err := e.ops.MaxGapNumber()
	if err != nil {
		return nil, nil, err
	}

	payload, recordErrs, err := ParseJourneys(response, max+1)
	if err != nil {
		return nil, nil, err
	}

	if len(payload.Gaps) > 0 {
		if err := e.ops.AppendGaps(payload.Gaps); err != nil {
			return nil, nil, err
		}
	}
	e.logger.Info("merged %d journey gaps from %d journeys", len(payload.Gaps), len(payload.Journeys))
	return payload, recordErrs, nil
}

// JourneyContext is the deterministic input for the external journey trace.
type JourneyContext struct {
	Summary           string                   `json:"summary"`
	DeterministicGaps []*model.AuditGap        `json:"deterministic_gaps"`
	TasksByMilestone  map[string][]*model.Task `json:"tasks_by_milestone"`
	DecisionIndex     []string                 `json:"decision_index"`
}

// ComposeJourneyContext gathers what the journey prompt embeds: the gaps
// already found, the project summary, the task queue grouped by milestone,
// and a compact one-line-per-decision index.
func (e *Engine) ComposeJourneyContext() (*JourneyContext, error) {
	pipeline, err := e.ops.GetPipeline()
	if err != nil {
		return nil, err
	}
	gaps, err := e.ops.ListGapsByStatus(model.GapStatusOpen)
	if err != nil {
		return nil, err
	}
	tasks, err := e.ops.ListTasks()
	if err != nil {
		return nil, err
	}
	decisions, err := e.ops.ListDecisions()
	if err != nil {
		return nil, err
	}

	byMilestone := make(map[string][]*model.Task)
	for _, t := range tasks {
		byMilestone[t.Milestone] = append(byMilestone[t.Milestone], t)
	}

	index := make([]string, 0, len(decisions))
	for _, d := range decisions {
		index = append(index, fmt.Sprintf("%s: %s", d.ID, d.Title))
	}
	sort.Strings(index)

	return &JourneyContext{
		Summary:           pipeline.Summary,
		DeterministicGaps: gaps,
		TasksByMilestone:  byMilestone,
		DecisionIndex:     index,
	}, nil
}

// Advisory is one ephemeral early-detection warning. Advisories are never
// persisted.
type Advisory struct {
	Rule     string
	Severity string
	Message  string
}

// EarlyDetect runs the layer-1 rules against decisions alone plus the
// cross-domain contract table for the category that just finished producing
// decisions. It returns advisory warnings meant to be surfaced immediately.
func (e *Engine) EarlyDetect(finishedCategory string) ([]Advisory, error) {
	decisions, err := e.ops.ListDecisions()
	if err != nil {
		return nil, err
	}

	c := buildCorpus(decisions, nil)
	var advisories []Advisory

	implicationGaps, _ := runImplications(c, 1)
	for _, g := range implicationGaps {
		advisories = append(advisories, Advisory{
			Rule:     strings.TrimPrefix(g.Trigger, "rule:"),
			Severity: g.Severity,
			Message:  g.Description,
		})
	}

	rs, err := loadRules()
	if err != nil {
		return nil, err
	}
	targets := make(map[string]bool)
	for _, d := range decisions {
		targets[d.Prefix] = true
	}
	for _, contract := range rs.CrossDomain {
		if contract.Source != finishedCategory {
			continue
		}
		term, fired := c.containsAny(contract.Triggers)
		if !fired {
			continue
		}
		if targets[contract.Target] {
			continue
		}
		advisories = append(advisories, Advisory{
			Rule:     "cross-domain",
			Severity: model.SeverityMedium,
			Message: fmt.Sprintf("%s decisions mention %q but no %s decision exists yet",
				contract.Source, term, contract.Target),
		})
	}

	return advisories, nil
}
