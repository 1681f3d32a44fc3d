package review

import (
	"fmt"
	"sort"

	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/model"
)

// ConfirmedFinding is a primary finding plus the reviewers that confirmed it.
type ConfirmedFinding struct {
	Finding     model.Finding
	ConfirmedBy []string
}

// UnconfirmedFinding is a non-primary finding with no primary counterpart,
// kept for manual checking rather than dropped.
type UnconfirmedFinding struct {
	Finding  model.Finding
	Reviewer string
}

// Adjudication is the unified outcome for one task and cycle.
type Adjudication struct {
	TaskID      string
	Cycle       int
	Verdict     string
	Confirmed   []ConfirmedFinding
	Unconfirmed []UnconfirmedFinding
	Reviewers   []string
}

// Adjudicator merges multi-reviewer results.
type Adjudicator struct {
	logger  *logx.Logger
	metrics *metrics.Metrics
}

// NewAdjudicator wires an adjudicator.
func NewAdjudicator() *Adjudicator {
	return &Adjudicator{logger: logx.NewLogger("review")}
}

// SetMetrics attaches instrumentation. Nil metrics are safe.
func (a *Adjudicator) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

type findingKey struct {
	file     string
	category string
}

// Adjudicate merges all results for one task/cycle. The primary reviewer's
// findings are authoritative; every other reviewer's findings are matched
// against them by exact (file, category). A finding confirmed by two or more
// reviewers, the primary included, joins the confirmed list. The unified
// verdict is the most severe among the primary and any reviewer contributing
// a confirmed finding, ordered block > concern > pass.
func (a *Adjudicator) Adjudicate(results []*model.ReviewResult) (*Adjudication, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no review results to adjudicate")
	}

	var primary *model.ReviewResult
	for _, r := range results {
		if r.Reviewer == ReviewerPrimary {
			primary = r
			break
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("no primary review among %d results", len(results))
	}
	for _, r := range results {
		if r.TaskID != primary.TaskID || r.Cycle != primary.Cycle {
			return nil, fmt.Errorf("mixed task/cycle in adjudication input: %s/%d vs %s/%d",
				r.TaskID, r.Cycle, primary.TaskID, primary.Cycle)
		}
	}

	confirmedBy := make(map[findingKey]map[string]bool)
	for _, f := range primary.Findings {
		key := findingKey{file: f.File, category: f.Category}
		if confirmedBy[key] == nil {
			confirmedBy[key] = map[string]bool{ReviewerPrimary: true}
		}
	}

	adj := &Adjudication{TaskID: primary.TaskID, Cycle: primary.Cycle}
	for _, r := range results {
		adj.Reviewers = append(adj.Reviewers, r.Reviewer)
		if r.Reviewer == ReviewerPrimary {
			continue
		}
		for _, f := range r.Findings {
			key := findingKey{file: f.File, category: f.Category}
			if set, ok := confirmedBy[key]; ok {
				set[r.Reviewer] = true
				continue
			}
			adj.Unconfirmed = append(adj.Unconfirmed, UnconfirmedFinding{Finding: f, Reviewer: r.Reviewer})
		}
	}
	sort.Strings(adj.Reviewers)

	contributing := map[string]bool{ReviewerPrimary: true}
	for _, f := range primary.Findings {
		key := findingKey{file: f.File, category: f.Category}
		set := confirmedBy[key]
		if len(set) < 2 {
			continue
		}
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
			contributing[name] = true
		}
		sort.Strings(names)
		adj.Confirmed = append(adj.Confirmed, ConfirmedFinding{Finding: f, ConfirmedBy: names})
	}

	verdict := model.VerdictPass
	for _, r := range results {
		if contributing[r.Reviewer] {
			verdict = model.MoreSevereVerdict(verdict, r.Verdict)
		}
	}
	adj.Verdict = verdict

	a.metrics.ObserveVerdict(verdict)
	a.logger.Debug("adjudicated %s cycle %d: %s, %d confirmed, %d unconfirmed",
		adj.TaskID, adj.Cycle, verdict, len(adj.Confirmed), len(adj.Unconfirmed))
	return adj, nil
}
