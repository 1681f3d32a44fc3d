// Package taskgraph provides pure, stateless validation of a candidate task
// set: id integrity, reference checks, cycle detection, and coverage
// heuristics. Errors make the batch invalid; warnings are informational and
// never block storage.
package taskgraph

import (
	"fmt"
	"sort"

	"conductor/pkg/model"
)

// Result collects validation output for one task batch.
type Result struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid reports whether the batch may be stored.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge appends another result's output.
func (r *Result) Merge(other *Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Validate runs every check over a candidate task set. Milestones and
// decisions give the reference universe; pass the full stored sets when
// auditing the whole store, or the batch's own when validating fresh
// generation output.
func Validate(tasks []*model.Task, milestones []*model.Milestone, decisions []*model.Decision) *Result {
	result := &Result{}

	checkIDIntegrity(tasks, result)
	checkMilestoneRefs(tasks, milestones, result)
	checkDependencyRefs(tasks, result)
	result.Errors = append(result.Errors, CheckCircularDeps(tasks)...)
	checkDecisionCoverage(tasks, decisions, result)
	checkDecisionRefs(tasks, decisions, result)
	checkCompleteness(tasks, result)

	return result
}

// checkIDIntegrity rejects duplicate ids and enforces contiguous numbering:
// a pure top-level batch must run T01..T0n from 1; in a batch that mixes
// top-level and subtask ids, each subtask group sharing a parent prefix must
// itself be contiguous from 1.
func checkIDIntegrity(tasks []*model.Task, result *Result) {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] {
			result.errorf("duplicate task id %s", t.ID)
		}
		seen[t.ID] = true
	}

	var topNumbers []int
	subGroups := make(map[string][]int)
	hasSubtasks := false

	for _, t := range tasks {
		if n := model.TopTaskNumber(t.ID); n >= 0 {
			topNumbers = append(topNumbers, n)
			continue
		}
		if parent, n, ok := model.SplitSubtaskID(t.ID); ok {
			hasSubtasks = true
			subGroups[parent] = append(subGroups[parent], n)
		}
		// Auxiliary series ids (TD/TQ) are exempt from contiguity.
	}

	if !hasSubtasks && len(topNumbers) > 0 {
		if gap := firstContiguityGap(topNumbers); gap != "" {
			result.errorf("top-level task numbering not contiguous from 1: %s", gap)
		}
	}
	for parent, numbers := range subGroups {
		if gap := firstContiguityGap(numbers); gap != "" {
			result.errorf("subtasks of %s not contiguous from 1: %s", parent, gap)
		}
	}
}

// firstContiguityGap returns a description of the first break in the
// expected 1..n sequence, or empty when the numbers are contiguous.
func firstContiguityGap(numbers []int) string {
	sorted := make([]int, len(numbers))
	copy(sorted, numbers)
	sort.Ints(sorted)
	for i, n := range sorted {
		if n != i+1 {
			return fmt.Sprintf("expected %d, found %d", i+1, n)
		}
	}
	return ""
}

// checkMilestoneRefs requires every referenced milestone to exist, and warns
// about milestones with no tasks.
func checkMilestoneRefs(tasks []*model.Task, milestones []*model.Milestone, result *Result) {
	known := make(map[string]bool, len(milestones))
	used := make(map[string]bool)
	for _, m := range milestones {
		known[m.ID] = true
	}

	for _, t := range tasks {
		if t.Milestone == "" {
			continue
		}
		used[t.Milestone] = true
		if !known[t.Milestone] {
			result.errorf("task %s references unknown milestone %s", t.ID, t.Milestone)
		}
	}

	for _, m := range milestones {
		if !used[m.ID] {
			result.warnf("milestone %s has no tasks", m.ID)
		}
	}
}

// checkDependencyRefs requires every depends_on entry to name a task in the
// batch and to differ from the task's own id.
func checkDependencyRefs(tasks []*model.Task, result *Result) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				result.errorf("task %s depends on itself", t.ID)
				continue
			}
			if !known[dep] {
				result.errorf("task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}
}

// checkDecisionCoverage warns when a decision outside the planning-only
// category is referenced by no task.
func checkDecisionCoverage(tasks []*model.Task, decisions []*model.Decision, result *Result) {
	referenced := make(map[string]bool)
	for _, t := range tasks {
		for _, ref := range t.DecisionRefs {
			referenced[ref] = true
		}
	}

	for _, d := range decisions {
		if d.Prefix == model.CategoryPlan {
			continue
		}
		if !referenced[d.ID] {
			result.warnf("decision %s (%s) is referenced by no task", d.ID, d.Title)
		}
	}
}

// checkDecisionRefs warns about decision_refs naming decisions that do not
// exist. A warning, not an error: generation may lag slightly behind.
func checkDecisionRefs(tasks []*model.Task, decisions []*model.Decision, result *Result) {
	known := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		known[d.ID] = true
	}

	for _, t := range tasks {
		for _, ref := range t.DecisionRefs {
			if !known[ref] {
				result.warnf("task %s references unknown decision %s", t.ID, ref)
			}
		}
	}
}

// checkCompleteness warns about tasks missing a goal, acceptance criteria,
// or any file-list entry.
func checkCompleteness(tasks []*model.Task, result *Result) {
	for _, t := range tasks {
		if t.Goal == "" {
			result.warnf("task %s has no goal", t.ID)
		}
		if len(t.AcceptanceCriteria) == 0 {
			result.warnf("task %s has no acceptance criteria", t.ID)
		}
		if len(t.Files()) == 0 {
			result.warnf("task %s lists no files", t.ID)
		}
	}
}
