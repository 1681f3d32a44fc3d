package taskgraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/model"
)

func task(id string, deps ...string) *model.Task {
	return &model.Task{
		ID:                 id,
		Title:              "Task " + id,
		Milestone:          "M1",
		Goal:               "do the thing",
		DependsOn:          deps,
		FilesToCreate:      []string{"pkg/" + strings.ToLower(id) + ".go"},
		AcceptanceCriteria: []string{"it works"},
	}
}

func milestones() []*model.Milestone {
	return []*model.Milestone{{ID: "M1", Name: "Core", Order: 1}}
}

func TestValidateCleanBatch(t *testing.T) {
	tasks := []*model.Task{
		task("T01"),
		task("T02", "T01"),
		task("T03", "T01", "T02"),
	}
	result := Validate(tasks, milestones(), nil)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Errors)
}

func TestValidateDuplicateID(t *testing.T) {
	tasks := []*model.Task{task("T01"), task("T01")}
	result := Validate(tasks, milestones(), nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], "duplicate task id T01")
}

func TestValidateTopLevelContiguity(t *testing.T) {
	tasks := []*model.Task{task("T01"), task("T03")}
	result := Validate(tasks, milestones(), nil)
	require.False(t, result.Valid())
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "not contiguous from 1") {
			found = true
		}
	}
	assert.True(t, found, "expected contiguity error, got %v", result.Errors)
}

func TestValidateSubtaskContiguity(t *testing.T) {
	sub1 := task("T01.1")
	sub1.ParentTask = "T01"
	sub3 := task("T01.3")
	sub3.ParentTask = "T01"
	tasks := []*model.Task{task("T02"), sub1, sub3}

	result := Validate(tasks, milestones(), nil)
	require.False(t, result.Valid())
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "subtasks of T01") {
			found = true
		}
	}
	assert.True(t, found, "expected subtask contiguity error, got %v", result.Errors)
}

// A mixed batch exempts top-level ids from batch-wide contiguity: subtask
// decomposition replaces a parent, so top-level numbering legitimately has
// holes.
func TestValidateMixedBatchSkipsTopLevelContiguity(t *testing.T) {
	sub1 := task("T02.1")
	sub1.ParentTask = "T02"
	sub2 := task("T02.2")
	sub2.ParentTask = "T02"
	tasks := []*model.Task{task("T01"), task("T03"), sub1, sub2}

	result := Validate(tasks, milestones(), nil)
	assert.True(t, result.Valid(), "errors: %v", result.Errors)
}

func TestValidateUnknownMilestone(t *testing.T) {
	tasks := []*model.Task{task("T01")}
	tasks[0].Milestone = "M9"
	result := Validate(tasks, milestones(), nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], "unknown milestone M9")
}

func TestValidateUnusedMilestoneWarns(t *testing.T) {
	ms := append(milestones(), &model.Milestone{ID: "M2", Name: "Later", Order: 2})
	result := Validate([]*model.Task{task("T01")}, ms, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "milestone M2 has no tasks")
}

func TestValidateUnknownDependency(t *testing.T) {
	tasks := []*model.Task{task("T01", "T99")}
	result := Validate(tasks, milestones(), nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], "unknown task T99")
}

func TestValidateSelfDependency(t *testing.T) {
	tasks := []*model.Task{task("T01", "T01")}
	result := Validate(tasks, milestones(), nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], "depends on itself")
}

func TestDecisionCoverage(t *testing.T) {
	decisions := []*model.Decision{
		{ID: "BACK-01", Prefix: model.CategoryBack, Number: 1, Title: "Use JWT"},
		{ID: "PLAN-01", Prefix: model.CategoryPlan, Number: 1, Title: "Two milestones"},
	}
	tasks := []*model.Task{task("T01")}

	result := Validate(tasks, milestones(), decisions)
	assert.True(t, result.Valid())

	covered := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "BACK-01") {
			covered = true
		}
		// Planning decisions are exempt from coverage.
		assert.NotContains(t, w, "PLAN-01")
	}
	assert.True(t, covered, "expected coverage warning for BACK-01, got %v", result.Warnings)
}

func TestUnknownDecisionRefWarns(t *testing.T) {
	tasks := []*model.Task{task("T01")}
	tasks[0].DecisionRefs = []string{"ARCH-07"}
	result := Validate(tasks, milestones(), nil)
	assert.True(t, result.Valid())
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "unknown decision ARCH-07")
}

func TestCompletenessWarnings(t *testing.T) {
	bare := &model.Task{ID: "T01", Title: "Bare", Milestone: "M1"}
	result := Validate([]*model.Task{bare}, milestones(), nil)
	assert.True(t, result.Valid())
	assert.Len(t, result.Warnings, 3) // goal, criteria, files
}
