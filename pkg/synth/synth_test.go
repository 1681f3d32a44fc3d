package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/config"
	"conductor/pkg/model"
	"conductor/pkg/phase"
	"conductor/pkg/store"
)

// scriptedGenerator replays canned responses, one per attempt.
type scriptedGenerator struct {
	responses []string
	requests  []*Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req *Request) (string, error) {
	snapshot := *req
	g.requests = append(g.requests, &snapshot)
	if len(g.requests) > len(g.responses) {
		return "", errors.New("no scripted response left")
	}
	return g.responses[len(g.requests)-1], nil
}

func newTestOps(t *testing.T) *store.Ops {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, phase.Init(s, "demo", phase.TemplateGreenfield))
	return s.Ops("tester")
}

func seedDecision(t *testing.T, ops *store.Ops, id, title string) {
	t.Helper()
	d, err := model.NewDecision(id, title, "because", "architecture")
	require.NoError(t, err)
	require.NoError(t, ops.StoreDecision(d))
}

func validSynthesisJSON() string {
	payload := map[string]any{
		"milestones": []map[string]any{
			{"id": "M1", "name": "Core", "goal": "ship it", "order": 1},
		},
		"tasks": []map[string]any{
			{
				"id": "T01", "title": "Set up service", "milestone": "M1",
				"goal": "scaffold", "decision_refs": []string{"ARCH-01"},
				"files_to_create":     []string{"main.go"},
				"acceptance_criteria": []string{"builds"},
			},
			{
				"id": "T02", "title": "Add endpoint", "milestone": "M1",
				"goal": "wire route", "depends_on": []string{"T01"},
				"decision_refs":       []string{"ARCH-01"},
				"files_to_create":     []string{"handler.go"},
				"acceptance_criteria": []string{"responds"},
			},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestExtractJSON(t *testing.T) {
	assert := assert.New(t)

	out, err := ExtractJSON("```json\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(`{"a": 1}`, out)

	out, err = ExtractJSON("```\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(`{"a": 1}`, out)

	out, err = ExtractJSON(`  {"a": 1}  `)
	require.NoError(t, err)
	assert.Equal(`{"a": 1}`, out)

	_, err = ExtractJSON("```json\n{\"a\": 1}")
	assert.Error(err)
}

func TestParseSynthesisCollectsRecordErrors(t *testing.T) {
	raw := `{"milestones": [{"id": "M1", "name": "Core", "order": 1}],
		"tasks": [
			{"id": "T01", "title": "Good", "milestone": "M1"},
			{"id": "bogus", "title": "Bad id", "milestone": "M1"}
		]}`

	payload, recordErrs, err := ParseSynthesis(raw)
	require.NoError(t, err)
	require.Len(t, payload.Tasks, 1)
	assert.Equal(t, "T01", payload.Tasks[0].ID)
	require.Len(t, recordErrs, 1)
	assert.Contains(t, recordErrs[0], "bogus")
}

func TestParseSynthesisStructuralError(t *testing.T) {
	_, _, err := ParseSynthesis("not json at all")
	assert.Error(t, err)

	_, _, err = ParseSynthesis(`{"milestones": [], "tasks": []}`)
	assert.Error(t, err)
}

func TestSynthesizeQueueFirstAttempt(t *testing.T) {
	ops := newTestOps(t)
	seedDecision(t, ops, "ARCH-01", "Single binary")

	gen := &scriptedGenerator{responses: []string{validSynthesisJSON()}}
	p := NewPipeline(ops, gen)

	result, err := p.SynthesizeQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)

	tasks, err := ops.ListTasks()
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	req := gen.requests[0]
	assert.Equal(t, KindSynthesis, req.Kind)
	assert.Empty(t, req.RetryMessage)
	require.Len(t, req.Context.Decisions, 1)
	assert.Equal(t, "ARCH-01", req.Context.Decisions[0].ID)
}

func TestSynthesizeQueueRetriesThenSucceeds(t *testing.T) {
	ops := newTestOps(t)
	seedDecision(t, ops, "ARCH-01", "Single binary")

	// First response has a dangling dependency, second is clean.
	bad := `{"milestones": [{"id": "M1", "name": "Core", "order": 1}],
		"tasks": [{"id": "T01", "title": "A", "milestone": "M1", "depends_on": ["T09"]}]}`
	gen := &scriptedGenerator{responses: []string{bad, validSynthesisJSON()}}
	p := NewPipeline(ops, gen)

	result, err := p.SynthesizeQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)

	retry := gen.requests[1]
	assert.Contains(t, retry.RetryMessage, bad)
	assert.Contains(t, retry.RetryMessage, "unknown task T09")
	assert.Contains(t, retry.RetryMessage, "Rules:")
}

func TestSynthesizeQueueExhaustsBudget(t *testing.T) {
	ops := newTestOps(t)

	bad := `{"tasks": [{"id": "T01", "title": "A", "milestone": "M9"}]}`
	gen := &scriptedGenerator{responses: []string{bad, bad, bad, bad}}
	p := NewPipeline(ops, gen)

	_, err := p.SynthesizeQueue(context.Background())
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, bad, exhausted.LastOutput)
	assert.NotEmpty(t, exhausted.Errors)

	// Nothing stored on failure.
	tasks, err := ops.ListTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestConfigureSetsRetryBudget(t *testing.T) {
	ops := newTestOps(t)

	bad := `{"tasks": [{"id": "T01", "title": "A", "milestone": "M9"}]}`
	gen := &scriptedGenerator{responses: []string{bad, bad}}
	p := NewPipeline(ops, gen)

	cfg := config.DefaultConfig()
	cfg.MaxGenerationRetries = 1
	p.Configure(cfg)

	_, err := p.SynthesizeQueue(context.Background())
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
}

func TestValidateDecompositionCoverage(t *testing.T) {
	parent := &model.Task{
		ID: "T03", Title: "Parent", Milestone: "M1",
		DecisionRefs:  []string{"BACK-01", "BACK-02"},
		FilesToCreate: []string{"a.go", "b.go"},
	}
	subtasks := []*model.Task{
		{ID: "T03.1", ParentTask: "T03", Title: "First", Milestone: "M1",
			DecisionRefs: []string{"BACK-01"}, FilesToCreate: []string{"a.go"}},
	}

	errs, _ := validateDecomposition(parent, subtasks)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "BACK-02")
	assert.Contains(t, errs[1], "b.go")
}

func TestValidateDecompositionContiguity(t *testing.T) {
	parent := &model.Task{ID: "T03", Title: "Parent", Milestone: "M1"}
	subtasks := []*model.Task{
		{ID: "T03.1", ParentTask: "T03", Title: "First", Milestone: "M1"},
		{ID: "T03.3", ParentTask: "T03", Title: "Third", Milestone: "M1"},
	}

	errs, _ := validateDecomposition(parent, subtasks)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "not contiguous")
}

func TestDecomposeTaskRejectsDependencyOnParent(t *testing.T) {
	ops := newTestOps(t)
	seedDecision(t, ops, "BACK-01", "REST API")

	milestone := &model.Milestone{ID: "M1", Name: "Core", Order: 1}
	parent := &model.Task{
		ID: "T01", Title: "Build API", Milestone: "M1", Goal: "endpoints",
		DecisionRefs: []string{"BACK-01"}, FilesToCreate: []string{"api.go"},
	}
	require.NoError(t, ops.StoreTaskBatch([]*model.Milestone{milestone}, []*model.Task{parent}))

	sub := func(n int, deps ...string) map[string]any {
		return map[string]any{
			"id": fmt.Sprintf("T01.%d", n), "title": "Part", "milestone": "M1",
			"goal": "partial", "depends_on": deps,
			"decision_refs":   []string{"BACK-01"},
			"files_to_create": []string{"api.go"},
		}
	}
	marshal := func(subtasks ...map[string]any) string {
		b, _ := json.Marshal(map[string]any{"subtasks": subtasks})
		return string(b)
	}
	// The first response has a subtask depending on the parent itself;
	// storing it would leave a dangling edge once the parent is deleted.
	bad := marshal(sub(1), sub(2, "T01"))
	good := marshal(sub(1), sub(2, "T01.1"))

	gen := &scriptedGenerator{responses: []string{bad, good}}
	p := NewPipeline(ops, gen)

	result, err := p.DecomposeTask(context.Background(), "T01")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)

	retry := gen.requests[1]
	assert.Contains(t, retry.RetryMessage, "depends on parent T01")

	// The stored graph resolves: no subtask kept the parent edge.
	tasks, err := ops.ListTasks()
	require.NoError(t, err)
	for _, task := range tasks {
		assert.NotContains(t, task.DependsOn, "T01")
	}
}

func TestDecomposeTaskRewiresDependencies(t *testing.T) {
	ops := newTestOps(t)
	seedDecision(t, ops, "BACK-01", "REST API")

	milestone := &model.Milestone{ID: "M1", Name: "Core", Order: 1}
	parent := &model.Task{
		ID: "T01", Title: "Build API", Milestone: "M1", Goal: "endpoints",
		DecisionRefs: []string{"BACK-01"}, FilesToCreate: []string{"api.go"},
	}
	dependent := &model.Task{
		ID: "T02", Title: "Use API", Milestone: "M1", Goal: "consume",
		DependsOn: []string{"T01"},
	}
	require.NoError(t, ops.StoreTaskBatch([]*model.Milestone{milestone}, []*model.Task{parent, dependent}))

	sub := func(n int, deps ...string) map[string]any {
		return map[string]any{
			"id": fmt.Sprintf("T01.%d", n), "title": "Part", "milestone": "M1",
			"goal": "partial", "depends_on": deps,
			"decision_refs":   []string{"BACK-01"},
			"files_to_create": []string{"api.go"},
		}
	}
	payload := map[string]any{
		"subtasks":          []map[string]any{sub(1), sub(2, "T01.1")},
		"missing_decisions": []string{"no pagination decision"},
	}
	b, _ := json.Marshal(payload)

	gen := &scriptedGenerator{responses: []string{string(b)}}
	p := NewPipeline(ops, gen)

	result, err := p.DecomposeTask(context.Background(), "T01")
	require.NoError(t, err)
	assert.Equal(t, "T01.2", result.FinalSubtaskID)
	assert.Equal(t, []string{"no pagination decision"}, result.Payload.MissingDecisions)

	gone, err := ops.GetTask("T01")
	require.NoError(t, err)
	assert.Nil(t, gone)

	rewired, err := ops.GetTask("T02")
	require.NoError(t, err)
	require.NotNil(t, rewired)
	assert.Equal(t, []string{"T01.2"}, rewired.DependsOn)
}
