package synth

import (
	"fmt"

	"conductor/pkg/model"
	"conductor/pkg/store"
)

// Context is the filtered input handed to a generator. Composition is
// deterministic: the same store state always yields the same context.
type Context struct {
	ProjectName string              `json:"project_name"`
	Summary     string              `json:"summary,omitempty"`
	Decisions   []*model.Decision   `json:"decisions,omitempty"`
	Constraints []*model.Constraint `json:"constraints,omitempty"`
	Milestones  []*model.Milestone  `json:"milestones,omitempty"`
	ParentTask  *model.Task         `json:"parent_task,omitempty"`
	TaskIDs     []string            `json:"task_ids,omitempty"`
	Schema      string              `json:"schema"`
}

// synthesisSchema describes the expected synthesis output shape, embedded in
// the context so the generator needs no out-of-band contract.
const synthesisSchema = `Respond with a JSON object:
{
  "milestones": [{"id": "M1", "name": "...", "goal": "...", "order": 1}],
  "tasks": [{
    "id": "T01", "title": "...", "milestone": "M1", "goal": "...",
    "depends_on": ["T.."], "decision_refs": ["ARCH-01"],
    "files_to_create": ["..."], "files_to_modify": ["..."],
    "acceptance_criteria": ["..."], "verify_command": "..."
  }]
}
Task ids are T01..Tnn, contiguous from 1. Every depends_on entry must name
a task in this response. Reference decisions by their ids.`

// decompositionSchema describes the expected decomposition output shape.
const decompositionSchema = `Respond with a JSON object:
{
  "subtasks": [{
    "id": "<parent>.1", "title": "...", "milestone": "...", "goal": "...",
    "depends_on": [], "decision_refs": [], "files_to_create": [],
    "files_to_modify": [], "acceptance_criteria": [], "verify_command": "..."
  }],
  "missing_decisions": ["free-text note per decision the parent needs but lacks"]
}
Subtask ids are <parent>.1, <parent>.2, ... contiguous from 1. The union of
subtask decision_refs and file lists must cover the parent's. No subtask may
depend on itself.`

// ComposeSynthesisContext gathers everything whole-queue synthesis may draw
// on: all decisions, constraints, and milestones, plus the pipeline summary.
func ComposeSynthesisContext(ops *store.Ops) (*Context, error) {
	pipeline, err := ops.GetPipeline()
	if err != nil {
		return nil, err
	}
	decisions, err := ops.ListDecisions()
	if err != nil {
		return nil, err
	}
	constraints, err := ops.ListConstraints()
	if err != nil {
		return nil, err
	}
	milestones, err := ops.ListMilestones()
	if err != nil {
		return nil, err
	}

	return &Context{
		ProjectName: pipeline.Name,
		Summary:     pipeline.Summary,
		Decisions:   decisions,
		Constraints: constraints,
		Milestones:  milestones,
		Schema:      synthesisSchema,
	}, nil
}

// ComposeDecompositionContext gathers the scope of one parent task: the
// parent itself, only the decisions it references, all constraints, and the
// ids of every other stored task (legal dependency targets).
func ComposeDecompositionContext(ops *store.Ops, taskID string) (*Context, error) {
	pipeline, err := ops.GetPipeline()
	if err != nil {
		return nil, err
	}
	parent, err := ops.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}

	var decisions []*model.Decision
	for _, ref := range parent.DecisionRefs {
		d, err := ops.GetDecision(ref)
		if err != nil {
			return nil, err
		}
		if d != nil {
			decisions = append(decisions, d)
		}
	}

	constraints, err := ops.ListConstraints()
	if err != nil {
		return nil, err
	}

	tasks, err := ops.ListTasks()
	if err != nil {
		return nil, err
	}
	taskIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != parent.ID {
			taskIDs = append(taskIDs, t.ID)
		}
	}

	return &Context{
		ProjectName: pipeline.Name,
		Summary:     pipeline.Summary,
		Decisions:   decisions,
		Constraints: constraints,
		ParentTask:  parent,
		TaskIDs:     taskIDs,
		Schema:      decompositionSchema,
	}, nil
}
