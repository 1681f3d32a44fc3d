package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"conductor/pkg/model"
)

// ExtractJSON strips a surrounding markdown code fence, if any, and returns
// the JSON text. Bare JSON passes through untouched.
func ExtractJSON(response string) (string, error) {
	trimmed := strings.TrimSpace(response)

	start := strings.Index(trimmed, "```json")
	fenceLen := 7
	if start == -1 {
		start = strings.Index(trimmed, "```")
		fenceLen = 3
	}
	if start == -1 {
		return trimmed, nil
	}

	start += fenceLen
	end := strings.Index(trimmed[start:], "```")
	if end == -1 {
		return "", fmt.Errorf("unclosed code fence in response")
	}
	return strings.TrimSpace(trimmed[start : start+end]), nil
}

// SynthesisPayload is the parsed whole-queue generator output.
type SynthesisPayload struct {
	Milestones []*model.Milestone `json:"milestones"`
	Tasks      []*model.Task      `json:"tasks"`
}

// DecompositionPayload is the parsed single-task generator output.
type DecompositionPayload struct {
	Subtasks         []*model.Task `json:"subtasks"`
	MissingDecisions []string      `json:"missing_decisions"`
}

// ParseSynthesis parses a synthesis response. Structural failures (bad JSON,
// wrong top-level shape) return err and abort the payload; per-record field
// failures are collected into recordErrs without discarding valid records.
func ParseSynthesis(response string) (payload *SynthesisPayload, recordErrs []string, err error) {
	text, err := ExtractJSON(response)
	if err != nil {
		return nil, nil, err
	}

	var raw struct {
		Milestones []json.RawMessage `json:"milestones"`
		Tasks      []json.RawMessage `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse synthesis JSON: %w", err)
	}
	if len(raw.Tasks) == 0 {
		return nil, nil, fmt.Errorf("synthesis response contains no tasks")
	}

	payload = &SynthesisPayload{}
	for i, rec := range raw.Milestones {
		m := &model.Milestone{}
		if err := json.Unmarshal(rec, m); err != nil {
			recordErrs = append(recordErrs, fmt.Sprintf("milestone %d: malformed record: %v", i+1, err))
			continue
		}
		if err := m.Validate(); err != nil {
			recordErrs = append(recordErrs, fmt.Sprintf("milestone %d: %v", i+1, err))
			continue
		}
		payload.Milestones = append(payload.Milestones, m)
	}
	payload.Tasks, recordErrs = parseTasks(raw.Tasks, recordErrs)

	return payload, recordErrs, nil
}

// ParseDecomposition parses a decomposition response with the same error
// taxonomy as ParseSynthesis.
func ParseDecomposition(response string) (payload *DecompositionPayload, recordErrs []string, err error) {
	text, err := ExtractJSON(response)
	if err != nil {
		return nil, nil, err
	}

	var raw struct {
		Subtasks         []json.RawMessage `json:"subtasks"`
		MissingDecisions []string          `json:"missing_decisions"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse decomposition JSON: %w", err)
	}
	if len(raw.Subtasks) == 0 {
		return nil, nil, fmt.Errorf("decomposition response contains no subtasks")
	}

	payload = &DecompositionPayload{MissingDecisions: raw.MissingDecisions}
	for i, rec := range raw.Subtasks {
		t := &model.Task{}
		if err := json.Unmarshal(rec, t); err != nil {
			recordErrs = append(recordErrs, fmt.Sprintf("subtask %d: malformed record: %v", i+1, err))
			continue
		}
		// The parent is implied by the id shape; generators need not echo it.
		if parent, _, ok := model.SplitSubtaskID(t.ID); ok && t.ParentTask == "" {
			t.ParentTask = parent
		}
		if err := t.Validate(); err != nil {
			recordErrs = append(recordErrs, fmt.Sprintf("subtask %s: %v", taskLabel(t, i), err))
			continue
		}
		payload.Subtasks = append(payload.Subtasks, t)
	}

	return payload, recordErrs, nil
}

func parseTasks(records []json.RawMessage, recordErrs []string) ([]*model.Task, []string) {
	var tasks []*model.Task
	for i, rec := range records {
		t := &model.Task{}
		if err := json.Unmarshal(rec, t); err != nil {
			recordErrs = append(recordErrs, fmt.Sprintf("task %d: malformed record: %v", i+1, err))
			continue
		}
		if err := t.Validate(); err != nil {
			recordErrs = append(recordErrs, fmt.Sprintf("task %s: %v", taskLabel(t, i), err))
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, recordErrs
}

func taskLabel(t *model.Task, index int) string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("#%d", index+1)
}
