package synth

import (
	"context"
	"fmt"
	"sort"

	"conductor/pkg/model"
	"conductor/pkg/taskgraph"
)

// DecompositionResult is the outcome of a successful decomposition.
type DecompositionResult struct {
	Payload        *DecompositionPayload
	FinalSubtaskID string
	Warnings       []string
	Attempts       int
}

// DecomposeTask replaces one parent task with generated subtasks. The loop
// mirrors SynthesizeQueue; on success the store deletes the parent, rewires
// every dependency that named it to the final subtask, and inserts the
// subtasks, all in one transaction.
func (p *Pipeline) DecomposeTask(ctx context.Context, taskID string) (*DecompositionResult, error) {
	composed, err := ComposeDecompositionContext(p.ops, taskID)
	if err != nil {
		return nil, err
	}
	parent := composed.ParentTask

	req := &Request{Kind: KindDecomposition, Context: composed}
	var lastOutput string
	var lastErrs []string

	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		req.Attempt = attempt

		raw, err := p.gen.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		lastOutput = raw

		payload, recordErrs, err := ParseDecomposition(raw)
		if err != nil {
			lastErrs = []string{err.Error()}
			p.prepareRetry(req, raw, lastErrs, nil)
			continue
		}

		errs, warnings := validateDecomposition(parent, payload.Subtasks)
		errs = append(recordErrs, errs...)

		if len(errs) > 0 {
			lastErrs = errs
			p.logger.Debug("decomposition attempt %d for %s failed with %d errors", attempt, taskID, len(errs))
			p.prepareRetry(req, raw, errs, warnings)
			continue
		}

		finalID := finalSubtaskID(payload.Subtasks)
		if err := p.ops.ReplaceTaskWithSubtasks(parent.ID, payload.Subtasks, finalID); err != nil {
			return nil, err
		}
		p.logger.Info("decomposed %s into %d subtasks in %d attempt(s)", parent.ID, len(payload.Subtasks), attempt)
		return &DecompositionResult{
			Payload:        payload,
			FinalSubtaskID: finalID,
			Warnings:       warnings,
			Attempts:       attempt,
		}, nil
	}

	return nil, &RetryExhaustedError{
		Attempts:   p.maxRetries + 1,
		Errors:     lastErrs,
		LastOutput: lastOutput,
	}
}

// validateDecomposition applies the decomposition-specific rules: ids match
// <parent>.<n> contiguously from 1, no self-dependencies, internal
// dependencies resolve, and the union of subtask decision_refs and file
// lists covers the parent's.
func validateDecomposition(parent *model.Task, subtasks []*model.Task) (errs, warnings []string) {
	if len(subtasks) == 0 {
		return []string{"no subtasks produced"}, nil
	}

	ids := make(map[string]bool, len(subtasks))
	var numbers []int
	coveredRefs := make(map[string]bool)
	coveredFiles := make(map[string]bool)

	for _, st := range subtasks {
		if ids[st.ID] {
			errs = append(errs, fmt.Sprintf("duplicate subtask id %s", st.ID))
		}
		ids[st.ID] = true

		prefix, n, ok := model.SplitSubtaskID(st.ID)
		if !ok || prefix != parent.ID {
			errs = append(errs, fmt.Sprintf("subtask id %s does not match %s.<n>", st.ID, parent.ID))
		} else {
			numbers = append(numbers, n)
		}

		for _, dep := range st.DependsOn {
			if dep == st.ID {
				errs = append(errs, fmt.Sprintf("subtask %s depends on itself", st.ID))
			}
			// The parent is deleted by the replace; a dependency on it
			// would dangle the moment the subtasks are stored.
			if dep == parent.ID {
				errs = append(errs, fmt.Sprintf("subtask %s depends on parent %s, which decomposition removes", st.ID, parent.ID))
			}
		}

		for _, ref := range st.DecisionRefs {
			coveredRefs[ref] = true
		}
		for _, f := range st.Files() {
			coveredFiles[f] = true
		}
	}

	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			errs = append(errs, fmt.Sprintf("subtask numbering not contiguous from 1: expected %s.%d, found %s.%d",
				parent.ID, i+1, parent.ID, n))
			break
		}
	}

	// Internal dependency edges must resolve to a sibling or an existing
	// task; the coarse existence check happens again at store time.
	for _, st := range subtasks {
		for _, dep := range st.DependsOn {
			if dep == st.ID {
				continue
			}
			if _, _, ok := model.SplitSubtaskID(dep); ok && !ids[dep] {
				errs = append(errs, fmt.Sprintf("subtask %s depends on unknown subtask %s", st.ID, dep))
			}
		}
	}

	for _, ref := range parent.DecisionRefs {
		if !coveredRefs[ref] {
			errs = append(errs, fmt.Sprintf("parent decision ref %s is covered by no subtask", ref))
		}
	}
	for _, f := range parent.Files() {
		if !coveredFiles[f] {
			errs = append(errs, fmt.Sprintf("parent file %s is covered by no subtask", f))
		}
	}

	errs = append(errs, taskgraph.CheckCircularDeps(subtasks)...)

	for _, st := range subtasks {
		if st.Goal == "" {
			warnings = append(warnings, fmt.Sprintf("subtask %s has no goal", st.ID))
		}
		if len(st.AcceptanceCriteria) == 0 {
			warnings = append(warnings, fmt.Sprintf("subtask %s has no acceptance criteria", st.ID))
		}
	}

	return errs, warnings
}

// finalSubtaskID picks the highest-numbered subtask, the one outside
// dependencies are rewired to.
func finalSubtaskID(subtasks []*model.Task) string {
	final := ""
	best := -1
	for _, st := range subtasks {
		if _, n, ok := model.SplitSubtaskID(st.ID); ok && n > best {
			best = n
			final = st.ID
		}
	}
	return final
}
