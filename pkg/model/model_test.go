package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDecision(t *testing.T) {
	d, err := NewDecision("BACK-01", "JWT authentication", "stateless auth", "architecture")
	require.NoError(t, err)
	assert.Equal(t, "BACK", d.Prefix)
	assert.Equal(t, 1, d.Number)
}

func TestDecisionValidate(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		wantErrs int
	}{
		{
			name:     "valid",
			decision: Decision{ID: "ARCH-03", Prefix: "ARCH", Number: 3, Title: "Use sqlite"},
			wantErrs: 0,
		},
		{
			name:     "prefix disagrees with id",
			decision: Decision{ID: "ARCH-03", Prefix: "BACK", Number: 3, Title: "Use sqlite"},
			wantErrs: 1,
		},
		{
			name:     "number disagrees with id",
			decision: Decision{ID: "ARCH-03", Prefix: "ARCH", Number: 4, Title: "Use sqlite"},
			wantErrs: 1,
		},
		{
			name:     "both disagree and title empty",
			decision: Decision{ID: "ARCH-03", Prefix: "BACK", Number: 4},
			wantErrs: 3,
		},
		{
			name:     "unknown category prefix",
			decision: Decision{ID: "ZZZZ-01", Prefix: "ZZZZ", Number: 1, Title: "x"},
			wantErrs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate()
			if tt.wantErrs == 0 {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Len(t, verrs, tt.wantErrs)
		})
	}
}

func TestDecisionValidateMalformedID(t *testing.T) {
	d := Decision{ID: "nonsense", Prefix: "ARCH", Number: 1, Title: "x"}
	err := d.Validate()
	require.Error(t, err)
}

func TestTaskIDShapes(t *testing.T) {
	assert.True(t, IsTopLevelTaskID("T01"))
	assert.True(t, IsTopLevelTaskID("T123"))
	assert.False(t, IsTopLevelTaskID("T1"))

	assert.True(t, IsSubtaskID("T01.1"))
	assert.True(t, IsSubtaskID("T01.12"))
	assert.False(t, IsSubtaskID("T01"))

	assert.True(t, IsAuxiliaryTaskID("TD01"))
	assert.True(t, IsAuxiliaryTaskID("TQ07"))
	assert.False(t, IsAuxiliaryTaskID("TX01"))

	parent, num, ok := SplitSubtaskID("T04.3")
	require.True(t, ok)
	assert.Equal(t, "T04", parent)
	assert.Equal(t, 3, num)

	assert.Equal(t, 4, TopTaskNumber("T04"))
	assert.Equal(t, -1, TopTaskNumber("T04.1"))
}

func TestTaskValidate(t *testing.T) {
	valid := Task{ID: "T01", Title: "Login page", Status: TaskStatusPending, Milestone: "M1"}
	assert.NoError(t, valid.Validate())

	subtaskNoParent := Task{ID: "T01.1", Title: "Form", Status: TaskStatusPending}
	require.Error(t, subtaskNoParent.Validate())

	subtaskWrongParent := Task{ID: "T01.1", Title: "Form", Status: TaskStatusPending, ParentTask: "T02"}
	require.Error(t, subtaskWrongParent.Validate())

	subtaskOK := Task{ID: "T01.1", Title: "Form", Status: TaskStatusPending, ParentTask: "T01"}
	assert.NoError(t, subtaskOK.Validate())

	selfDep := Task{ID: "T02", Title: "x", DependsOn: []string{"T02"}}
	require.Error(t, selfDep.Validate())

	parentOnTop := Task{ID: "T02", Title: "x", ParentTask: "T01"}
	require.Error(t, parentOnTop.Validate())
}

func TestTaskEvalValidate(t *testing.T) {
	ok := TaskEval{TaskID: "T01", TestResults: TestResults{Total: 10, Passed: 7, Failed: 2, Skipped: 1}}
	assert.NoError(t, ok.Validate())

	overflow := TaskEval{TaskID: "T01", TestResults: TestResults{Total: 5, Passed: 4, Failed: 2}}
	require.Error(t, overflow.Validate())
}

func TestVerdictOrdering(t *testing.T) {
	assert.Equal(t, VerdictBlock, MoreSevereVerdict(VerdictPass, VerdictBlock))
	assert.Equal(t, VerdictBlock, MoreSevereVerdict(VerdictBlock, VerdictConcern))
	assert.Equal(t, VerdictConcern, MoreSevereVerdict(VerdictPass, VerdictConcern))
	assert.Equal(t, VerdictPass, MoreSevereVerdict(VerdictPass, VerdictPass))
}

func TestReviewResultValidate(t *testing.T) {
	r := ReviewResult{
		TaskID:   "T01",
		Reviewer: "primary",
		Cycle:    1,
		Verdict:  VerdictConcern,
		Findings: []Finding{
			{Severity: SeverityHigh, Category: "security", Description: "token in log"},
		},
		CriteriaMet:   3,
		CriteriaTotal: 4,
	}
	assert.NoError(t, r.Validate())

	r.Cycle = 0
	r.Verdict = "maybe"
	r.Findings[0].Severity = "huge"
	err := r.Validate()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
}

func TestAuditGapValidate(t *testing.T) {
	g := AuditGap{
		ID:       "GAP-01",
		Category: GapCategoryImpliedFeature,
		Severity: SeverityHigh,
		Layer:    LayerImplication,
		Title:    "No logout flow",
		Status:   GapStatusOpen,
	}
	assert.NoError(t, g.Validate())

	g.Status = GapStatusAccepted
	require.Error(t, g.Validate(), "accepted gap requires resolved_by")

	g.ResolvedBy = "T05"
	assert.NoError(t, g.Validate())
}

func TestGuardError(t *testing.T) {
	err := NewGuardError("start qa", "phase implementation not completed", "phase audit not completed")
	assert.Contains(t, err.Error(), "start qa")
	assert.Len(t, err.Unmet, 2)
}
