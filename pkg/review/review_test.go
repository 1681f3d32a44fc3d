package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/config"
	"conductor/pkg/model"
)

func TestSelectReviewersPrimaryOnly(t *testing.T) {
	task := &model.Task{ID: "T01", Title: "Docs", FilesToCreate: []string{"README.md"}}
	reviewers, err := SelectReviewers(task)
	require.NoError(t, err)
	assert.Equal(t, []string{ReviewerPrimary}, reviewers)
}

func TestSelectReviewersSecurityByPath(t *testing.T) {
	task := &model.Task{ID: "T01", Title: "Auth", FilesToModify: []string{"internal/auth/handler.go"}}
	reviewers, err := SelectReviewers(task)
	require.NoError(t, err)
	assert.Equal(t, []string{ReviewerPrimary, ReviewerSecurity}, reviewers)
}

func TestSelectReviewersSecurityByDecisionCategory(t *testing.T) {
	task := &model.Task{ID: "T01", Title: "Consent banner",
		FilesToCreate: []string{"web/banner.go"},
		DecisionRefs:  []string{"LEGAL-01"}}
	reviewers, err := SelectReviewers(task)
	require.NoError(t, err)
	assert.Contains(t, reviewers, ReviewerSecurity)
}

func TestSelectReviewersStyleByExtension(t *testing.T) {
	task := &model.Task{ID: "T01", Title: "Landing page",
		FilesToCreate: []string{"web/Landing.tsx"}}
	reviewers, err := SelectReviewers(task)
	require.NoError(t, err)
	assert.Equal(t, []string{ReviewerPrimary, ReviewerStyle}, reviewers)
}

func result(reviewer, verdict string, cycle int, findings ...model.Finding) *model.ReviewResult {
	return &model.ReviewResult{
		TaskID:   "T01",
		Reviewer: reviewer,
		Verdict:  verdict,
		Cycle:    cycle,
		Findings: findings,
	}
}

func finding(file, category, severity string) model.Finding {
	return model.Finding{File: file, Category: category, Severity: severity, Description: "issue in " + file}
}

func TestAdjudicateConfirmsByFileAndCategory(t *testing.T) {
	primary := result(ReviewerPrimary, model.VerdictConcern, 1,
		finding("auth.go", "security", model.SeverityHigh),
		finding("main.go", "style", model.SeverityLow),
	)
	security := result(ReviewerSecurity, model.VerdictBlock, 1,
		finding("auth.go", "security", model.SeverityCritical), // confirms primary's
		finding("token.go", "security", model.SeverityMedium),  // no primary counterpart
	)

	adj, err := NewAdjudicator().Adjudicate([]*model.ReviewResult{primary, security})
	require.NoError(t, err)

	require.Len(t, adj.Confirmed, 1)
	assert.Equal(t, "auth.go", adj.Confirmed[0].Finding.File)
	assert.Equal(t, []string{ReviewerPrimary, ReviewerSecurity}, adj.Confirmed[0].ConfirmedBy)

	require.Len(t, adj.Unconfirmed, 1)
	assert.Equal(t, "token.go", adj.Unconfirmed[0].Finding.File)
	assert.Equal(t, ReviewerSecurity, adj.Unconfirmed[0].Reviewer)

	// Security confirmed a finding, so its block verdict wins.
	assert.Equal(t, model.VerdictBlock, adj.Verdict)
}

func TestAdjudicateIgnoresNonContributingVerdicts(t *testing.T) {
	primary := result(ReviewerPrimary, model.VerdictPass, 1)
	style := result(ReviewerStyle, model.VerdictBlock, 1,
		finding("page.css", "style", model.SeverityLow))

	adj, err := NewAdjudicator().Adjudicate([]*model.ReviewResult{primary, style})
	require.NoError(t, err)

	// Style's finding was not confirmed, so its verdict carries no weight.
	assert.Equal(t, model.VerdictPass, adj.Verdict)
	assert.Empty(t, adj.Confirmed)
	require.Len(t, adj.Unconfirmed, 1)
}

func TestAdjudicateRequiresPrimary(t *testing.T) {
	style := result(ReviewerStyle, model.VerdictPass, 1)
	_, err := NewAdjudicator().Adjudicate([]*model.ReviewResult{style})
	assert.Error(t, err)
}

func TestAdjudicateRejectsMixedCycles(t *testing.T) {
	primary := result(ReviewerPrimary, model.VerdictPass, 1)
	stale := result(ReviewerSecurity, model.VerdictPass, 2)
	_, err := NewAdjudicator().Adjudicate([]*model.ReviewResult{primary, stale})
	assert.Error(t, err)
}

func TestDetectPendulum(t *testing.T) {
	history := []*model.ReviewResult{
		result(ReviewerPrimary, model.VerdictConcern, 1,
			finding("auth.go", "security", model.SeverityHigh)),
		result(ReviewerPrimary, model.VerdictConcern, 2,
			finding("auth.go", "logic", model.SeverityMedium)),
		result(ReviewerPrimary, model.VerdictPass, 3,
			finding("other.go", "logic", model.SeverityLow)),
	}

	warnings := DetectPendulum(history)
	require.Len(t, warnings, 2)

	assert.Equal(t, "file", warnings[0].Kind)
	assert.Equal(t, "auth.go", warnings[0].Subject)
	assert.Equal(t, []int{1, 2}, warnings[0].Cycles)

	assert.Equal(t, "category", warnings[1].Kind)
	assert.Equal(t, "logic", warnings[1].Subject)
	assert.Equal(t, []int{2, 3}, warnings[1].Cycles)
}

func TestExceedsCycleLimit(t *testing.T) {
	assert.False(t, ExceedsCycleLimit(3, 3))
	assert.True(t, ExceedsCycleLimit(4, 3))
	assert.False(t, ExceedsCycleLimit(3, 0)) // default ceiling
	assert.True(t, ExceedsCycleLimit(4, 0))
}

func TestExceedsConfiguredCycleLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.False(t, ExceedsConfiguredCycleLimit(3, cfg))
	assert.True(t, ExceedsConfiguredCycleLimit(4, cfg))

	cfg.ReviewCycleCeiling = 1
	assert.True(t, ExceedsConfiguredCycleLimit(2, cfg))
}
