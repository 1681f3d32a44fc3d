package audit

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/model"
	"conductor/pkg/phase"
	"conductor/pkg/store"
)

func newTestOps(t *testing.T) *store.Ops {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, phase.Init(s, "demo", phase.TemplateGreenfield))
	return s.Ops("tester")
}

func storeDecision(t *testing.T, ops *store.Ops, id, title string) {
	t.Helper()
	d, err := model.NewDecision(id, title, "agreed in planning", "planning")
	require.NoError(t, err)
	require.NoError(t, ops.StoreDecision(d))
}

func storeTask(t *testing.T, ops *store.Ops, task *model.Task) {
	t.Helper()
	require.NoError(t, ops.StoreMilestone(&model.Milestone{ID: "M1", Name: "Core", Order: 1}))
	require.NoError(t, ops.StoreTask(task))
}

func gapTitles(gaps []*model.AuditGap) []string {
	titles := make([]string, len(gaps))
	for i, g := range gaps {
		titles[i] = g.Title
	}
	return titles
}

func TestImplicationGapForMissingLogout(t *testing.T) {
	ops := newTestOps(t)
	storeDecision(t, ops, "BACK-01", "JWT authentication")
	storeTask(t, ops, &model.Task{
		ID: "T01", Title: "Login page", Milestone: "M1",
		Goal: "Build login form with JWT auth",
	})

	engine := NewEngine(ops)
	result, err := engine.Run()
	require.NoError(t, err)

	var logoutGap *model.AuditGap
	for _, g := range result.Gaps {
		if strings.Contains(strings.ToLower(g.Title), "logout") {
			logoutGap = g
		}
	}
	require.NotNil(t, logoutGap, "expected a logout gap, got %v", gapTitles(result.Gaps))
	assert.Equal(t, model.SeverityHigh, logoutGap.Severity)
	assert.Equal(t, model.LayerImplication, logoutGap.Layer)
	assert.Equal(t, model.GapStatusOpen, logoutGap.Status)
	// The authentication rule carries its category in the rule data.
	assert.Equal(t, model.GapCategorySecurity, logoutGap.Category)

	// Covering the implied feature removes the gap on re-audit.
	require.NoError(t, ops.StoreTask(&model.Task{
		ID: "T02", Title: "Logout flow", Milestone: "M1",
		Goal: "Implement logout and session timeout and password reset",
	}))
	result, err = engine.Run()
	require.NoError(t, err)
	for _, g := range result.Gaps {
		assert.NotContains(t, strings.ToLower(g.Title), "logout",
			"logout gap should disappear once covered")
	}
}

func TestImplicationRuleCategoriesComeFromData(t *testing.T) {
	rs, err := loadRules()
	require.NoError(t, err)

	byName := make(map[string]string, len(rs.Implications))
	for _, r := range rs.Implications {
		byName[r.Name] = r.Category
	}
	assert.Equal(t, model.GapCategorySecurity, byName["authentication"])
	assert.Equal(t, model.GapCategorySecurity, byName["payment"])
	// Unannotated rules default to implied_feature at gap-build time.
	assert.Empty(t, byName["search"])
}

func TestContractGapWithoutBackend(t *testing.T) {
	ops := newTestOps(t)
	storeTask(t, ops, &model.Task{
		ID: "T01", Title: "User list page", Milestone: "M1",
		Goal: "Render the user list from /api/users",
	})

	result, err := NewEngine(ops).Run()
	require.NoError(t, err)

	var contract *model.AuditGap
	for _, g := range result.Gaps {
		if g.Layer == model.LayerContract {
			contract = g
		}
	}
	require.NotNil(t, contract, "expected a contract gap, got %v", gapTitles(result.Gaps))
	assert.Equal(t, model.SeverityCritical, contract.Severity)
	assert.Contains(t, contract.Title, "T01")
	assert.Equal(t, model.GapCategoryAPIContract, contract.Category)
}

func TestContractGapSpecificPathUnmatched(t *testing.T) {
	ops := newTestOps(t)
	storeTask(t, ops, &model.Task{
		ID: "T01", Title: "Orders page", Milestone: "M1",
		Goal:         "Render orders from /api/orders",
		DecisionRefs: []string{"FRONT-01"},
	})
	require.NoError(t, ops.StoreTask(&model.Task{
		ID: "T02", Title: "Users endpoint", Milestone: "M1",
		Goal:         "Serve /api/users from the handler layer",
		DecisionRefs: []string{"BACK-01"},
	}))

	result, err := NewEngine(ops).Run()
	require.NoError(t, err)

	var contract *model.AuditGap
	for _, g := range result.Gaps {
		if g.Layer == model.LayerContract {
			contract = g
		}
	}
	require.NotNil(t, contract)
	assert.Equal(t, model.SeverityHigh, contract.Severity)
	assert.Contains(t, contract.Title, "/api/orders")
}

func TestAuditIdempotency(t *testing.T) {
	ops := newTestOps(t)
	storeDecision(t, ops, "BACK-01", "JWT authentication")
	storeTask(t, ops, &model.Task{
		ID: "T01", Title: "Login page", Milestone: "M1",
		Goal: "Build login form with JWT auth",
	})

	engine := NewEngine(ops)
	first, err := engine.Run()
	require.NoError(t, err)
	second, err := engine.Run()
	require.NoError(t, err)

	require.Equal(t, len(first.Gaps), len(second.Gaps))
	for i := range first.Gaps {
		assert.Equal(t, first.Gaps[i].ID, second.Gaps[i].ID)
		assert.Equal(t, first.Gaps[i].Title, second.Gaps[i].Title)
	}

	open, err := ops.CountGaps(model.GapStatusOpen)
	require.NoError(t, err)
	assert.Equal(t, len(first.Gaps), open, "no duplicate open gaps accumulate")
}

func TestGapNumberingUniqueAcrossLayers(t *testing.T) {
	ops := newTestOps(t)
	storeDecision(t, ops, "BACK-01", "JWT authentication")
	storeTask(t, ops, &model.Task{
		ID: "T01", Title: "Login page", Milestone: "M1",
		Goal: "Build login form with JWT auth, fetch profile from /api/profile",
	})

	result, err := NewEngine(ops).Run()
	require.NoError(t, err)

	seen := make(map[string]bool)
	sawImplication, sawContract := false, false
	for _, g := range result.Gaps {
		assert.False(t, seen[g.ID], "duplicate gap id %s", g.ID)
		seen[g.ID] = true
		switch g.Layer {
		case model.LayerImplication:
			sawImplication = true
			assert.False(t, sawContract, "implication gaps must be numbered before contract gaps")
		case model.LayerContract:
			sawContract = true
		}
	}
	assert.True(t, sawImplication)
	assert.True(t, sawContract)
}

func TestAuditRunPreservesAcceptedGaps(t *testing.T) {
	ops := newTestOps(t)
	storeDecision(t, ops, "BACK-01", "JWT authentication")
	storeTask(t, ops, &model.Task{
		ID: "T01", Title: "Login page", Milestone: "M1",
		Goal: "Build login form with JWT auth",
	})

	engine := NewEngine(ops)
	first, err := engine.Run()
	require.NoError(t, err)
	require.NotEmpty(t, first.Gaps)

	accepted := first.Gaps[0]
	require.NoError(t, ops.AcceptGap(accepted.ID, &model.Task{
		ID: "T02", Title: "Cover " + accepted.Title, Milestone: "M1", Goal: "close the gap",
	}))

	second, err := engine.Run()
	require.NoError(t, err)

	// The accepted gap survives and its number is never reassigned.
	kept, err := ops.GetGap(accepted.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, model.GapStatusAccepted, kept.Status)
	for _, g := range second.Gaps {
		assert.NotEqual(t, accepted.ID, g.ID)
	}
}

func TestMergeJourneys(t *testing.T) {
	ops := newTestOps(t)
	storeDecision(t, ops, "BACK-01", "JWT authentication")
	storeTask(t, ops, &model.Task{
		ID: "T01", Title: "Login page", Milestone: "M1",
		Goal: "Build login form with JWT auth",
	})

	engine := NewEngine(ops)
	result, err := engine.Run()
	require.NoError(t, err)
	deterministic := len(result.Gaps)
	require.Greater(t, deterministic, 0)

	response := "```json\n" + `{
		"journeys": [{"name": "signup", "steps": ["open page", "submit"], "outcome": "broken"}],
		"gaps": [
			{"category": "journey_break", "severity": "high", "title": "Signup dead-ends",
			 "journey": "signup", "evidence": ["T01", 42], "recommendation": "add confirmation step"},
			{"category": "not_a_category", "severity": "high", "title": "Bad enum", "journey": "signup"}
		]
	}` + "\n```"

	payload, recordErrs, err := engine.MergeJourneys(response)
	require.NoError(t, err)
	require.Len(t, payload.Gaps, 1)
	require.Len(t, recordErrs, 1)
	assert.Contains(t, recordErrs[0], "not_a_category")

	merged := payload.Gaps[0]
	assert.Equal(t, model.LayerJourney, merged.Layer)
	assert.Equal(t, "journey:signup", merged.Trigger)
	assert.Equal(t, []string{"T01", "42"}, merged.Evidence, "evidence coerced to strings")
	assert.Equal(t, result.NextGapID, model.GapNumber(merged.ID),
		"journey numbering continues after deterministic gaps")

	open, err := ops.CountGaps(model.GapStatusOpen)
	require.NoError(t, err)
	assert.Equal(t, deterministic+1, open)
}

func TestEarlyDetect(t *testing.T) {
	ops := newTestOps(t)
	storeDecision(t, ops, "BACK-01", "JWT authentication endpoint design")

	advisories, err := NewEngine(ops).EarlyDetect(model.CategoryBack)
	require.NoError(t, err)
	require.NotEmpty(t, advisories)

	var crossDomain *Advisory
	for i := range advisories {
		if advisories[i].Rule == "cross-domain" {
			crossDomain = &advisories[i]
		}
	}
	require.NotNil(t, crossDomain, "BACK decisions mention endpoint with no FRONT decision")
	assert.Contains(t, crossDomain.Message, "FRONT")

	// Advisories are never persisted.
	open, err := ops.CountGaps(model.GapStatusOpen)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestComposeJourneyContext(t *testing.T) {
	ops := newTestOps(t)
	storeDecision(t, ops, "ARCH-01", "Single binary")
	storeTask(t, ops, &model.Task{ID: "T01", Title: "Scaffold", Milestone: "M1", Goal: "set up"})
	require.NoError(t, ops.StoreSummary("a demo project"))

	jc, err := NewEngine(ops).ComposeJourneyContext()
	require.NoError(t, err)
	assert.Equal(t, "a demo project", jc.Summary)
	assert.Len(t, jc.TasksByMilestone["M1"], 1)
	require.Len(t, jc.DecisionIndex, 1)
	assert.Equal(t, "ARCH-01: Single binary", jc.DecisionIndex[0])

	// The context must serialize for the external renderer.
	_, err = json.Marshal(jc)
	require.NoError(t, err)
}
