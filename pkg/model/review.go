package model

import "time"

// Review verdicts, ordered block > concern > pass.
const (
	VerdictPass    = "pass"
	VerdictConcern = "concern"
	VerdictBlock   = "block"
)

// IsValidVerdict checks if a verdict string is valid.
func IsValidVerdict(verdict string) bool {
	return verdict == VerdictPass || verdict == VerdictConcern || verdict == VerdictBlock
}

// VerdictRank returns the severity rank of a verdict (higher is worse).
func VerdictRank(verdict string) int {
	switch verdict {
	case VerdictBlock:
		return 2
	case VerdictConcern:
		return 1
	case VerdictPass:
		return 0
	}
	return -1
}

// MoreSevereVerdict returns the more severe of two verdicts.
func MoreSevereVerdict(a, b string) string {
	if VerdictRank(b) > VerdictRank(a) {
		return b
	}
	return a
}

// Finding severities, shared with audit gaps.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// IsValidSeverity checks if a severity string is valid.
func IsValidSeverity(severity string) bool {
	switch severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Finding is a single ordered review finding.
type Finding struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
	File        string `json:"file,omitempty"`
	DecisionRef string `json:"decision_ref,omitempty"`
	Fix         string `json:"fix,omitempty"`
}

// ReviewResult is one reviewer's output for one (task, cycle). Cycle numbers
// increase monotonically per task and are never reused.
//
//nolint:govet // struct alignment optimization not critical for this type
type ReviewResult struct {
	CreatedAt          time.Time         `json:"created_at"`
	TaskID             string            `json:"task_id"`
	Reviewer           string            `json:"reviewer"`
	Verdict            string            `json:"verdict"`
	Findings           []Finding         `json:"findings"`
	DecisionCompliance map[string]string `json:"decision_compliance,omitempty"`
	Cycle              int               `json:"cycle"`
	CriteriaMet        int               `json:"criteria_met"`
	CriteriaTotal      int               `json:"criteria_total"`
}

// Validate checks every field invariant and returns all failures at once.
func (r *ReviewResult) Validate() error {
	var errs ValidationErrors

	if !IsValidTaskID(r.TaskID) {
		errs.Addf("task_id", "%q matches no task id shape", r.TaskID)
	}
	if r.Reviewer == "" {
		errs.Addf("reviewer", "must not be empty")
	}
	if r.Cycle < 1 {
		errs.Addf("cycle", "must be >= 1, got %d", r.Cycle)
	}
	if !IsValidVerdict(r.Verdict) {
		errs.Addf("verdict", "invalid verdict %q", r.Verdict)
	}
	if r.CriteriaMet > r.CriteriaTotal {
		errs.Addf("criteria_met", "%d exceeds total %d", r.CriteriaMet, r.CriteriaTotal)
	}
	for i := range r.Findings {
		f := &r.Findings[i]
		if !IsValidSeverity(f.Severity) {
			errs.Addf("findings", "finding %d: invalid severity %q", i, f.Severity)
		}
		if f.Description == "" {
			errs.Addf("findings", "finding %d: description must not be empty", i)
		}
	}

	return errs.OrNil()
}
