package model

import "time"

// TestResults summarizes verifier outcomes for one task.
// Invariant: Passed+Failed+Skipped <= Total.
type TestResults struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// TaskEval records per-task delivery metrics.
type TaskEval struct {
	CreatedAt       time.Time   `json:"created_at"`
	TaskID          string      `json:"task_id"`
	TestResults     TestResults `json:"test_results"`
	ReviewCycles    int         `json:"review_cycles"`
	ScopeViolations int         `json:"scope_violations"`
	FilesPlanned    int         `json:"files_planned"`
	FilesTouched    int         `json:"files_touched"`
}

// Validate checks every field invariant and returns all failures at once.
func (e *TaskEval) Validate() error {
	var errs ValidationErrors

	if !IsValidTaskID(e.TaskID) {
		errs.Addf("task_id", "%q matches no task id shape", e.TaskID)
	}
	tr := e.TestResults
	if tr.Passed < 0 || tr.Failed < 0 || tr.Skipped < 0 || tr.Total < 0 {
		errs.Addf("test_results", "counts must be non-negative")
	}
	if tr.Passed+tr.Failed+tr.Skipped > tr.Total {
		errs.Addf("test_results", "passed+failed+skipped (%d) exceeds total (%d)",
			tr.Passed+tr.Failed+tr.Skipped, tr.Total)
	}
	if e.ReviewCycles < 0 {
		errs.Addf("review_cycles", "must be non-negative")
	}

	return errs.OrNil()
}

// ReflexionEntry is a per-task learning record, persisted only when the
// verifier reported failures worth learning from.
type ReflexionEntry struct {
	CreatedAt time.Time `json:"created_at"`
	TaskID    string    `json:"task_id"`
	Category  string    `json:"category"`
	Lesson    string    `json:"lesson"`
}

// Validate checks every field invariant and returns all failures at once.
func (r *ReflexionEntry) Validate() error {
	var errs ValidationErrors
	if !IsValidTaskID(r.TaskID) {
		errs.Addf("task_id", "%q matches no task id shape", r.TaskID)
	}
	if r.Lesson == "" {
		errs.Addf("lesson", "must not be empty")
	}
	return errs.OrNil()
}
