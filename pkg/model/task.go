package model

import (
	"regexp"
	"strconv"
	"time"
)

// Task status constants.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusBlocked    = "blocked"
)

// ValidTaskStatuses returns all valid task statuses.
func ValidTaskStatuses() []string {
	return []string{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusBlocked}
}

// IsValidTaskStatus checks if a status string is valid.
func IsValidTaskStatus(status string) bool {
	for _, s := range ValidTaskStatuses() {
		if status == s {
			return true
		}
	}
	return false
}

// Task id shapes. Top-level ids are T<NN>; decomposed subtasks are
// T<NN>.<n>; TD<NN> tasks derive from promoted deferred findings and TQ<NN>
// tasks from QA findings.
var (
	topTaskIDPattern  = regexp.MustCompile(`^T(\d{2,})$`)
	subTaskIDPattern  = regexp.MustCompile(`^(T\d{2,})\.(\d+)$`)
	deferredIDPattern = regexp.MustCompile(`^TD\d{2,}$`)
	qaIDPattern       = regexp.MustCompile(`^TQ\d{2,}$`)

	milestoneIDPattern = regexp.MustCompile(`^M\d+$`)
)

// IsTopLevelTaskID reports whether id is a top-level task id (T<NN>).
func IsTopLevelTaskID(id string) bool {
	return topTaskIDPattern.MatchString(id)
}

// IsSubtaskID reports whether id is a decomposed-subtask id (T<NN>.<n>).
func IsSubtaskID(id string) bool {
	return subTaskIDPattern.MatchString(id)
}

// IsAuxiliaryTaskID reports whether id belongs to the deferred-finding or QA
// series.
func IsAuxiliaryTaskID(id string) bool {
	return deferredIDPattern.MatchString(id) || qaIDPattern.MatchString(id)
}

// IsValidTaskID reports whether id matches any of the three task id shapes.
func IsValidTaskID(id string) bool {
	return IsTopLevelTaskID(id) || IsSubtaskID(id) || IsAuxiliaryTaskID(id)
}

// TopTaskNumber returns the numeric suffix of a top-level task id, or -1.
func TopTaskNumber(id string) int {
	matches := topTaskIDPattern.FindStringSubmatch(id)
	if matches == nil {
		return -1
	}
	n, _ := strconv.Atoi(matches[1])
	return n
}

// SplitSubtaskID returns the parent id and subtask number of a subtask id.
// ok is false when id is not a subtask id.
func SplitSubtaskID(id string) (parent string, num int, ok bool) {
	matches := subTaskIDPattern.FindStringSubmatch(id)
	if matches == nil {
		return "", 0, false
	}
	n, _ := strconv.Atoi(matches[2])
	return matches[1], n, true
}

// Milestone groups tasks under an ordered goal (M<n>).
type Milestone struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Goal  string `json:"goal"`
	Order int    `json:"order"`
}

// Validate checks the milestone's field invariants.
func (m *Milestone) Validate() error {
	var errs ValidationErrors
	if !milestoneIDPattern.MatchString(m.ID) {
		errs.Addf("id", "%q does not match M<n>", m.ID)
	}
	if m.Name == "" {
		errs.Addf("name", "must not be empty")
	}
	return errs.OrNil()
}

// Task is a unit of work in the dependency graph.
//
//nolint:govet // struct alignment optimization not critical for this type
type Task struct {
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Milestone          string    `json:"milestone"`
	Status             string    `json:"status"`
	Goal               string    `json:"goal"`
	DependsOn          []string  `json:"depends_on"`
	DecisionRefs       []string  `json:"decision_refs"`
	FilesToCreate      []string  `json:"files_to_create"`
	FilesToModify      []string  `json:"files_to_modify"`
	AcceptanceCriteria []string  `json:"acceptance_criteria"`
	VerifyCommand      string    `json:"verify_command,omitempty"`
	ParentTask         string    `json:"parent_task,omitempty"`
}

// Files returns the union of files to create and modify.
func (t *Task) Files() []string {
	files := make([]string, 0, len(t.FilesToCreate)+len(t.FilesToModify))
	files = append(files, t.FilesToCreate...)
	files = append(files, t.FilesToModify...)
	return files
}

// Validate checks every field invariant and returns all failures at once.
// Subtask ids require a matching parent-task back-reference.
func (t *Task) Validate() error {
	var errs ValidationErrors

	if !IsValidTaskID(t.ID) {
		errs.Addf("id", "%q matches no task id shape", t.ID)
	}
	if t.Title == "" {
		errs.Addf("title", "must not be empty")
	}
	if t.Status != "" && !IsValidTaskStatus(t.Status) {
		errs.Addf("status", "invalid status %q", t.Status)
	}
	if t.Milestone != "" && !milestoneIDPattern.MatchString(t.Milestone) {
		errs.Addf("milestone", "%q does not match M<n>", t.Milestone)
	}

	if parent, _, ok := SplitSubtaskID(t.ID); ok {
		if t.ParentTask == "" {
			errs.Addf("parent_task", "required for subtask id %q", t.ID)
		} else if t.ParentTask != parent {
			errs.Addf("parent_task", "%q does not match id parent %q", t.ParentTask, parent)
		}
	} else if t.ParentTask != "" {
		errs.Addf("parent_task", "set on non-subtask id %q", t.ID)
	}

	for _, dep := range t.DependsOn {
		if dep == t.ID {
			errs.Addf("depends_on", "task depends on itself")
		}
	}

	return errs.OrNil()
}
