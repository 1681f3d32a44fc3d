package model

import "time"

// Pipeline is the singleton project record. It is mutated only by phase
// transitions and summary storage.
type Pipeline struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Name         string    `json:"name"`
	Summary      string    `json:"summary"`
	CurrentPhase string    `json:"current_phase,omitempty"` // empty when no phase is active
	Template     string    `json:"template"`
}

// CheckpointInfo describes one labeled store checkpoint on disk.
type CheckpointInfo struct {
	CreatedAt time.Time `json:"created_at"`
	Label     string    `json:"label"`
	Path      string    `json:"path"`
}

// Phase status constants.
const (
	PhaseStatusPending   = "pending"
	PhaseStatusActive    = "active"
	PhaseStatusCompleted = "completed"
	PhaseStatusSkipped   = "skipped"
)

// IsValidPhaseStatus checks if a phase status string is valid.
func IsValidPhaseStatus(status string) bool {
	switch status {
	case PhaseStatusPending, PhaseStatusActive, PhaseStatusCompleted, PhaseStatusSkipped:
		return true
	}
	return false
}

// IsTerminalPhaseStatus reports whether a phase can no longer change status.
func IsTerminalPhaseStatus(status string) bool {
	return status == PhaseStatusCompleted || status == PhaseStatusSkipped
}

// Phase is a named stage of the pipeline with a pending/active/completed/
// skipped lifecycle. Prereqs are seeded from the phase template at init and
// extended when phases are inserted at runtime; the stored map is the single
// source of ordering truth.
type Phase struct {
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Status      string     `json:"status"`
	Summary     string     `json:"summary,omitempty"`
	Prereqs     []string   `json:"prereqs"`
	OrderIndex  int        `json:"order_index"`
}

// Validate checks the phase's field invariants.
func (p *Phase) Validate() error {
	var errs ValidationErrors
	if p.ID == "" {
		errs.Addf("id", "must not be empty")
	}
	if !IsValidPhaseStatus(p.Status) {
		errs.Addf("status", "invalid status %q", p.Status)
	}
	return errs.OrNil()
}
