package model

import (
	"time"

	"github.com/google/uuid"
)

// Event actions recorded by mutating operations. Every mutating operation
// appends exactly one event inside the same transaction as its primary
// effect.
const (
	ActionInit           = "init"
	ActionPhaseStarted   = "phase_started"
	ActionPhaseCompleted = "phase_completed"
	ActionPhaseSkipped   = "phase_skipped"
	ActionPhaseInserted  = "phase_inserted"
	ActionDecisionStored = "decision_stored"
	ActionTaskStored     = "task_stored"
	ActionTaskDecomposed = "task_decomposed"
	ActionReviewStored   = "review_stored"
	ActionAuditRun       = "audit_run"
	ActionGapAccepted    = "gap_accepted"
	ActionGapDismissed   = "gap_dismissed"
	ActionFindingStored  = "finding_stored"
	ActionFindingPromote = "finding_promoted"
	ActionCheckpoint     = "checkpoint"
	ActionRollback       = "rollback"
	ActionSummaryStored  = "summary_stored"
	ActionEvalStored     = "eval_stored"
)

// Event is one append-only log row.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Detail     string    `json:"detail,omitempty"`
	Phase      string    `json:"phase,omitempty"` // active phase at the time, if any
}

// NewEvent builds an event row with a fresh id and UTC timestamp.
func NewEvent(actor, action, targetType, targetID, detail string) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Actor:      actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
}
