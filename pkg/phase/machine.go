package phase

import (
	"database/sql"
	"fmt"
	"time"

	"conductor/pkg/logx"
	"conductor/pkg/model"
	"conductor/pkg/store"
)

// Machine drives phase transitions against one open store.
type Machine struct {
	store  *store.Store
	ops    *store.Ops
	tmpl   *Template
	logger *logx.Logger
}

// Init initializes a fresh store from a named template.
func Init(s *store.Store, projectName, templateName string) error {
	tmpl, err := LookupTemplate(templateName)
	if err != nil {
		return err
	}
	return s.Init(projectName, templateName, tmpl.SeedPhases())
}

// NewMachine builds a machine for an initialized store, acting as actor.
func NewMachine(s *store.Store, actor string) (*Machine, error) {
	ops := s.Ops(actor)
	pipeline, err := ops.GetPipeline()
	if err != nil {
		return nil, err
	}
	tmpl, err := LookupTemplate(pipeline.Template)
	if err != nil {
		return nil, err
	}
	return &Machine{
		store:  s,
		ops:    ops,
		tmpl:   tmpl,
		logger: logx.NewLogger("phase"),
	}, nil
}

// Start transitions a phase from pending to active. It fails if the phase is
// already completed or skipped, if any other phase is active, or with a
// guard error listing every unmet prerequisite. On success it creates a
// checkpoint labeled with the phase id, marks the phase active, sets the
// pipeline's current phase, and logs an event.
func (m *Machine) Start(id string) error {
	target, err := m.ops.GetPhase(id)
	if err != nil {
		return err
	}
	if model.IsTerminalPhaseStatus(target.Status) {
		return model.NewGuardError("start "+id, fmt.Sprintf("phase %s is already %s", id, target.Status))
	}

	active, err := m.ops.ActivePhase()
	if err != nil {
		return err
	}
	if active != nil {
		return model.NewGuardError("start "+id, fmt.Sprintf("phase %s is currently active", active.ID))
	}

	var unmet []string
	for _, prereq := range target.Prereqs {
		p, err := m.ops.GetPhase(prereq)
		if err != nil {
			return err
		}
		if !model.IsTerminalPhaseStatus(p.Status) {
			unmet = append(unmet, fmt.Sprintf("phase %s is %s", p.ID, p.Status))
		}
	}
	if m.tmpl.IsGated(id) {
		gateUnmet, err := m.completenessGate()
		if err != nil {
			return err
		}
		unmet = append(unmet, gateUnmet...)
	}
	if len(unmet) > 0 {
		return model.NewGuardError("start "+id, unmet...)
	}

	// Checkpoint before the transition so a bad phase can be rolled back.
	if err := m.store.Checkpoint(id); err != nil {
		return err
	}

	now := time.Now().UTC()
	err = m.ops.WithTx(func(tx *sql.Tx) error {
		target.Status = model.PhaseStatusActive
		target.StartedAt = &now
		if err := store.PutPhase(tx, target); err != nil {
			return err
		}
		if err := store.SetCurrentPhase(tx, id); err != nil {
			return err
		}
		return store.LogEvent(tx, m.ops.Actor(), model.ActionPhaseStarted, "phase", id, "")
	})
	if err != nil {
		return err
	}

	m.logger.Info("phase %s started", id)
	return nil
}

// completenessGate returns the unmet completeness conditions: at least one
// task exists, a full audit has run at least once (detected via the event
// log so it survives restarts), and zero gaps remain open.
func (m *Machine) completenessGate() ([]string, error) {
	var unmet []string

	tasks, err := m.ops.ListTasks()
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		unmet = append(unmet, "no tasks exist")
	}

	audited, err := m.ops.HasEvent(model.ActionAuditRun)
	if err != nil {
		return nil, err
	}
	if !audited {
		unmet = append(unmet, "completeness audit has never run")
	}

	open, err := m.ops.CountGaps(model.GapStatusOpen)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		unmet = append(unmet, fmt.Sprintf("%d audit gaps still open", open))
	}

	return unmet, nil
}

// Complete transitions the active phase to completed, storing an optional
// summary and clearing the pipeline's current-phase pointer.
func (m *Machine) Complete(id, summary string) error {
	target, err := m.ops.GetPhase(id)
	if err != nil {
		return err
	}
	if target.Status != model.PhaseStatusActive {
		return model.NewGuardError("complete "+id, fmt.Sprintf("phase %s is %s, not active", id, target.Status))
	}

	now := time.Now().UTC()
	return m.ops.WithTx(func(tx *sql.Tx) error {
		target.Status = model.PhaseStatusCompleted
		target.CompletedAt = &now
		target.Summary = summary
		if err := store.PutPhase(tx, target); err != nil {
			return err
		}
		if err := store.SetCurrentPhase(tx, ""); err != nil {
			return err
		}
		return store.LogEvent(tx, m.ops.Actor(), model.ActionPhaseCompleted, "phase", id, summary)
	})
}

// Skip marks a phase skipped with an optional reason. Active phases may be
// skipped (a phase started then found unnecessary); only completed phases
// cannot.
func (m *Machine) Skip(id, reason string) error {
	target, err := m.ops.GetPhase(id)
	if err != nil {
		return err
	}
	if target.Status == model.PhaseStatusCompleted {
		return model.NewGuardError("skip "+id, fmt.Sprintf("phase %s is already completed", id))
	}

	wasActive := target.Status == model.PhaseStatusActive
	now := time.Now().UTC()
	return m.ops.WithTx(func(tx *sql.Tx) error {
		target.Status = model.PhaseStatusSkipped
		target.CompletedAt = &now
		target.Summary = reason
		if err := store.PutPhase(tx, target); err != nil {
			return err
		}
		if wasActive {
			if err := store.SetCurrentPhase(tx, ""); err != nil {
				return err
			}
		}
		return store.LogEvent(tx, m.ops.Actor(), model.ActionPhaseSkipped, "phase", id, reason)
	})
}

// InsertAfter creates a new pending phase immediately after an existing one.
// The new phase's only prerequisite is the phase it follows; later phases
// keep their original prerequisites.
func (m *Machine) InsertAfter(afterID, newID, label string) error {
	after, err := m.ops.GetPhase(afterID)
	if err != nil {
		return err
	}
	if existing, err := m.ops.GetPhase(newID); err == nil && existing != nil {
		return fmt.Errorf("phase %s already exists", newID)
	}

	return m.ops.WithTx(func(tx *sql.Tx) error {
		if err := store.ShiftPhaseOrder(tx, after.OrderIndex+1); err != nil {
			return err
		}
		inserted := &model.Phase{
			ID:         newID,
			Label:      label,
			Status:     model.PhaseStatusPending,
			Prereqs:    []string{afterID},
			OrderIndex: after.OrderIndex + 1,
		}
		if err := store.PutPhase(tx, inserted); err != nil {
			return err
		}
		return store.LogEvent(tx, m.ops.Actor(), model.ActionPhaseInserted, "phase", newID, "after="+afterID)
	})
}
