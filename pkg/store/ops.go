package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conductor/pkg/logx"
	"conductor/pkg/model"
)

// Ops provides database operations on behalf of one actor. Public methods
// are atomic: each opens one transaction, performs the mutation plus its
// event-log append, and commits. The unexported storeX helpers never commit
// so callers can compose several into one atomic operation.
type Ops struct {
	store  *Store
	logger *logx.Logger
	actor  string
}

// Actor returns the actor mutations are attributed to.
func (o *Ops) Actor() string {
	return o.actor
}

// WithTx runs fn inside one transaction, committing on success and rolling
// back on error.
func (o *Ops) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := o.store.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	o.store.metrics.IncTransactions()
	return nil
}

// appendEvent writes one event row inside the caller's transaction, stamping
// it with the pipeline's current phase at the time.
func appendEvent(tx *sql.Tx, ev *model.Event) error {
	var phase sql.NullString
	err := tx.QueryRow("SELECT current_phase FROM pipeline WHERE id = 1").Scan(&phase)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read current phase: %w", err)
	}
	if phase.Valid {
		ev.Phase = phase.String
	}

	_, err = tx.Exec(`
		INSERT INTO events (id, timestamp, actor, action, target_type, target_id, detail, phase)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Timestamp, ev.Actor, ev.Action, ev.TargetType, ev.TargetID, ev.Detail, ev.Phase)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// logEvent is the composable form of event appending for use inside WithTx.
func (o *Ops) logEvent(tx *sql.Tx, action, targetType, targetID, detail string) error {
	return appendEvent(tx, model.NewEvent(o.actor, action, targetType, targetID, detail))
}

// LogEvent appends one event row inside the caller's transaction. Never
// commits.
func LogEvent(tx *sql.Tx, actor, action, targetType, targetID, detail string) error {
	return appendEvent(tx, model.NewEvent(actor, action, targetType, targetID, detail))
}

// SetCurrentPhase updates the pipeline's current-phase pointer inside the
// caller's transaction. Pass empty to clear it.
func SetCurrentPhase(tx *sql.Tx, phaseID string) error {
	return setCurrentPhase(tx, phaseID)
}

// GetPipeline returns the singleton pipeline row.
func (o *Ops) GetPipeline() (*model.Pipeline, error) {
	var p model.Pipeline
	var current sql.NullString
	err := o.store.db.QueryRow(`
		SELECT name, summary, current_phase, template, created_at, updated_at
		FROM pipeline WHERE id = 1
	`).Scan(&p.Name, &p.Summary, &current, &p.Template, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline not initialized")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	if current.Valid {
		p.CurrentPhase = current.String
	}
	return &p, nil
}

// StoreSummary updates the pipeline's free-text summary.
func (o *Ops) StoreSummary(summary string) error {
	return o.WithTx(func(tx *sql.Tx) error {
		if err := setPipelineSummary(tx, summary); err != nil {
			return err
		}
		return o.logEvent(tx, model.ActionSummaryStored, "pipeline", "", "")
	})
}

func setPipelineSummary(tx *sql.Tx, summary string) error {
	res, err := tx.Exec(
		"UPDATE pipeline SET summary = ?, updated_at = ? WHERE id = 1",
		summary, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pipeline not initialized")
	}
	return nil
}

// setCurrentPhase updates the pipeline's current-phase pointer inside tx.
// Pass empty to clear it.
func setCurrentPhase(tx *sql.Tx, phaseID string) error {
	var val any
	if phaseID != "" {
		val = phaseID
	}
	_, err := tx.Exec("UPDATE pipeline SET current_phase = ?, updated_at = ? WHERE id = 1", val, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set current phase: %w", err)
	}
	return nil
}
