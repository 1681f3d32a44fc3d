package store

import (
	"database/sql"
	"errors"
	"fmt"

	"conductor/pkg/model"
)

// storePhase inserts or updates a phase row. Never commits.
func storePhase(tx *sql.Tx, p *model.Phase) error {
	if err := p.Validate(); err != nil {
		return err
	}

	prereqs, err := encodeStrings(p.Prereqs)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO phases (id, label, status, summary, prereqs, order_index, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			status = excluded.status,
			summary = excluded.summary,
			prereqs = excluded.prereqs,
			order_index = excluded.order_index,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, p.ID, p.Label, p.Status, p.Summary, prereqs, p.OrderIndex, p.StartedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to store phase %s: %w", p.ID, err)
	}
	return nil
}

// PutPhase writes a phase row inside the caller's transaction. Never
// commits; transitions compose it with event appends.
func PutPhase(tx *sql.Tx, p *model.Phase) error {
	return storePhase(tx, p)
}

// ShiftPhaseOrder makes room at an order index inside the caller's
// transaction.
func ShiftPhaseOrder(tx *sql.Tx, fromIndex int) error {
	return shiftPhaseOrder(tx, fromIndex)
}

// StorePhase writes one phase atomically.
func (o *Ops) StorePhase(p *model.Phase) error {
	return o.WithTx(func(tx *sql.Tx) error {
		return storePhase(tx, p)
	})
}

func scanPhase(row interface{ Scan(...any) error }) (*model.Phase, error) {
	var p model.Phase
	var prereqs string
	err := row.Scan(&p.ID, &p.Label, &p.Status, &p.Summary, &prereqs, &p.OrderIndex, &p.StartedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	if p.Prereqs, err = decodeStrings("phases", p.ID, "prereqs", prereqs); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPhase returns one phase by id.
func (o *Ops) GetPhase(id string) (*model.Phase, error) {
	row := o.store.db.QueryRow(`
		SELECT id, label, status, summary, prereqs, order_index, started_at, completed_at
		FROM phases WHERE id = ?
	`, id)
	p, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("phase %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get phase %s: %w", id, err)
	}
	return p, nil
}

// ListPhases returns all phases in order.
func (o *Ops) ListPhases() ([]*model.Phase, error) {
	rows, err := o.store.db.Query(`
		SELECT id, label, status, summary, prereqs, order_index, started_at, completed_at
		FROM phases ORDER BY order_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var phases []*model.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phase: %w", err)
		}
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("phase rows error: %w", err)
	}
	return phases, nil
}

// ActivePhase returns the currently active phase, or nil when none is.
func (o *Ops) ActivePhase() (*model.Phase, error) {
	row := o.store.db.QueryRow(`
		SELECT id, label, status, summary, prereqs, order_index, started_at, completed_at
		FROM phases WHERE status = ? LIMIT 1
	`, model.PhaseStatusActive)
	p, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active phase: %w", err)
	}
	return p, nil
}

// shiftPhaseOrder makes room at order index after inserting a phase, moving
// every phase at or past the index down by one. Never commits.
func shiftPhaseOrder(tx *sql.Tx, fromIndex int) error {
	_, err := tx.Exec("UPDATE phases SET order_index = order_index + 1 WHERE order_index >= ?", fromIndex)
	if err != nil {
		return fmt.Errorf("failed to shift phase order: %w", err)
	}
	return nil
}
