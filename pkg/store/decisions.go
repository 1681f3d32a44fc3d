package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conductor/pkg/model"
)

// storeDecision inserts a decision, archiving any previous version under the
// same id into decision_history first. Never commits.
func storeDecision(tx *sql.Tx, d *model.Decision) error {
	if err := d.Validate(); err != nil {
		return err
	}

	prev, err := getDecisionTx(tx, d.ID)
	if err != nil {
		return err
	}
	if prev != nil {
		payload, err := encodeDecision(prev)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO decision_history (decision_id, replaced_at, payload)
			VALUES (?, ?, ?)
		`, prev.ID, time.Now().UTC(), payload)
		if err != nil {
			return fmt.Errorf("failed to archive decision %s: %w", prev.ID, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO decisions (id, prefix, number, title, rationale, phase, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			prefix = excluded.prefix,
			number = excluded.number,
			title = excluded.title,
			rationale = excluded.rationale,
			phase = excluded.phase,
			created_at = excluded.created_at
	`, d.ID, d.Prefix, d.Number, d.Title, d.Rationale, d.Phase, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store decision %s: %w", d.ID, err)
	}
	return nil
}

func getDecisionTx(tx *sql.Tx, id string) (*model.Decision, error) {
	var d model.Decision
	err := tx.QueryRow(`
		SELECT id, prefix, number, title, rationale, phase, created_at
		FROM decisions WHERE id = ?
	`, id).Scan(&d.ID, &d.Prefix, &d.Number, &d.Title, &d.Rationale, &d.Phase, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision %s: %w", id, err)
	}
	return &d, nil
}

// StoreDecision writes one decision atomically, superseding any previous
// version of the same id.
func (o *Ops) StoreDecision(d *model.Decision) error {
	return o.WithTx(func(tx *sql.Tx) error {
		if err := storeDecision(tx, d); err != nil {
			return err
		}
		return o.logEvent(tx, model.ActionDecisionStored, "decision", d.ID, d.Title)
	})
}

// GetDecision returns one decision by id, or nil when absent.
func (o *Ops) GetDecision(id string) (*model.Decision, error) {
	var d model.Decision
	err := o.store.db.QueryRow(`
		SELECT id, prefix, number, title, rationale, phase, created_at
		FROM decisions WHERE id = ?
	`, id).Scan(&d.ID, &d.Prefix, &d.Number, &d.Title, &d.Rationale, &d.Phase, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision %s: %w", id, err)
	}
	return &d, nil
}

// ListDecisions returns all current decisions ordered by prefix and number.
func (o *Ops) ListDecisions() ([]*model.Decision, error) {
	rows, err := o.store.db.Query(`
		SELECT id, prefix, number, title, rationale, phase, created_at
		FROM decisions ORDER BY prefix, number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []*model.Decision
	for rows.Next() {
		var d model.Decision
		if err := rows.Scan(&d.ID, &d.Prefix, &d.Number, &d.Title, &d.Rationale, &d.Phase, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("decision rows error: %w", err)
	}
	return decisions, nil
}

// ListDecisionHistory returns the archived versions of one decision id,
// oldest first.
func (o *Ops) ListDecisionHistory(id string) ([]*model.DecisionRevision, error) {
	rows, err := o.store.db.Query(`
		SELECT replaced_at, payload FROM decision_history
		WHERE decision_id = ? ORDER BY replaced_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var revisions []*model.DecisionRevision
	for rows.Next() {
		var rev model.DecisionRevision
		var payload string
		if err := rows.Scan(&rev.ReplacedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan decision revision: %w", err)
		}
		d, err := decodeDecision("decision_history", id, payload)
		if err != nil {
			return nil, err
		}
		rev.Decision = *d
		revisions = append(revisions, &rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("decision history rows error: %w", err)
	}
	return revisions, nil
}

// StoreConstraint writes one constraint atomically.
func (o *Ops) StoreConstraint(c *model.Constraint) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return o.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO constraints (id, category, description, phase)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				category = excluded.category,
				description = excluded.description,
				phase = excluded.phase
		`, c.ID, c.Category, c.Description, c.Phase)
		if err != nil {
			return fmt.Errorf("failed to store constraint %s: %w", c.ID, err)
		}
		return o.logEvent(tx, model.ActionDecisionStored, "constraint", c.ID, "")
	})
}

// ListConstraints returns all constraints ordered by id.
func (o *Ops) ListConstraints() ([]*model.Constraint, error) {
	rows, err := o.store.db.Query("SELECT id, category, description, phase FROM constraints ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list constraints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var constraints []*model.Constraint
	for rows.Next() {
		var c model.Constraint
		if err := rows.Scan(&c.ID, &c.Category, &c.Description, &c.Phase); err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		constraints = append(constraints, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("constraint rows error: %w", err)
	}
	return constraints, nil
}
