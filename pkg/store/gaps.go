package store

import (
	"database/sql"
	"errors"
	"fmt"

	"conductor/pkg/model"
)

// storeGap inserts or updates one audit gap row. Never commits. The Trigger
// attribute is persisted under the source column.
func storeGap(tx *sql.Tx, g *model.AuditGap) error {
	if err := g.Validate(); err != nil {
		return err
	}

	evidence, err := encodeStrings(g.Evidence)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO audit_gaps (
			id, category, severity, layer, title, description, source,
			evidence, recommendation, status, resolved_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			severity = excluded.severity,
			layer = excluded.layer,
			title = excluded.title,
			description = excluded.description,
			source = excluded.source,
			evidence = excluded.evidence,
			recommendation = excluded.recommendation,
			status = excluded.status,
			resolved_by = excluded.resolved_by
	`, g.ID, g.Category, g.Severity, g.Layer, g.Title, g.Description, g.Trigger,
		evidence, g.Recommendation, g.Status, g.ResolvedBy, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store gap %s: %w", g.ID, err)
	}
	return nil
}

// clearOpenGaps deletes every gap still in open status. Accepted, dismissed,
// and deferred gaps are never touched. Never commits.
func clearOpenGaps(tx *sql.Tx) (int64, error) {
	res, err := tx.Exec("DELETE FROM audit_gaps WHERE status = ?", model.GapStatusOpen)
	if err != nil {
		return 0, fmt.Errorf("failed to clear open gaps: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReplaceOpenGaps clears all open gaps and inserts the current audit's gaps
// in one transaction, logging one audit_run event. Re-auditing unchanged
// state therefore reproduces an identical gap set.
func (o *Ops) ReplaceOpenGaps(gaps []*model.AuditGap) error {
	return o.WithTx(func(tx *sql.Tx) error {
		cleared, err := clearOpenGaps(tx)
		if err != nil {
			return err
		}
		for _, g := range gaps {
			if err := storeGap(tx, g); err != nil {
				return err
			}
		}
		return o.logEvent(tx, model.ActionAuditRun, "audit", "",
			fmt.Sprintf("cleared=%d inserted=%d", cleared, len(gaps)))
	})
}

// AppendGaps inserts gaps without clearing existing ones, used when merging
// externally traced journey gaps into an already persisted audit run.
func (o *Ops) AppendGaps(gaps []*model.AuditGap) error {
	return o.WithTx(func(tx *sql.Tx) error {
		for _, g := range gaps {
			if err := storeGap(tx, g); err != nil {
				return err
			}
		}
		return o.logEvent(tx, model.ActionAuditRun, "audit", "",
			fmt.Sprintf("journey inserted=%d", len(gaps)))
	})
}

// MaxGapNumber returns the highest numeric suffix among all stored gap ids,
// regardless of status, so a new audit run never reuses an id held by an
// accepted or dismissed gap.
func (o *Ops) MaxGapNumber() (int, error) {
	rows, err := o.store.db.Query("SELECT id FROM audit_gaps")
	if err != nil {
		return 0, fmt.Errorf("failed to scan gap ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	max := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		if n := model.GapNumber(id); n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("gap id rows error: %w", err)
	}
	return max, nil
}

func scanGap(row interface{ Scan(...any) error }) (*model.AuditGap, error) {
	var g model.AuditGap
	var evidence string
	err := row.Scan(&g.ID, &g.Category, &g.Severity, &g.Layer, &g.Title,
		&g.Description, &g.Trigger, &evidence, &g.Recommendation, &g.Status,
		&g.ResolvedBy, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if g.Evidence, err = decodeStrings("audit_gaps", g.ID, "evidence", evidence); err != nil {
		return nil, err
	}
	return &g, nil
}

const gapColumns = `id, category, severity, layer, title, description, source,
	evidence, recommendation, status, resolved_by, created_at`

// GetGap returns one gap by id, or nil when absent.
func (o *Ops) GetGap(id string) (*model.AuditGap, error) {
	row := o.store.db.QueryRow("SELECT "+gapColumns+" FROM audit_gaps WHERE id = ?", id)
	g, err := scanGap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		var corrupt *model.CorruptionError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get gap %s: %w", id, err)
	}
	return g, nil
}

// ListGapsByStatus returns all gaps with the given status, ordered by id.
func (o *Ops) ListGapsByStatus(status string) ([]*model.AuditGap, error) {
	rows, err := o.store.db.Query(
		"SELECT "+gapColumns+" FROM audit_gaps WHERE status = ? ORDER BY id", status)
	if err != nil {
		return nil, fmt.Errorf("failed to list gaps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var gaps []*model.AuditGap
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, err
		}
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gap rows error: %w", err)
	}
	return gaps, nil
}

// CountGaps returns the number of gaps in the given status.
func (o *Ops) CountGaps(status string) (int, error) {
	var count int
	err := o.store.db.QueryRow("SELECT COUNT(*) FROM audit_gaps WHERE status = ?", status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count gaps: %w", err)
	}
	return count, nil
}

// AcceptGap materializes an implementing task from the gap and flips the gap
// to accepted, in one transaction.
func (o *Ops) AcceptGap(gapID string, task *model.Task) error {
	return o.WithTx(func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRow("SELECT status FROM audit_gaps WHERE id = ?", gapID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("gap %s not found", gapID)
		}
		if err != nil {
			return fmt.Errorf("failed to get gap %s: %w", gapID, err)
		}
		if status != model.GapStatusOpen && status != model.GapStatusDeferred {
			return model.NewGuardError("accept gap",
				fmt.Sprintf("gap %s is %s, not open", gapID, status))
		}

		if err := storeTask(tx, task); err != nil {
			return err
		}

		_, err = tx.Exec("UPDATE audit_gaps SET status = ?, resolved_by = ? WHERE id = ?",
			model.GapStatusAccepted, task.ID, gapID)
		if err != nil {
			return fmt.Errorf("failed to accept gap %s: %w", gapID, err)
		}

		return o.logEvent(tx, model.ActionGapAccepted, "gap", gapID, "task="+task.ID)
	})
}

// DismissGap flips a gap to dismissed.
func (o *Ops) DismissGap(gapID, reason string) error {
	return o.WithTx(func(tx *sql.Tx) error {
		res, err := tx.Exec("UPDATE audit_gaps SET status = ? WHERE id = ?", model.GapStatusDismissed, gapID)
		if err != nil {
			return fmt.Errorf("failed to dismiss gap %s: %w", gapID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("gap %s not found", gapID)
		}
		return o.logEvent(tx, model.ActionGapDismissed, "gap", gapID, reason)
	})
}
