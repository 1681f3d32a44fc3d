package store

import (
	"database/sql"
	"errors"
	"fmt"

	"conductor/pkg/model"
)

// StoreDeferredFinding writes one deferred finding atomically.
func (o *Ops) StoreDeferredFinding(f *model.DeferredFinding) error {
	if err := f.Validate(); err != nil {
		return err
	}

	return o.WithTx(func(tx *sql.Tx) error {
		likelyFiles, err := encodeStrings(f.LikelyFiles)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO deferred_findings (id, origin_task, category, affected_area, likely_files, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				origin_task = excluded.origin_task,
				category = excluded.category,
				affected_area = excluded.affected_area,
				likely_files = excluded.likely_files,
				status = excluded.status
		`, f.ID, f.OriginTask, f.Category, f.AffectedArea, likelyFiles, f.Status, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to store finding %s: %w", f.ID, err)
		}
		return o.logEvent(tx, model.ActionFindingStored, "finding", f.ID, f.Category)
	})
}

func scanFinding(row interface{ Scan(...any) error }) (*model.DeferredFinding, error) {
	var f model.DeferredFinding
	var likelyFiles string
	err := row.Scan(&f.ID, &f.OriginTask, &f.Category, &f.AffectedArea, &likelyFiles, &f.Status, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	if f.LikelyFiles, err = decodeStrings("deferred_findings", f.ID, "likely_files", likelyFiles); err != nil {
		return nil, err
	}
	return &f, nil
}

// GetDeferredFinding returns one finding by id, or nil when absent.
func (o *Ops) GetDeferredFinding(id string) (*model.DeferredFinding, error) {
	row := o.store.db.QueryRow(`
		SELECT id, origin_task, category, affected_area, likely_files, status, created_at
		FROM deferred_findings WHERE id = ?
	`, id)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		var corrupt *model.CorruptionError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get finding %s: %w", id, err)
	}
	return f, nil
}

// ListDeferredFindings returns all findings with the given status.
func (o *Ops) ListDeferredFindings(status string) ([]*model.DeferredFinding, error) {
	rows, err := o.store.db.Query(`
		SELECT id, origin_task, category, affected_area, likely_files, status, created_at
		FROM deferred_findings WHERE status = ? ORDER BY id
	`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var findings []*model.DeferredFinding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding rows error: %w", err)
	}
	return findings, nil
}

// PromoteDeferredFinding materializes a task from an open finding and flips
// the finding to promoted, in one transaction. The task id must belong to
// the deferred-finding series (TD<NN>).
func (o *Ops) PromoteDeferredFinding(findingID string, task *model.Task) error {
	if !model.IsAuxiliaryTaskID(task.ID) {
		return model.ValidationErrors{{Field: "id", Msg: fmt.Sprintf("%q is not an auxiliary task id", task.ID)}}
	}

	return o.WithTx(func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRow("SELECT status FROM deferred_findings WHERE id = ?", findingID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("finding %s not found", findingID)
		}
		if err != nil {
			return fmt.Errorf("failed to get finding %s: %w", findingID, err)
		}
		if status != model.FindingStatusOpen {
			return model.NewGuardError("promote finding",
				fmt.Sprintf("finding %s is %s, not open", findingID, status))
		}

		if err := storeTask(tx, task); err != nil {
			return err
		}

		_, err = tx.Exec("UPDATE deferred_findings SET status = ? WHERE id = ?",
			model.FindingStatusPromoted, findingID)
		if err != nil {
			return fmt.Errorf("failed to promote finding %s: %w", findingID, err)
		}

		return o.logEvent(tx, model.ActionFindingPromote, "finding", findingID, "task="+task.ID)
	})
}
