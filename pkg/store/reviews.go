package store

import (
	"database/sql"
	"fmt"

	"conductor/pkg/model"
)

// NextReviewCycle returns the next cycle number for a task. Cycle numbers
// increase monotonically per task and are never reused.
func (o *Ops) NextReviewCycle(taskID string) (int, error) {
	var max sql.NullInt64
	err := o.store.db.QueryRow("SELECT MAX(cycle) FROM review_results WHERE task_id = ?", taskID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query review cycles for %s: %w", taskID, err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// StoreReviewResult writes one reviewer's result atomically. A cycle earlier
// than the task's latest is rejected.
func (o *Ops) StoreReviewResult(r *model.ReviewResult) error {
	if err := r.Validate(); err != nil {
		return err
	}

	return o.WithTx(func(tx *sql.Tx) error {
		var max sql.NullInt64
		if err := tx.QueryRow("SELECT MAX(cycle) FROM review_results WHERE task_id = ?", r.TaskID).Scan(&max); err != nil {
			return fmt.Errorf("failed to query review cycles for %s: %w", r.TaskID, err)
		}
		if max.Valid && r.Cycle < int(max.Int64) {
			return model.NewGuardError("store review",
				fmt.Sprintf("cycle %d is older than latest cycle %d for task %s", r.Cycle, max.Int64, r.TaskID))
		}

		findings, err := encodeFindings(r.Findings)
		if err != nil {
			return err
		}
		compliance, err := encodeStringMap(r.DecisionCompliance)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO review_results (
				task_id, reviewer, cycle, verdict, findings,
				decision_compliance, criteria_met, criteria_total, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.TaskID, r.Reviewer, r.Cycle, r.Verdict, findings,
			compliance, r.CriteriaMet, r.CriteriaTotal, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to store review for %s by %s: %w", r.TaskID, r.Reviewer, err)
		}

		return o.logEvent(tx, model.ActionReviewStored, "task", r.TaskID,
			fmt.Sprintf("reviewer=%s cycle=%d verdict=%s", r.Reviewer, r.Cycle, r.Verdict))
	})
}

func (o *Ops) queryReviews(query string, args ...any) ([]*model.ReviewResult, error) {
	rows, err := o.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*model.ReviewResult
	for rows.Next() {
		var r model.ReviewResult
		var rowID int64
		var findings, compliance string
		if err := rows.Scan(&rowID, &r.TaskID, &r.Reviewer, &r.Cycle, &r.Verdict,
			&findings, &compliance, &r.CriteriaMet, &r.CriteriaTotal, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		id := fmt.Sprintf("%d", rowID)
		if r.Findings, err = decodeFindings("review_results", id, "findings", findings); err != nil {
			return nil, err
		}
		if r.DecisionCompliance, err = decodeStringMap("review_results", id, "decision_compliance", compliance); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review rows error: %w", err)
	}
	return results, nil
}

const reviewColumns = `id, task_id, reviewer, cycle, verdict, findings,
	decision_compliance, criteria_met, criteria_total, created_at`

// ListReviews returns all results for one (task, cycle), insertion order.
func (o *Ops) ListReviews(taskID string, cycle int) ([]*model.ReviewResult, error) {
	return o.queryReviews(
		"SELECT "+reviewColumns+" FROM review_results WHERE task_id = ? AND cycle = ? ORDER BY id",
		taskID, cycle)
}

// ListReviewHistory returns every result for one task across all cycles.
func (o *Ops) ListReviewHistory(taskID string) ([]*model.ReviewResult, error) {
	return o.queryReviews(
		"SELECT "+reviewColumns+" FROM review_results WHERE task_id = ? ORDER BY cycle, id",
		taskID)
}
