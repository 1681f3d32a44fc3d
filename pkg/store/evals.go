package store

import (
	"database/sql"
	"errors"
	"fmt"

	"conductor/pkg/model"
)

// StoreTaskEval writes one task's delivery metrics atomically.
func (o *Ops) StoreTaskEval(e *model.TaskEval) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return o.WithTx(func(tx *sql.Tx) error {
		return o.storeTaskEval(tx, e)
	})
}

// storeTaskEval upserts one eval row inside tx. Never commits.
func (o *Ops) storeTaskEval(tx *sql.Tx, e *model.TaskEval) error {
	tr := e.TestResults
	_, err := tx.Exec(`
		INSERT INTO task_evals (
			task_id, tests_total, tests_passed, tests_failed, tests_skipped,
			review_cycles, scope_violations, files_planned, files_touched, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			tests_total = excluded.tests_total,
			tests_passed = excluded.tests_passed,
			tests_failed = excluded.tests_failed,
			tests_skipped = excluded.tests_skipped,
			review_cycles = excluded.review_cycles,
			scope_violations = excluded.scope_violations,
			files_planned = excluded.files_planned,
			files_touched = excluded.files_touched
	`, e.TaskID, tr.Total, tr.Passed, tr.Failed, tr.Skipped,
		e.ReviewCycles, e.ScopeViolations, e.FilesPlanned, e.FilesTouched, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store eval for %s: %w", e.TaskID, err)
	}
	return o.logEvent(tx, model.ActionEvalStored, "task", e.TaskID, "")
}

// GetTaskEval returns one task's metrics, or nil when absent.
func (o *Ops) GetTaskEval(taskID string) (*model.TaskEval, error) {
	var e model.TaskEval
	err := o.store.db.QueryRow(`
		SELECT task_id, tests_total, tests_passed, tests_failed, tests_skipped,
			review_cycles, scope_violations, files_planned, files_touched, created_at
		FROM task_evals WHERE task_id = ?
	`, taskID).Scan(&e.TaskID, &e.TestResults.Total, &e.TestResults.Passed,
		&e.TestResults.Failed, &e.TestResults.Skipped, &e.ReviewCycles,
		&e.ScopeViolations, &e.FilesPlanned, &e.FilesTouched, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get eval for %s: %w", taskID, err)
	}
	return &e, nil
}

// RecordOutcome stores a task's eval and, only when the verifier reported
// failures, a reflexion entry distilled from them, in one transaction.
// Clean runs leave no learning record.
func (o *Ops) RecordOutcome(e *model.TaskEval, lesson string) error {
	if err := e.Validate(); err != nil {
		return err
	}

	var r *model.ReflexionEntry
	if e.TestResults.Failed > 0 && lesson != "" {
		r = &model.ReflexionEntry{
			CreatedAt: e.CreatedAt,
			TaskID:    e.TaskID,
			Category:  "verify",
			Lesson:    lesson,
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}

	return o.WithTx(func(tx *sql.Tx) error {
		if err := o.storeTaskEval(tx, e); err != nil {
			return err
		}
		if r == nil {
			return nil
		}
		return o.storeReflexion(tx, r)
	})
}

// StoreReflexion persists a learning entry atomically.
func (o *Ops) StoreReflexion(r *model.ReflexionEntry) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return o.WithTx(func(tx *sql.Tx) error {
		return o.storeReflexion(tx, r)
	})
}

// storeReflexion inserts one learning entry inside tx. Never commits.
func (o *Ops) storeReflexion(tx *sql.Tx, r *model.ReflexionEntry) error {
	_, err := tx.Exec(`
		INSERT INTO reflexion_entries (task_id, category, lesson, created_at)
		VALUES (?, ?, ?, ?)
	`, r.TaskID, r.Category, r.Lesson, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store reflexion for %s: %w", r.TaskID, err)
	}
	return o.logEvent(tx, model.ActionEvalStored, "reflexion", r.TaskID, r.Category)
}

// ListReflexions returns all learning entries for one task, oldest first.
func (o *Ops) ListReflexions(taskID string) ([]*model.ReflexionEntry, error) {
	rows, err := o.store.db.Query(`
		SELECT task_id, category, lesson, created_at
		FROM reflexion_entries WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reflexions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*model.ReflexionEntry
	for rows.Next() {
		var r model.ReflexionEntry
		if err := rows.Scan(&r.TaskID, &r.Category, &r.Lesson, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reflexion: %w", err)
		}
		entries = append(entries, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reflexion rows error: %w", err)
	}
	return entries, nil
}
