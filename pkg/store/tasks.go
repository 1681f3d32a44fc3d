package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conductor/pkg/model"
)

// storeMilestone inserts or updates a milestone row. Never commits.
func storeMilestone(tx *sql.Tx, m *model.Milestone) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := tx.Exec(`
		INSERT INTO milestones (id, name, goal, order_index)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			goal = excluded.goal,
			order_index = excluded.order_index
	`, m.ID, m.Name, m.Goal, m.Order)
	if err != nil {
		return fmt.Errorf("failed to store milestone %s: %w", m.ID, err)
	}
	return nil
}

// StoreMilestone writes one milestone atomically.
func (o *Ops) StoreMilestone(m *model.Milestone) error {
	return o.WithTx(func(tx *sql.Tx) error {
		return storeMilestone(tx, m)
	})
}

// ListMilestones returns all milestones in order.
func (o *Ops) ListMilestones() ([]*model.Milestone, error) {
	rows, err := o.store.db.Query("SELECT id, name, goal, order_index FROM milestones ORDER BY order_index")
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var milestones []*model.Milestone
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(&m.ID, &m.Name, &m.Goal, &m.Order); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		milestones = append(milestones, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("milestone rows error: %w", err)
	}
	return milestones, nil
}

// storeTask inserts or updates a task row. Never commits; the
// decompose-and-replace operation composes several of these into one
// transaction.
func storeTask(tx *sql.Tx, t *model.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	dependsOn, err := encodeStrings(t.DependsOn)
	if err != nil {
		return err
	}
	decisionRefs, err := encodeStrings(t.DecisionRefs)
	if err != nil {
		return err
	}
	filesCreate, err := encodeStrings(t.FilesToCreate)
	if err != nil {
		return err
	}
	filesModify, err := encodeStrings(t.FilesToModify)
	if err != nil {
		return err
	}
	criteria, err := encodeStrings(t.AcceptanceCriteria)
	if err != nil {
		return err
	}

	status := t.Status
	if status == "" {
		status = model.TaskStatusPending
	}
	now := time.Now().UTC()
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (
			id, title, milestone, status, goal, depends_on, decision_refs,
			files_to_create, files_to_modify, acceptance_criteria,
			verify_command, parent_task, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			milestone = excluded.milestone,
			status = excluded.status,
			goal = excluded.goal,
			depends_on = excluded.depends_on,
			decision_refs = excluded.decision_refs,
			files_to_create = excluded.files_to_create,
			files_to_modify = excluded.files_to_modify,
			acceptance_criteria = excluded.acceptance_criteria,
			verify_command = excluded.verify_command,
			parent_task = excluded.parent_task,
			updated_at = excluded.updated_at
	`, t.ID, t.Title, t.Milestone, status, t.Goal, dependsOn, decisionRefs,
		filesCreate, filesModify, criteria, t.VerifyCommand, t.ParentTask, createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to store task %s: %w", t.ID, err)
	}
	return nil
}

// StoreTask writes one task atomically.
func (o *Ops) StoreTask(t *model.Task) error {
	return o.WithTx(func(tx *sql.Tx) error {
		if err := storeTask(tx, t); err != nil {
			return err
		}
		return o.logEvent(tx, model.ActionTaskStored, "task", t.ID, t.Title)
	})
}

// StoreTaskBatch writes milestones and tasks in one transaction.
func (o *Ops) StoreTaskBatch(milestones []*model.Milestone, tasks []*model.Task) error {
	return o.WithTx(func(tx *sql.Tx) error {
		for _, m := range milestones {
			if err := storeMilestone(tx, m); err != nil {
				return err
			}
		}
		for _, t := range tasks {
			if err := storeTask(tx, t); err != nil {
				return err
			}
		}
		return o.logEvent(tx, model.ActionTaskStored, "task_batch", "",
			fmt.Sprintf("milestones=%d tasks=%d", len(milestones), len(tasks)))
	})
}

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var dependsOn, decisionRefs, filesCreate, filesModify, criteria string
	err := row.Scan(&t.ID, &t.Title, &t.Milestone, &t.Status, &t.Goal,
		&dependsOn, &decisionRefs, &filesCreate, &filesModify, &criteria,
		&t.VerifyCommand, &t.ParentTask, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if t.DependsOn, err = decodeStrings("tasks", t.ID, "depends_on", dependsOn); err != nil {
		return nil, err
	}
	if t.DecisionRefs, err = decodeStrings("tasks", t.ID, "decision_refs", decisionRefs); err != nil {
		return nil, err
	}
	if t.FilesToCreate, err = decodeStrings("tasks", t.ID, "files_to_create", filesCreate); err != nil {
		return nil, err
	}
	if t.FilesToModify, err = decodeStrings("tasks", t.ID, "files_to_modify", filesModify); err != nil {
		return nil, err
	}
	if t.AcceptanceCriteria, err = decodeStrings("tasks", t.ID, "acceptance_criteria", criteria); err != nil {
		return nil, err
	}
	return &t, nil
}

const taskColumns = `id, title, milestone, status, goal, depends_on, decision_refs,
	files_to_create, files_to_modify, acceptance_criteria, verify_command,
	parent_task, created_at, updated_at`

// GetTask returns one task by id, or nil when absent.
func (o *Ops) GetTask(id string) (*model.Task, error) {
	row := o.store.db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		var corrupt *model.CorruptionError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns all tasks ordered by id.
func (o *Ops) ListTasks() ([]*model.Task, error) {
	rows, err := o.store.db.Query("SELECT " + taskColumns + " FROM tasks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task rows error: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus updates one task's status atomically.
func (o *Ops) UpdateTaskStatus(id, status string) error {
	if !model.IsValidTaskStatus(status) {
		return model.ValidationErrors{{Field: "status", Msg: fmt.Sprintf("invalid status %q", status)}}
	}
	return o.WithTx(func(tx *sql.Tx) error {
		res, err := tx.Exec("UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
			status, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s not found", id)
		}
		return o.logEvent(tx, model.ActionTaskStored, "task", id, "status="+status)
	})
}

// deleteTask removes a task row. Never commits.
func deleteTask(tx *sql.Tx, id string) error {
	res, err := tx.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

// rewriteDependency replaces every depends_on entry naming oldID with newID
// across all tasks. Never commits.
func rewriteDependency(tx *sql.Tx, oldID, newID string) error {
	rows, err := tx.Query("SELECT id, depends_on FROM tasks")
	if err != nil {
		return fmt.Errorf("failed to scan dependencies: %w", err)
	}

	type update struct {
		id        string
		dependsOn []string
	}
	var updates []update

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan task row: %w", err)
		}
		deps, err := decodeStrings("tasks", id, "depends_on", raw)
		if err != nil {
			_ = rows.Close()
			return err
		}
		changed := false
		for i, dep := range deps {
			if dep == oldID {
				deps[i] = newID
				changed = true
			}
		}
		if changed {
			updates = append(updates, update{id: id, dependsOn: deps})
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("dependency rows error: %w", err)
	}
	_ = rows.Close()

	for _, u := range updates {
		encoded, err := encodeStrings(u.dependsOn)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE tasks SET depends_on = ?, updated_at = ? WHERE id = ?",
			encoded, time.Now().UTC(), u.id); err != nil {
			return fmt.Errorf("failed to rewrite dependencies of %s: %w", u.id, err)
		}
	}
	return nil
}

// ReplaceTaskWithSubtasks deletes the parent task, rewrites every other
// task's depends_on entries that named the parent to name finalSubtaskID,
// and inserts all subtasks, in one transaction.
func (o *Ops) ReplaceTaskWithSubtasks(parentID string, subtasks []*model.Task, finalSubtaskID string) error {
	return o.WithTx(func(tx *sql.Tx) error {
		if err := deleteTask(tx, parentID); err != nil {
			return err
		}
		if err := rewriteDependency(tx, parentID, finalSubtaskID); err != nil {
			return err
		}
		for _, st := range subtasks {
			if err := storeTask(tx, st); err != nil {
				return err
			}
		}
		return o.logEvent(tx, model.ActionTaskDecomposed, "task", parentID,
			fmt.Sprintf("subtasks=%d", len(subtasks)))
	})
}
