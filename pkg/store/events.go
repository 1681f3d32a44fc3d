package store

import (
	"fmt"

	"conductor/pkg/model"
)

func (o *Ops) queryEvents(query string, args ...any) ([]*model.Event, error) {
	rows, err := o.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Actor, &ev.Action,
			&ev.TargetType, &ev.TargetID, &ev.Detail, &ev.Phase); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event rows error: %w", err)
	}
	return events, nil
}

const eventColumns = "id, timestamp, actor, action, target_type, target_id, detail, phase"

// ListEventsByAction returns all events with the given action, oldest first.
func (o *Ops) ListEventsByAction(action string) ([]*model.Event, error) {
	return o.queryEvents(
		"SELECT "+eventColumns+" FROM events WHERE action = ? ORDER BY timestamp", action)
}

// ListEventsByTarget returns all events for one target, oldest first.
func (o *Ops) ListEventsByTarget(targetType, targetID string) ([]*model.Event, error) {
	return o.queryEvents(
		"SELECT "+eventColumns+" FROM events WHERE target_type = ? AND target_id = ? ORDER BY timestamp",
		targetType, targetID)
}

// HasEvent reports whether any event with the given action exists. The audit
// gate uses this instead of a boolean flag so the fact survives process
// restarts.
func (o *Ops) HasEvent(action string) (bool, error) {
	var count int
	err := o.store.db.QueryRow("SELECT COUNT(*) FROM events WHERE action = ?", action).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count events: %w", err)
	}
	return count > 0, nil
}
