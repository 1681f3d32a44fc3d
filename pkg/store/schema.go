// Package store provides SQLite-backed persistence for the pipeline core:
// schema versioning and migration, transactional mutation helpers,
// checkpoint/rollback, and the append-only event log.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"conductor/pkg/model"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 3

// initializeSchemaWithMigrations ensures the database schema is at the
// current version. Opening a store with a newer recorded version than this
// build supports is fatal.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion > CurrentSchemaVersion {
		return &model.SchemaVersionError{Found: currentVersion, Supported: CurrentSchemaVersion}
	}

	// Empty database: create fresh schema at the current version.
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies migrations sequentially, updating the stored version
// after each successful step.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		return nil // version 1 is the base schema, created fresh
	case 2:
		return migrateToVersion2(db)
	case 3:
		return migrateToVersion3(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds the optional verification command to tasks.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE tasks ADD COLUMN verify_command TEXT NOT NULL DEFAULT ''",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	return nil
}

// migrateToVersion3 adds the reflexion and task-eval tables.
func migrateToVersion3(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reflexion_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			lesson TEXT NOT NULL,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE TABLE IF NOT EXISTS task_evals (
			task_id TEXT PRIMARY KEY,
			tests_total INTEGER NOT NULL DEFAULT 0,
			tests_passed INTEGER NOT NULL DEFAULT 0,
			tests_failed INTEGER NOT NULL DEFAULT 0,
			tests_skipped INTEGER NOT NULL DEFAULT 0,
			review_cycles INTEGER NOT NULL DEFAULT 0,
			scope_violations INTEGER NOT NULL DEFAULT 0,
			files_planned INTEGER NOT NULL DEFAULT 0,
			files_touched INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		"CREATE INDEX IF NOT EXISTS idx_reflexion_task ON reflexion_entries(task_id)",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	return nil
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Singleton pipeline row (id is always 1)
		`CREATE TABLE IF NOT EXISTS pipeline (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			name TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			current_phase TEXT,
			template TEXT NOT NULL,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// prereqs is a JSON list of phase ids that must be completed or
		// skipped before this phase may start.
		`CREATE TABLE IF NOT EXISTS phases (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','active','completed','skipped')),
			summary TEXT NOT NULL DEFAULT '',
			prereqs TEXT NOT NULL DEFAULT '[]',
			order_index INTEGER NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			prefix TEXT NOT NULL,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			rationale TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Archived prior versions of superseded decisions
		`CREATE TABLE IF NOT EXISTS decision_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id TEXT NOT NULL,
			replaced_at DATETIME NOT NULL,
			payload TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS constraints (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			phase TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS milestones (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			goal TEXT NOT NULL DEFAULT '',
			order_index INTEGER NOT NULL DEFAULT 0
		)`,

		// JSON-in-text columns (depends_on, decision_refs, file lists,
		// acceptance_criteria) are encoded/decoded at this layer only.
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			milestone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_progress','completed','blocked')),
			goal TEXT NOT NULL DEFAULT '',
			depends_on TEXT NOT NULL DEFAULT '[]',
			decision_refs TEXT NOT NULL DEFAULT '[]',
			files_to_create TEXT NOT NULL DEFAULT '[]',
			files_to_modify TEXT NOT NULL DEFAULT '[]',
			acceptance_criteria TEXT NOT NULL DEFAULT '[]',
			verify_command TEXT NOT NULL DEFAULT '',
			parent_task TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS review_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			reviewer TEXT NOT NULL,
			cycle INTEGER NOT NULL,
			verdict TEXT NOT NULL CHECK (verdict IN ('pass','concern','block')),
			findings TEXT NOT NULL DEFAULT '[]',
			decision_compliance TEXT NOT NULL DEFAULT '{}',
			criteria_met INTEGER NOT NULL DEFAULT 0,
			criteria_total INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE (task_id, reviewer, cycle)
		)`,

		`CREATE TABLE IF NOT EXISTS deferred_findings (
			id TEXT PRIMARY KEY,
			origin_task TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			affected_area TEXT NOT NULL DEFAULT '',
			likely_files TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open','promoted','deferred-post-v1','dismissed')),
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// The in-memory Trigger attribute is persisted as "source": a
		// free-text pointer to whatever produced the gap (rule name, task
		// id, or journey name).
		`CREATE TABLE IF NOT EXISTS audit_gaps (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			severity TEXT NOT NULL CHECK (severity IN ('critical','high','medium','low')),
			layer TEXT NOT NULL CHECK (layer IN ('implication','contract','journey')),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			evidence TEXT NOT NULL DEFAULT '[]',
			recommendation TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open','accepted','dismissed','deferred')),
			resolved_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Append-only event log; one row per mutating operation, written in
		// the same transaction as its primary effect.
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS reflexion_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			lesson TEXT NOT NULL,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS task_evals (
			task_id TEXT PRIMARY KEY,
			tests_total INTEGER NOT NULL DEFAULT 0,
			tests_passed INTEGER NOT NULL DEFAULT 0,
			tests_failed INTEGER NOT NULL DEFAULT 0,
			tests_skipped INTEGER NOT NULL DEFAULT 0,
			review_cycles INTEGER NOT NULL DEFAULT 0,
			scope_violations INTEGER NOT NULL DEFAULT 0,
			files_planned INTEGER NOT NULL DEFAULT 0,
			files_touched INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_phases_status ON phases(status)",
		"CREATE INDEX IF NOT EXISTS idx_decisions_prefix ON decisions(prefix)",
		"CREATE INDEX IF NOT EXISTS idx_decision_history_id ON decision_history(decision_id)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_milestone ON tasks(milestone)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task)",
		"CREATE INDEX IF NOT EXISTS idx_reviews_task ON review_results(task_id)",
		"CREATE INDEX IF NOT EXISTS idx_reviews_task_cycle ON review_results(task_id, cycle)",
		"CREATE INDEX IF NOT EXISTS idx_gaps_status ON audit_gaps(status)",
		"CREATE INDEX IF NOT EXISTS idx_gaps_layer ON audit_gaps(layer)",
		"CREATE INDEX IF NOT EXISTS idx_events_action ON events(action)",
		"CREATE INDEX IF NOT EXISTS idx_events_target ON events(target_type, target_id)",
		"CREATE INDEX IF NOT EXISTS idx_findings_status ON deferred_findings(status)",
		"CREATE INDEX IF NOT EXISTS idx_reflexion_task ON reflexion_entries(task_id)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	// First ensure the schema_version table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
