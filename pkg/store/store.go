package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/model"
)

// Store is an explicit handle to one open pipeline database. There is no
// process-wide singleton: every operation goes through a handle the caller
// owns and closes.
type Store struct {
	db      *sql.DB
	logger  *logx.Logger
	metrics *metrics.Metrics
	path    string
}

// Open opens (or creates) the store at path and brings its schema to the
// current version. A store recorded at a newer schema version than this
// build supports is refused with a SchemaVersionError.
func Open(path string) (*Store, error) {
	// WAL mode plus a bounded busy wait so short-lived writers invoked
	// back-to-back contend briefly instead of failing immediately.
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("store")
	logger.Debug("store opened: %s", path)

	return &Store{db: db, path: path, logger: logger}, nil
}

// SetMetrics attaches a metrics sink; nil disables instrumentation.
func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// DB exposes the underlying connection for read-only callers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// CheckpointDir returns the directory checkpoint copies are written to.
func (s *Store) CheckpointDir() string {
	return filepath.Join(filepath.Dir(s.path), "checkpoints")
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Ops returns an operations handle acting as the given actor. Every mutation
// performed through it logs an event attributed to that actor.
func (s *Store) Ops(actor string) *Ops {
	return &Ops{store: s, actor: actor, logger: s.logger}
}

// Init writes the pipeline singleton, seeds the given phases, and records
// the first event, all in one transaction. It fails if the store was already
// initialized.
func (s *Store) Init(name, template string, phases []model.Phase) error {
	ops := s.Ops("system")
	return ops.WithTx(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM pipeline").Scan(&count); err != nil {
			return fmt.Errorf("failed to check pipeline: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("store already initialized")
		}

		now := time.Now().UTC()
		_, err := tx.Exec(`
			INSERT INTO pipeline (id, name, summary, current_phase, template, created_at, updated_at)
			VALUES (1, ?, '', NULL, ?, ?, ?)
		`, name, template, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert pipeline: %w", err)
		}

		for i := range phases {
			if err := storePhase(tx, &phases[i]); err != nil {
				return err
			}
		}

		return appendEvent(tx, model.NewEvent("system", model.ActionInit, "pipeline", name,
			fmt.Sprintf("template=%s phases=%d", template, len(phases))))
	})
}
