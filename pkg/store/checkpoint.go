package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"conductor/pkg/model"
)

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeLabel derives a filesystem-safe checkpoint filename stem from a
// label, replacing path-unsafe characters.
func SanitizeLabel(label string) string {
	sanitized := unsafeLabelChars.ReplaceAllString(label, "_")
	if sanitized == "" {
		sanitized = "checkpoint"
	}
	return sanitized
}

// CheckpointPath returns the file a given label would be stored at.
func (s *Store) CheckpointPath(label string) string {
	return filepath.Join(s.CheckpointDir(), SanitizeLabel(label)+".db")
}

// Checkpoint flushes the write-ahead buffer and byte-copies the store file
// to a labeled checkpoint. An existing checkpoint with the same label is
// overwritten.
func (s *Store) Checkpoint(label string) error {
	// Force WAL content into the main file so the copy is complete.
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}

	if err := os.MkdirAll(s.CheckpointDir(), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	target := s.CheckpointPath(label)
	if err := copyFile(s.path, target); err != nil {
		return fmt.Errorf("failed to copy store to checkpoint %s: %w", label, err)
	}

	s.logger.Info("checkpoint %s written: %s", label, target)
	s.metrics.IncCheckpoints()

	ops := s.Ops("system")
	return ops.WithTx(func(tx *sql.Tx) error {
		return appendEvent(tx, model.NewEvent("system", model.ActionCheckpoint, "checkpoint", label, target))
	})
}

// Rollback restores a labeled checkpoint over the live store file and
// deletes any residual write-ahead artifacts so no partial transaction can
// be replayed. The store's connection is reopened on the restored file.
func (s *Store) Rollback(label string) error {
	source := s.CheckpointPath(label)
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return model.NewGuardError("rollback", fmt.Sprintf("checkpoint %q not found at %s", label, source))
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store for rollback: %w", err)
	}

	if err := copyFile(source, s.path); err != nil {
		return fmt.Errorf("failed to restore checkpoint %s: %w", label, err)
	}

	// Stale WAL/SHM files would replay writes made after the checkpoint.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s file: %w", suffix, err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		s.path,
	))
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping restored database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.db = db

	s.logger.Warn("store rolled back to checkpoint %s", label)

	ops := s.Ops("system")
	return ops.WithTx(func(tx *sql.Tx) error {
		return appendEvent(tx, model.NewEvent("system", model.ActionRollback, "checkpoint", label, source))
	})
}

// ListCheckpoints returns the labels of existing checkpoints with their
// creation times, newest first.
func (s *Store) ListCheckpoints() ([]model.CheckpointInfo, error) {
	entries, err := os.ReadDir(s.CheckpointDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []model.CheckpointInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		checkpoints = append(checkpoints, model.CheckpointInfo{
			Label:     entry.Name()[:len(entry.Name())-3],
			Path:      filepath.Join(s.CheckpointDir(), entry.Name()),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})
	return checkpoints, nil
}

// LatestCheckpoint returns the most recently written checkpoint, or nil
// when none exist.
func (s *Store) LatestCheckpoint() (*model.CheckpointInfo, error) {
	checkpoints, err := s.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, nil
	}
	return &checkpoints[0], nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
