// Package config loads and persists the pipeline's operator-facing settings.
// Settings are configuration, not state: anything that changes as the
// pipeline runs belongs in the store, never here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"conductor/pkg/logx"
)

// DefaultFileName is the config file name inside the project directory.
const DefaultFileName = "conductor.json"

// Config holds the settings a caller may tune. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// StorePath is the sqlite file, relative paths resolved against the
	// project directory.
	StorePath string `json:"store_path"`
	// CheckpointDir overrides the default checkpoints directory next to
	// the store file. Empty means the default.
	CheckpointDir string `json:"checkpoint_dir,omitempty"`
	// MaxGenerationRetries bounds the generate-validate-retry loop;
	// synth.Pipeline.Configure applies it.
	MaxGenerationRetries int `json:"max_generation_retries"`
	// ReviewCycleCeiling is the fix-cycle count past which escalation is
	// signaled; review.ExceedsConfiguredCycleLimit applies it.
	ReviewCycleCeiling int `json:"review_cycle_ceiling"`
	// PhaseTemplate selects the phase template for new pipelines.
	PhaseTemplate string `json:"phase_template"`
}

// DefaultConfig returns the settings a fresh project starts with.
func DefaultConfig() *Config {
	return &Config{
		StorePath:            "pipeline.db",
		MaxGenerationRetries: 3,
		ReviewCycleCeiling:   3,
		PhaseTemplate:        "greenfield",
	}
}

// Validate rejects settings that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}
	if c.MaxGenerationRetries < 0 {
		return fmt.Errorf("max_generation_retries must not be negative")
	}
	if c.ReviewCycleCeiling < 1 {
		return fmt.Errorf("review_cycle_ceiling must be at least 1")
	}
	if c.PhaseTemplate == "" {
		return fmt.Errorf("phase_template must not be empty")
	}
	return nil
}

// Load reads the config file from the project directory, filling defaults
// for absent fields. A missing file yields the defaults.
func Load(projectDir string) (*Config, error) {
	logger := logx.NewLogger("config")
	path := filepath.Join(projectDir, DefaultFileName)

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config atomically: temp file in the same directory, then
// rename.
func Save(projectDir string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	path := filepath.Join(projectDir, DefaultFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// ResolveStorePath returns the absolute store path for a project.
func (c *Config) ResolveStorePath(projectDir string) string {
	if filepath.IsAbs(c.StorePath) {
		return c.StorePath
	}
	return filepath.Join(projectDir, c.StorePath)
}
