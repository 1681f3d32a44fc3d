package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.StorePath = "state/pipeline.db"
	cfg.MaxGenerationRetries = 5
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFillsDefaultsForAbsentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"store_path": "custom.db"}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.StorePath)
	assert.Equal(t, 3, cfg.MaxGenerationRetries)
	assert.Equal(t, "greenfield", cfg.PhaseTemplate)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"store_path": ""}`), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ReviewCycleCeiling = 0
	assert.Error(t, cfg.Validate())
}

func TestResolveStorePath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/proj", "pipeline.db"), cfg.ResolveStorePath("/proj"))

	cfg.StorePath = "/abs/state.db"
	assert.Equal(t, "/abs/state.db", cfg.ResolveStorePath("/proj"))
}
