package promptcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerSeedsDefault(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "active_config.json"))
	require.NoError(t, err)

	active := m.LoadActive()
	assert.Equal(t, "Default IFRS Configuration", active.Name)
	assert.Contains(t, active.FormulaPrompt.CriticalRules, "DO NOT translate Excel functions")
}

func TestSaveAndLoadActive(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	cfg := Default()
	cfg.Name = "Tuned"
	cfg.ValuePrompt.Instructions = "- Keep terminology aligned with the client glossary."
	require.NoError(t, m.SaveActive(cfg))

	active := m.LoadActive()
	assert.Equal(t, "Tuned", active.Name)
	assert.Contains(t, active.ValuePrompt.Instructions, "client glossary")
	assert.NotEmpty(t, active.ModifiedAt)
}

func TestSaveActiveRejectsInvalid(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, m.SaveActive(Configuration{}))
}

func TestPresetLifecycle(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, m.SavePreset(cfg, "Dutch GAAP / strict"))

	presets, err := m.ListPresets()
	require.NoError(t, err)
	require.Len(t, presets, 1)
	assert.Equal(t, "Dutch GAAP  strict", presets[0], "unsafe characters are stripped from the file name")

	loaded, err := m.LoadPreset("Dutch GAAP / strict")
	require.NoError(t, err)
	assert.Equal(t, "Dutch GAAP / strict", loaded.Name, "display name keeps the original spelling")

	require.NoError(t, m.DeletePreset("Dutch GAAP / strict"))
	presets, err = m.ListPresets()
	require.NoError(t, err)
	assert.Empty(t, presets)

	assert.Error(t, m.DeletePreset("Dutch GAAP / strict"))
}

func TestLoadActiveFallsBackOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "active_config.json"), []byte("{not json"), 0o644))

	active := m.LoadActive()
	assert.Equal(t, "Default IFRS Configuration", active.Name)
}
