package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/draftworx/statement-translator/internal/checkpoint"
	"github.com/draftworx/statement-translator/internal/record"
)

func TestCreateRootCommand(t *testing.T) {
	t.Cleanup(viper.Reset)

	flags := &Flags{}
	cmd := CreateRootCommand(flags)

	assert.Equal(t, "statement-translator [input.csv]", cmd.Use)

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "backups")
	assert.Contains(t, names, "runs")
	assert.Contains(t, names, "watch")
	assert.Contains(t, names, "prompts")

	require.NotNil(t, cmd.PersistentFlags().Lookup("target"))
	require.NotNil(t, cmd.Flags().Lookup("resume"))
	require.NotNil(t, cmd.Flags().Lookup("interval"))
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("LLM_API_KEY", "test-key")

	flags := &Flags{}
	cmd := CreateRootCommand(flags)
	require.NoError(t, cmd.ParseFlags([]string{
		"-t", "nl", "--interval", "7", "--backup-dir", "custom_backups",
	}))

	cfg, err := loadConfig(flags)
	require.NoError(t, err)

	assert.Equal(t, language.Dutch, cfg.Translate.TargetLanguage)
	assert.Equal(t, 7, cfg.Translate.CheckpointInterval)
	assert.Equal(t, "custom_backups", cfg.Storage.BackupDir)
}

func TestLoadConfigZeroIntervalKeepsDefault(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("LLM_API_KEY", "test-key")

	flags := &Flags{}
	CreateRootCommand(flags)

	cfg, err := loadConfig(flags)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Translate.CheckpointInterval)
}

func TestLoadConfigWithoutAPIKey(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("LLM_API_KEY", "")

	flags := &Flags{}
	CreateRootCommand(flags)

	// Inspection commands must load configuration without the credential;
	// only translation runs need it.
	_, err := loadConfig(flags)
	require.NoError(t, err)
}

func TestBackupsCommandShowsProgress(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("LLM_API_KEY", "")

	dir := t.TempDir()
	mgr, err := checkpoint.NewManager(dir)
	require.NoError(t, err)

	store, err := record.Load(strings.NewReader(
		"CellValue_English,CellFormula_English\nRevenue,=SUM(B2:B10)\nCost of sales,\n"),
		language.English, language.Afrikaans)
	require.NoError(t, err)

	h, err := mgr.Save(store, checkpoint.RunMetadata{
		RunID:              "run-1",
		TargetLanguage:     "Afrikaans",
		RecordsTotal:       40,
		RecordsProcessed:   25,
		ValuesTranslated:   22,
		FormulasTranslated: 9,
		RowsFailed:         3,
	}, checkpoint.Progress)
	require.NoError(t, err)

	flags := &Flags{}
	cmd := CreateRootCommand(flags)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"backups", "--backup-dir", dir})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "25/40 records (62%)")
	assert.Contains(t, out.String(), "22 values, 9 formulas, 3 failed")
	assert.Contains(t, out.String(), "(newest)")
	assert.Contains(t, out.String(), "--resume "+h.Path)
}

func TestLoadConfigRejectsBadLanguage(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("LLM_API_KEY", "test-key")

	flags := &Flags{}
	cmd := CreateRootCommand(flags)
	require.NoError(t, cmd.ParseFlags([]string{"-t", "!bad!"}))

	_, err := loadConfig(flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid target language")
}
