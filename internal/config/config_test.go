package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, language.Afrikaans, cfg.Translate.TargetLanguage)
	assert.Equal(t, language.English, cfg.Translate.SourceLanguage)
	assert.Equal(t, 5, cfg.Translate.CheckpointInterval)
	assert.Equal(t, 100, cfg.RateLimit.RecordDelayMs)
	assert.Equal(t, 500, cfg.RateLimit.BatchDelayMs)
	assert.Equal(t, 25, cfg.RateLimit.BatchSize)
	assert.False(t, cfg.RateLimit.Disabled)
	assert.Equal(t, "Backup_OutputResults", cfg.Storage.BackupDir)
	assert.Equal(t, "prompt_configs", cfg.Storage.PromptConfigDir)
	assert.Equal(t, filepath.Join("data", "translator.db"), cfg.DBPath())
}

func TestNewFromEnv_MissingAPIKeyAllowed(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	// Inspection commands load configuration without an LLM credential;
	// the key is validated when a client is actually built.
	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestNewFromEnv_TargetLanguageFromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("TARGET_LANGUAGE", "nl")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, language.Dutch, cfg.Translate.TargetLanguage)
}

func TestNewFromEnv_InvalidLanguageFallsBack(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("TARGET_LANGUAGE", "not-a-language-tag!!")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, language.Afrikaans, cfg.Translate.TargetLanguage)
}

func TestNewFromEnv_SameSourceAndTargetRejected(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("TARGET_LANGUAGE", "en")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestNewFromEnv_Options(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := NewFromEnv(
		WithTargetLanguage(language.French),
		WithCheckpointInterval(10),
		WithRateLimitDisabled(true),
	)
	require.NoError(t, err)

	assert.Equal(t, language.French, cfg.Translate.TargetLanguage)
	assert.Equal(t, 10, cfg.Translate.CheckpointInterval)
	assert.True(t, cfg.RateLimit.Disabled)
}
