package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required for translation runs)
// - LLM_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - LLM_MODEL: Model name to use (default: gpt-4.1)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 2000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.2)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Translation Configuration:
// - TARGET_LANGUAGE: BCP 47 tag of the target language (default: af)
// - SOURCE_LANGUAGE: BCP 47 tag of the source language (default: en)
// - CHECKPOINT_INTERVAL: rows between progress backups (default: 5)
// - NAMED_RANGES_PATH: optional glossary document for formula prompts
// - CRON_EXPR: schedule for watch mode (default: "0 0 * * *")
//
// Rate Limit Configuration:
// - RATE_RECORD_DELAY_MS: pause between records (default: 100)
// - RATE_BATCH_DELAY_MS: extra pause after each batch (default: 500)
// - RATE_BATCH_SIZE: records per batch (default: 25)
// - RATE_LIMIT_DISABLED: disable pacing entirely, for debugging (default: false)
//
// Retry Configuration:
// - RETRY_MAX_ATTEMPTS: attempts per external call (default: 3)
// - RETRY_BACKOFF_MS: initial backoff, doubled per attempt (default: 1000)
//
// Storage Configuration:
// - BACKUP_DIR: checkpoint directory (default: Backup_OutputResults)
// - DATA_DIR: directory for the SQLite run ledger (default: data)
// - INPUT_DIR: directory scanned in watch mode (default: SheetFlatFiles)
// - PROMPT_CONFIG_DIR: directory for editable prompt configurations (default: prompt_configs)
// - LOG_LEVEL: debug/info/warn/error (default: info)

type Config struct {
	LLM LLMConfig `json:"llm"`

	Translate TranslateConfig `json:"translate"`

	RateLimit RateLimitConfig `json:"rate_limit"`

	Retry RetryConfig `json:"retry"`

	Storage StorageConfig `json:"storage"`
}

// LLMConfig holds the configuration for the LLM client
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// TranslateConfig holds the translation run configuration
type TranslateConfig struct {
	TargetLanguage     language.Tag `json:"target_language"`
	SourceLanguage     language.Tag `json:"source_language"`
	CheckpointInterval int          `json:"checkpoint_interval"`
	NamedRangesPath    string       `json:"named_ranges_path"`
	CronExpr           string       `json:"cron_expr"`
}

// RateLimitConfig holds the pacing configuration for outbound calls
type RateLimitConfig struct {
	RecordDelayMs int  `json:"record_delay_ms"`
	BatchDelayMs  int  `json:"batch_delay_ms"`
	BatchSize     int  `json:"batch_size"`
	Disabled      bool `json:"disabled"`
}

// RetryConfig holds the retry policy for external translation calls
type RetryConfig struct {
	MaxAttempts int `json:"max_attempts"`
	BackoffMs   int `json:"backoff_ms"`
}

// StorageConfig holds filesystem and database locations
type StorageConfig struct {
	BackupDir       string `json:"backup_dir"`
	DataDir         string `json:"data_dir"`
	InputDir        string `json:"input_dir"`
	PromptConfigDir string `json:"prompt_config_dir"`
	LogLevel        string `json:"log_level"`
}

// DBPath returns the location of the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "translator.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://api.openai.com/v1"),
			Model:       getEnvString("LLM_MODEL", "gpt-4.1"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Translate: TranslateConfig{
			TargetLanguage:     getEnvLanguage("TARGET_LANGUAGE", language.Afrikaans),
			SourceLanguage:     getEnvLanguage("SOURCE_LANGUAGE", language.English),
			CheckpointInterval: getEnvInt("CHECKPOINT_INTERVAL", 5),
			NamedRangesPath:    getEnvString("NAMED_RANGES_PATH", ""),
			CronExpr:           getEnvString("CRON_EXPR", "0 0 * * *"),
		},
		RateLimit: RateLimitConfig{
			RecordDelayMs: getEnvInt("RATE_RECORD_DELAY_MS", 100),
			BatchDelayMs:  getEnvInt("RATE_BATCH_DELAY_MS", 500),
			BatchSize:     getEnvInt("RATE_BATCH_SIZE", 25),
			Disabled:      getEnvBool("RATE_LIMIT_DISABLED", false),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BackoffMs:   getEnvInt("RETRY_BACKOFF_MS", 1000),
		},
		Storage: StorageConfig{
			BackupDir:       getEnvString("BACKUP_DIR", "Backup_OutputResults"),
			DataDir:         getEnvString("DATA_DIR", "data"),
			InputDir:        getEnvString("INPUT_DIR", "SheetFlatFiles"),
			PromptConfigDir: getEnvString("PROMPT_CONFIG_DIR", "prompt_configs"),
			LogLevel:        getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// WithTargetLanguage overrides the target language.
func WithTargetLanguage(tag language.Tag) Option {
	return func(c *Config) {
		c.Translate.TargetLanguage = tag
	}
}

// WithCheckpointInterval overrides the checkpoint interval.
func WithCheckpointInterval(interval int) Option {
	return func(c *Config) {
		if interval > 0 {
			c.Translate.CheckpointInterval = interval
		}
	}
}

// WithRateLimitDisabled switches the rate limiter into its no-op mode.
func WithRateLimitDisabled(disabled bool) Option {
	return func(c *Config) {
		c.RateLimit.Disabled = disabled
	}
}

// validate checks if all required configuration is properly set. The LLM
// credential is deliberately not checked here: inspection commands load
// the configuration without ever talking to the backend, so the API key
// is validated where the client is built.
func (c *Config) validate() error {
	if c.Translate.CheckpointInterval < 1 {
		return fmt.Errorf("CHECKPOINT_INTERVAL must be positive")
	}
	if c.Translate.TargetLanguage == c.Translate.SourceLanguage {
		return fmt.Errorf("target language must differ from source language")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvLanguage parses a BCP 47 tag from environment variables with default
func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return defaultValue
}
