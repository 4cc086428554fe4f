// Package promptcfg stores editable prompt configurations: the active
// configuration plus named presets, persisted as JSON so prompt tuning
// survives restarts without a rebuild.
package promptcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/draftworx/statement-translator/pkg/log"
)

// ValuePrompt configures the text-translation stage.
type ValuePrompt struct {
	Identity        string `json:"identity"`
	Instructions    string `json:"instructions"`
	Examples        string `json:"examples,omitempty"`
	CriticalRules   string `json:"critical_rules,omitempty"`
	AdditionalNotes string `json:"additional_notes,omitempty"`
}

// FormulaPrompt configures the formula-localization stage.
type FormulaPrompt struct {
	Identity        string `json:"identity"`
	CriticalRules   string `json:"critical_rules"`
	Examples        string `json:"examples"`
	Instructions    string `json:"instructions"`
	AdditionalNotes string `json:"additional_notes,omitempty"`
}

// Configuration is a complete prompt set with bookkeeping metadata.
type Configuration struct {
	ValuePrompt   ValuePrompt   `json:"translation_prompt"`
	FormulaPrompt FormulaPrompt `json:"formula_prompt"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     string        `json:"created_at,omitempty"`
	ModifiedAt    string        `json:"modified_at,omitempty"`
}

func (c Configuration) Validate() error {
	if strings.TrimSpace(c.ValuePrompt.Identity) == "" {
		return fmt.Errorf("translation prompt identity is required")
	}
	if strings.TrimSpace(c.ValuePrompt.Instructions) == "" {
		return fmt.Errorf("translation prompt instructions are required")
	}
	if strings.TrimSpace(c.FormulaPrompt.Identity) == "" {
		return fmt.Errorf("formula prompt identity is required")
	}
	if strings.TrimSpace(c.FormulaPrompt.Instructions) == "" {
		return fmt.Errorf("formula prompt instructions are required")
	}
	return nil
}

// Default returns the built-in IFRS configuration.
func Default() Configuration {
	now := time.Now().Format(time.RFC3339)
	return Configuration{
		Name:        "Default IFRS Configuration",
		Description: "Standard prompt configuration for IFRS financial statement translations",
		CreatedAt:   now,
		ModifiedAt:  now,
		ValuePrompt: ValuePrompt{
			Identity: "You are a professional translator specializing in IFRS-compliant financial disclosures.",
			Instructions: `- Translate the provided English text into formal, professional {target_language} for use in financial statements.
- Maintain tone, meaning, and structure.
- Use proper grammar and consider singular/plural and gender forms.
- Do not translate variable names or placeholders if present.
- Return only the final translation. No headings, no commentary, no formatting.`,
		},
		FormulaPrompt: FormulaPrompt{
			Identity: "You are an expert Excel formula translator focused on localizing financial statement text without breaking Excel logic.",
			CriticalRules: `- DO NOT translate Excel functions like IF, UPPER, LEN, OR, AND, etc.
- DO NOT translate named ranges like CompanyName, Capitalisation, Director_is_are, etc.
- DO NOT translate cell references like A1, B2, etc.
- DO NOT translate operators like =, +, -, *, /, etc.
- DO NOT translate parentheses, commas, or other Excel syntax
- ONLY translate hardcoded English text in quotation marks`,
			Examples: `Example 1:
English value: "The company"
{target_language} value: "<translated>"
English formula: ="The company "&CompanyName
{target_language} formula: ="<translated>"&CompanyName

Example 2:
English value: "Total revenue"
{target_language} value: "<translated>"
English formula: =IF(TotalIncome>1000,"Total revenue exceeded","Within budget")
{target_language} formula: =IF(TotalIncome>1000,"<translated exceeded>","<translated within budget>")`,
			Instructions: `- You will receive a formula in Excel that contains dynamic named ranges and static text.
- Your task is to translate ONLY the hardcoded English text inside quotation marks to formal {target_language}.
- DO NOT modify Excel logic (e.g., IF, OR, LOWER) or named ranges (e.g., Director_is_are, AFS_Name).
- The translated formula MUST evaluate to the provided {target_language} sentence.
- Your response must be a valid Excel formula prefixed with a single apostrophe (') to prevent auto-evaluation.
- No additional text, no explanations. Just return the formula as a single line.`,
		},
	}
}

// Manager persists the active configuration and presets under one
// directory. All writes go through a temp file and rename so a crashed
// write never leaves a truncated configuration behind.
type Manager struct {
	configDir  string
	configFile string
	presetsDir string
}

func NewManager(configDir string) (*Manager, error) {
	m := &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "active_config.json"),
		presetsDir: filepath.Join(configDir, "presets"),
	}
	if err := os.MkdirAll(m.presetsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create prompt config directory: %w", err)
	}
	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		if err := m.SaveActive(Default()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LoadActive returns the active configuration, falling back to the default
// when the file is missing or unreadable.
func (m *Manager) LoadActive() Configuration {
	cfg, err := readConfiguration(m.configFile)
	if err != nil {
		log.Warn("Failed to load active prompt configuration, using default: %v", err)
		return Default()
	}
	return cfg
}

// SaveActive replaces the active configuration.
func (m *Manager) SaveActive(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.ModifiedAt = time.Now().Format(time.RFC3339)
	return writeConfiguration(m.configFile, cfg)
}

// SavePreset stores a configuration under a preset name.
func (m *Manager) SavePreset(cfg Configuration, name string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	safe := safeName(name)
	if safe == "" {
		return fmt.Errorf("preset name is required")
	}
	cfg.Name = name
	cfg.ModifiedAt = time.Now().Format(time.RFC3339)
	return writeConfiguration(filepath.Join(m.presetsDir, safe+".json"), cfg)
}

// LoadPreset returns a stored preset by name.
func (m *Manager) LoadPreset(name string) (Configuration, error) {
	return readConfiguration(filepath.Join(m.presetsDir, safeName(name)+".json"))
}

// ListPresets returns the available preset names, sorted.
func (m *Manager) ListPresets() ([]string, error) {
	entries, err := os.ReadDir(m.presetsDir)
	if err != nil {
		return nil, fmt.Errorf("read presets directory: %w", err)
	}
	presets := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		presets = append(presets, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(presets)
	return presets, nil
}

// DeletePreset removes a preset; deleting a missing preset is an error.
func (m *Manager) DeletePreset(name string) error {
	return os.Remove(filepath.Join(m.presetsDir, safeName(name)+".json"))
}

func readConfiguration(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("invalid prompt configuration %s: %w", path, err)
	}
	return cfg, nil
}

func writeConfiguration(path string, cfg Configuration) error {
	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// safeName keeps only filename-safe characters of a preset name.
func safeName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '-', c == '_':
			b.WriteRune(c)
		}
	}
	return strings.TrimSpace(b.String())
}
