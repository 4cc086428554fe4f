// Package translator turns disclosure text and Excel formulas from the
// source language into the target language through an LLM backend.
package translator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"

	"github.com/draftworx/statement-translator/internal/promptcfg"
	"github.com/draftworx/statement-translator/internal/record"
	"github.com/draftworx/statement-translator/pkg/log"
)

// MarkerPrefix prevents spreadsheet tools from evaluating translated
// formulas on open. Every formula this package emits carries it exactly once.
const MarkerPrefix = "'"

// Translator produces target-language text and formulas for a single row.
type Translator interface {
	// TranslateValue translates plain disclosure text. An empty input
	// returns an empty output without a backend call.
	TranslateValue(ctx context.Context, value string) (string, error)

	// TranslateFormula localizes the quoted literals of an Excel formula so
	// that it evaluates to translatedValue. The result always starts with
	// MarkerPrefix. An empty formula returns empty without a backend call.
	TranslateFormula(ctx context.Context, value, translatedValue, formula string) (string, error)
}

// chatClient is the slice of the LLM client this package needs.
type chatClient interface {
	SimpleChat(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// LLMTranslator implements Translator over a chat-completion backend.
type LLMTranslator struct {
	client         chatClient
	languageName   string
	namedRangesDoc string
	prompts        promptcfg.Configuration
}

// Option customizes an LLMTranslator.
type Option func(*LLMTranslator)

// WithPromptConfiguration substitutes the built-in prompt set, so the
// active configuration edited through the prompt manager drives what the
// backend is asked.
func WithPromptConfiguration(cfg promptcfg.Configuration) Option {
	return func(t *LLMTranslator) {
		t.prompts = cfg
	}
}

// NewLLMTranslator builds a translator for the given target language.
// namedRangesDoc may be empty; when present it is appended to the formula
// prompt so documented identifiers are never localized.
func NewLLMTranslator(client chatClient, target language.Tag, namedRangesDoc string, opts ...Option) *LLMTranslator {
	t := &LLMTranslator{
		client:         client,
		languageName:   record.LanguageName(target),
		namedRangesDoc: namedRangesDoc,
		prompts:        promptcfg.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *LLMTranslator) TranslateValue(ctx context.Context, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}

	translated, err := t.client.SimpleChat(ctx,
		buildValueUserPrompt(t.languageName, value),
		buildValueSystemPrompt(t.prompts.ValuePrompt, t.languageName))
	if err != nil {
		return "", &TranslationError{Text: value, Err: err}
	}

	translated = strings.TrimSpace(translated)
	log.Debug("Translated value %q -> %q [%s]", value, translated, t.languageName)
	return translated, nil
}

func (t *LLMTranslator) TranslateFormula(ctx context.Context, value, translatedValue, formula string) (string, error) {
	if strings.TrimSpace(formula) == "" {
		return "", nil
	}

	result, err := t.client.SimpleChat(ctx,
		buildFormulaUserPrompt(t.languageName, value, translatedValue, formula),
		buildFormulaSystemPrompt(t.prompts.FormulaPrompt, t.languageName, t.namedRangesDoc))
	if err != nil {
		return "", &FormulaTranslationError{Formula: formula, Err: err}
	}

	result = strings.TrimSpace(result)
	if !strings.HasPrefix(result, MarkerPrefix) {
		result = MarkerPrefix + result
	}
	log.Debug("Translated formula %q -> %q [%s]", formula, result, t.languageName)
	return result, nil
}

// LoadNamedRangesDoc reads the named-ranges reference document. A missing
// file is not an error; translation proceeds without the extra context.
func LoadNamedRangesDoc(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn("Named ranges document %s not found, formulas will be translated without it", path)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read named ranges document: %w", err)
	}
	log.Info("Loaded named ranges document from %s (%d bytes)", path, len(data))
	return string(data), nil
}
