package translator

import (
	"fmt"
	"strings"

	"github.com/draftworx/statement-translator/internal/promptcfg"
)

// languagePlaceholder is replaced with the target language's display name
// in every configurable prompt section.
const languagePlaceholder = "{target_language}"

const valueUserPrompt = `Translate the following English sentence into %[1]s:

%[2]s`

const formulaUserPrompt = `Original English value: "%[2]s"
Translated %[1]s value: "%[3]s"
Original Excel formula: %[4]s

Instructions:
Update the Excel formula to reflect the %[1]s value where applicable.
ONLY translate hardcoded English words or phrases in quotation marks.
DO NOT change Excel functions (IF, UPPER, LEN, etc.) or named ranges (CompanyName, etc.).
DO NOT change any Excel syntax, operators, or structure.

Return ONLY the final Excel formula with a single apostrophe prefix.`

const namedRangesSection = `

# Named ranges reference
The following documentation describes the named ranges that may appear in formulas. Treat every documented name as an identifier that must never be translated.

%s`

func renderSection(text, languageName string) string {
	return strings.ReplaceAll(text, languagePlaceholder, languageName)
}

func appendSection(b *strings.Builder, heading, text, languageName string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(renderSection(text, languageName))
}

// buildValueSystemPrompt assembles the value-stage system prompt from the
// configured sections.
func buildValueSystemPrompt(p promptcfg.ValuePrompt, languageName string) string {
	var b strings.Builder
	appendSection(&b, "# Identity", p.Identity, languageName)
	appendSection(&b, "# Instructions", p.Instructions, languageName)
	appendSection(&b, "# Examples", p.Examples, languageName)
	appendSection(&b, "# CRITICAL RULES - DO NOT VIOLATE:", p.CriticalRules, languageName)
	appendSection(&b, "# Additional notes", p.AdditionalNotes, languageName)
	return b.String()
}

func buildValueUserPrompt(languageName, englishValue string) string {
	return fmt.Sprintf(valueUserPrompt, languageName, englishValue)
}

// buildFormulaSystemPrompt assembles the formula-stage system prompt and
// appends the named-ranges reference when one was loaded.
func buildFormulaSystemPrompt(p promptcfg.FormulaPrompt, languageName, namedRangesDoc string) string {
	var b strings.Builder
	appendSection(&b, "# Identity", p.Identity, languageName)
	appendSection(&b, "# CRITICAL RULES - DO NOT VIOLATE:", p.CriticalRules, languageName)
	appendSection(&b, "# Examples of CORRECT translations:", p.Examples, languageName)
	appendSection(&b, "# Instructions", p.Instructions, languageName)
	appendSection(&b, "# Additional notes", p.AdditionalNotes, languageName)
	prompt := b.String()
	if namedRangesDoc != "" {
		prompt += fmt.Sprintf(namedRangesSection, namedRangesDoc)
	}
	return prompt
}

func buildFormulaUserPrompt(languageName, englishValue, translatedValue, englishFormula string) string {
	return fmt.Sprintf(formulaUserPrompt, languageName, englishValue, translatedValue, englishFormula)
}
