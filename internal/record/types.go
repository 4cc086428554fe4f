package record

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Status tracks how far a row has progressed through the two translation stages.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValueDone Status = "value_done"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the row needs no further processing.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ParseStatus maps a persisted status cell back to a Status, defaulting to
// StatusPending for unknown values.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusValueDone:
		return StatusValueDone
	case StatusComplete:
		return StatusComplete
	case StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Record is one row of the working table. RowIndex is assigned once at load
// and never reused; source fields are immutable for the lifetime of a run.
type Record struct {
	RowIndex      int
	SourceValue   string
	SourceFormula string
	TargetValue   string
	TargetFormula string
	Status        Status
}

// StatusColumn is the bookkeeping column carried through every serialization.
const StatusColumn = "TranslationStatus"

// LanguageName returns the English display name of a language tag,
// e.g. language.Afrikaans -> "Afrikaans". Column suffixes are built from it.
func LanguageName(tag language.Tag) string {
	return display.English.Languages().Name(tag)
}

// ValueColumn returns the cell-value column name for a language.
func ValueColumn(tag language.Tag) string {
	return fmt.Sprintf("CellValue_%s", LanguageName(tag))
}

// FormulaColumn returns the cell-formula column name for a language.
func FormulaColumn(tag language.Tag) string {
	return fmt.Sprintf("CellFormula_%s", LanguageName(tag))
}

// SchemaError reports mandatory columns missing from an input table.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("input table is missing required columns: %s", strings.Join(e.Missing, ", "))
}
