package translator

import "fmt"

// TranslationError reports a failed value translation. The caller is
// expected to fall back to the source text for the affected row.
type TranslationError struct {
	Text string
	Err  error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("failed to translate value %q: %v", truncate(e.Text, 60), e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// FormulaTranslationError reports a failed formula translation. The caller
// is expected to fall back to the source formula with the marker prefix.
type FormulaTranslationError struct {
	Formula string
	Err     error
}

func (e *FormulaTranslationError) Error() string {
	return fmt.Sprintf("failed to translate formula %q: %v", truncate(e.Formula, 60), e.Err)
}

func (e *FormulaTranslationError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
