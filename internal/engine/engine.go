// Package engine applies the two-stage per-row transformation: translate the
// cell value first, then localize the formula against that translated value.
package engine

import (
	"context"

	"github.com/draftworx/statement-translator/internal/record"
	"github.com/draftworx/statement-translator/internal/translator"
	"github.com/draftworx/statement-translator/pkg/log"
)

// Engine transforms one row at a time. All network effects live behind the
// injected translator, so the engine is testable with a fake.
type Engine struct {
	translator translator.Translator
}

func New(tr translator.Translator) *Engine {
	return &Engine{translator: tr}
}

// ProcessRow runs both stages on a copy of rec and returns the updated copy.
// Translation failures never abort the batch: the failing stage falls back
// to the source content (value as-is, formula with the marker prefix) and
// the row is marked failed. The returned error is non-nil only when the
// context was cancelled mid-row.
func (e *Engine) ProcessRow(ctx context.Context, rec record.Record) (record.Record, error) {
	// Nothing to translate: the row is trivially complete.
	if rec.SourceValue == "" && rec.SourceFormula == "" {
		rec.Status = record.StatusComplete
		return rec, nil
	}

	failed := false

	if rec.SourceValue != "" {
		translated, err := e.translator.TranslateValue(ctx, rec.SourceValue)
		if err != nil {
			if ctx.Err() != nil {
				return rec, ctx.Err()
			}
			log.Error("Row %d value translation failed, keeping source text: %v", rec.RowIndex, err)
			rec.TargetValue = rec.SourceValue
			failed = true
		} else {
			rec.TargetValue = translated
		}
	} else {
		rec.TargetValue = ""
	}
	rec.Status = record.StatusValueDone

	if rec.SourceFormula != "" {
		formula, err := e.translator.TranslateFormula(ctx, rec.SourceValue, rec.TargetValue, rec.SourceFormula)
		if err != nil {
			if ctx.Err() != nil {
				return rec, ctx.Err()
			}
			log.Error("Row %d formula translation failed, keeping source formula: %v", rec.RowIndex, err)
			rec.TargetFormula = translator.MarkerPrefix + rec.SourceFormula
			failed = true
		} else {
			rec.TargetFormula = formula
		}
	} else {
		rec.TargetFormula = ""
	}

	if failed {
		rec.Status = record.StatusFailed
	} else {
		rec.Status = record.StatusComplete
	}
	return rec, nil
}
