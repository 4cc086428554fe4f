package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftworx/statement-translator/internal/record"
)

// fakeTranslator lets each test script per-stage outcomes and observe calls.
type fakeTranslator struct {
	valueErr     error
	formulaErr   error
	valueCalls   int
	formulaCalls int
}

func (f *fakeTranslator) TranslateValue(ctx context.Context, value string) (string, error) {
	f.valueCalls++
	if f.valueErr != nil {
		return "", f.valueErr
	}
	return "T:" + value, nil
}

func (f *fakeTranslator) TranslateFormula(ctx context.Context, value, translatedValue, formula string) (string, error) {
	f.formulaCalls++
	if f.formulaErr != nil {
		return "", f.formulaErr
	}
	return "'T:" + formula, nil
}

func TestProcessRowBothStagesSucceed(t *testing.T) {
	fake := &fakeTranslator{}
	eng := New(fake)

	got, err := eng.ProcessRow(context.Background(), record.Record{
		RowIndex:      0,
		SourceValue:   "Revenue",
		SourceFormula: `="Revenue "&CompanyName`,
	})
	require.NoError(t, err)
	assert.Equal(t, "T:Revenue", got.TargetValue)
	assert.Equal(t, `'T:="Revenue "&CompanyName`, got.TargetFormula)
	assert.Equal(t, record.StatusComplete, got.Status)
}

func TestProcessRowValueFailureFallsBackToSource(t *testing.T) {
	fake := &fakeTranslator{valueErr: errors.New("quota exceeded")}
	eng := New(fake)

	got, err := eng.ProcessRow(context.Background(), record.Record{
		RowIndex:    3,
		SourceValue: "Revenue",
	})
	require.NoError(t, err, "per-row failures must not abort the batch")
	assert.Equal(t, "Revenue", got.TargetValue, "fallback keeps source text, never blank")
	assert.Equal(t, record.StatusFailed, got.Status)
}

func TestProcessRowFormulaFailureKeepsTranslatedValue(t *testing.T) {
	fake := &fakeTranslator{formulaErr: errors.New("bad response")}
	eng := New(fake)

	got, err := eng.ProcessRow(context.Background(), record.Record{
		SourceValue:   "Revenue",
		SourceFormula: `="Revenue"`,
	})
	require.NoError(t, err)
	assert.Equal(t, "T:Revenue", got.TargetValue, "formula failure does not revert the value stage")
	assert.Equal(t, `'="Revenue"`, got.TargetFormula, "fallback is the source formula with the marker prefix")
	assert.Equal(t, record.StatusFailed, got.Status)
}

func TestProcessRowEmptyFormulaSkipsFormulaStage(t *testing.T) {
	fake := &fakeTranslator{}
	eng := New(fake)

	got, err := eng.ProcessRow(context.Background(), record.Record{SourceValue: "Notes"})
	require.NoError(t, err)
	assert.Equal(t, "T:Notes", got.TargetValue)
	assert.Empty(t, got.TargetFormula)
	assert.Equal(t, record.StatusComplete, got.Status)
	assert.Equal(t, 0, fake.formulaCalls)
}

func TestProcessRowEmptyRowCompletesWithoutCalls(t *testing.T) {
	fake := &fakeTranslator{}
	eng := New(fake)

	got, err := eng.ProcessRow(context.Background(), record.Record{})
	require.NoError(t, err)
	assert.Equal(t, record.StatusComplete, got.Status)
	assert.Empty(t, got.TargetValue)
	assert.Empty(t, got.TargetFormula)
	assert.Equal(t, 0, fake.valueCalls)
	assert.Equal(t, 0, fake.formulaCalls)
}

func TestProcessRowContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeTranslator{valueErr: context.Canceled}
	eng := New(fake)

	_, err := eng.ProcessRow(ctx, record.Record{SourceValue: "Revenue"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessRowOrderIndependence(t *testing.T) {
	rows := []record.Record{
		{RowIndex: 0, SourceValue: "Revenue", SourceFormula: `="Revenue"`},
		{RowIndex: 1, SourceValue: "Cost of sales"},
		{RowIndex: 2, SourceValue: "Gross profit", SourceFormula: `=B2-B3`},
	}

	forward := make([]record.Record, len(rows))
	for i, rec := range rows {
		got, err := New(&fakeTranslator{}).ProcessRow(context.Background(), rec)
		require.NoError(t, err)
		forward[i] = got
	}

	for i := len(rows) - 1; i >= 0; i-- {
		got, err := New(&fakeTranslator{}).ProcessRow(context.Background(), rows[i])
		require.NoError(t, err)
		assert.Equal(t, forward[i], got, "row result must not depend on processing order")
	}
}
