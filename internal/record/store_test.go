package record

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadCreatesTargetColumns(t *testing.T) {
	input := "CellValue_English,CellFormula_English\n" +
		"Revenue,=SUM(B2:B10)\n" +
		"Cost of sales,\n"

	store, err := Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	rec, err := store.RowAt(0)
	require.NoError(t, err)
	assert.Equal(t, "Revenue", rec.SourceValue)
	assert.Equal(t, "=SUM(B2:B10)", rec.SourceFormula)
	assert.Empty(t, rec.TargetValue)
	assert.Equal(t, StatusPending, rec.Status)

	var buf bytes.Buffer
	require.NoError(t, store.Serialize(&buf))
	out := buf.String()
	assert.Contains(t, out, "CellValue_Afrikaans")
	assert.Contains(t, out, "CellFormula_Afrikaans")
	assert.Contains(t, out, StatusColumn)
}

func TestLoadMissingRequiredColumns(t *testing.T) {
	input := "Description,Amount\nRevenue,100\n"

	_, err := Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Missing, "CellValue_English")
	assert.Contains(t, schemaErr.Missing, "CellFormula_English")
}

func TestLoadEmptyInput(t *testing.T) {
	_, err := Load(strings.NewReader(""), language.English, language.Afrikaans)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestHasSourceColumns(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "statements.csv")
	require.NoError(t, os.WriteFile(good,
		[]byte("\xEF\xBB\xBFCellValue_English,CellFormula_English\nRevenue,\n"), 0o644))
	assert.True(t, HasSourceColumns(good, language.English))

	wrong := filepath.Join(dir, "amounts.csv")
	require.NoError(t, os.WriteFile(wrong, []byte("Description,Amount\nRevenue,100\n"), 0o644))
	assert.False(t, HasSourceColumns(wrong, language.English))

	assert.False(t, HasSourceColumns(filepath.Join(dir, "missing.csv"), language.English))
}

func TestLoadStripsByteOrderMark(t *testing.T) {
	input := "\xEF\xBB\xBFCellValue_English,CellFormula_English\nRevenue,\n"

	store, err := Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	rec, _ := store.RowAt(0)
	assert.Equal(t, "Revenue", rec.SourceValue)
}

func TestRoundTripPreservesUnknownColumns(t *testing.T) {
	input := "RowID,CellValue_English,CellFormula_English,Notes\n" +
		"r-01,\"Total, net\",=B2+B3,\"keep \"\"as is\"\"\"\n" +
		"r-02,Gross profit,,\"multi\nline note\"\n"

	store, err := Load(strings.NewReader(input), language.English, language.Dutch)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	require.NoError(t, store.SetTargets(0, "Totaal, netto", "'=B2+B3"))
	require.NoError(t, store.SetStatus(0, StatusComplete))

	var buf bytes.Buffer
	require.NoError(t, store.Serialize(&buf))

	// Reload what we wrote and check nothing was lost.
	reloaded, err := Load(bytes.NewReader(buf.Bytes()), language.English, language.Dutch)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())

	rec, _ := reloaded.RowAt(0)
	assert.Equal(t, "Totaal, netto", rec.TargetValue)
	assert.Equal(t, "'=B2+B3", rec.TargetFormula)
	assert.Equal(t, StatusComplete, rec.Status)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\xEF\xBB\xBF"))
	assert.Contains(t, out, "r-01")
	assert.Contains(t, out, `keep ""as is""`)
	assert.Contains(t, out, "multi\nline note")
}

func TestStatusDerivedWhenColumnAbsent(t *testing.T) {
	input := "CellValue_English,CellFormula_English,CellValue_Afrikaans,CellFormula_Afrikaans\n" +
		"Revenue,=SUM(B2),Inkomste,'=SUM(B2)\n" +
		"Gross profit,=B2-B3,Bruto wins,\n" +
		"Notes,,Notas,\n" +
		"Depreciation,=B5,,\n"

	store, err := Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.NoError(t, err)

	rows := store.Rows()
	assert.Equal(t, StatusComplete, rows[0].Status)
	assert.Equal(t, StatusValueDone, rows[1].Status, "formula pending: value done only")
	assert.Equal(t, StatusComplete, rows[2].Status, "no source formula means value alone completes the row")
	assert.Equal(t, StatusPending, rows[3].Status)
}

func TestStatusColumnWinsOverDerivation(t *testing.T) {
	input := "CellValue_English,CellFormula_English,CellValue_Afrikaans,TranslationStatus\n" +
		"Revenue,,Inkomste,failed\n"

	store, err := Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.NoError(t, err)

	rec, _ := store.RowAt(0)
	assert.Equal(t, StatusFailed, rec.Status)
}

func TestRowIndexOutOfRange(t *testing.T) {
	store, err := Load(strings.NewReader("CellValue_English,CellFormula_English\n"), language.English, language.Afrikaans)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	_, err = store.RowAt(0)
	assert.Error(t, err)
	assert.Error(t, store.SetStatus(-1, StatusComplete))
	assert.Error(t, store.SetTargets(5, "x", "y"))
}

func TestSummarize(t *testing.T) {
	input := "CellValue_English,CellFormula_English,CellValue_Afrikaans,CellFormula_Afrikaans,TranslationStatus\n" +
		"Revenue,=B2,Inkomste,'=B2,complete\n" +
		"Cost,=B3,Koste,,value_done\n" +
		"Other,,,,failed\n" +
		"Tax,=B5,,,pending\n"

	store, err := Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.NoError(t, err)

	sum := store.Summarize()
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.TranslatedValues)
	assert.Equal(t, 1, sum.TranslatedFormulas)
	assert.Equal(t, 1, sum.Complete)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Terminal)
}

func TestDetectSourceLanguage(t *testing.T) {
	input := "CellValue_English,CellFormula_English\n" +
		"Revenue from contracts with customers,\n" +
		"Property plant and equipment,\n" +
		"Total comprehensive income for the year,\n"

	store, err := Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.NoError(t, err)

	assert.Equal(t, language.English, store.DetectSourceLanguage())
}

func TestDetectSourceLanguageEmptyTable(t *testing.T) {
	store, err := Load(strings.NewReader("CellValue_English,CellFormula_English\n"), language.English, language.Afrikaans)
	require.NoError(t, err)

	assert.Equal(t, language.Und, store.DetectSourceLanguage())
}
