package record

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// utf8BOM is written on every serialization for spreadsheet-tool compatibility
// and stripped on read.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Store is an ordered, in-memory table of records keyed by row index.
// Row count is fixed for the lifetime of a run; rows are mutated in place.
// Unrecognized columns are preserved opaquely and re-emitted on serialization.
//
// Store is not safe for concurrent mutation; a running job controller owns it
// exclusively.
type Store struct {
	source language.Tag
	target language.Tag

	columns []string
	records []Record
	extras  []map[string]string
}

// Load parses a tabular source into a Store. The source-language value and
// formula columns are mandatory; target-language columns and the status
// column are created when absent.
func Load(r io.Reader, source, target language.Tag) (*Store, error) {
	srcValCol := ValueColumn(source)
	srcForCol := FormulaColumn(source)
	tgtValCol := ValueColumn(target)
	tgtForCol := FormulaColumn(target)

	reader := csv.NewReader(stripBOM(r))
	header, err := reader.Read()
	if err == io.EOF {
		return nil, &SchemaError{Missing: []string{srcValCol, srcForCol}}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	position := make(map[string]int, len(header))
	for i, name := range header {
		position[name] = i
	}

	var missing []string
	for _, required := range []string{srcValCol, srcForCol} {
		if _, ok := position[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	columns := append([]string(nil), header...)
	for _, created := range []string{tgtValCol, tgtForCol, StatusColumn} {
		if _, ok := position[created]; !ok {
			columns = append(columns, created)
		}
	}

	known := map[string]bool{
		srcValCol:    true,
		srcForCol:    true,
		tgtValCol:    true,
		tgtForCol:    true,
		StatusColumn: true,
	}

	store := &Store{
		source:  source,
		target:  target,
		columns: columns,
	}

	cell := func(row []string, name string) string {
		if i, ok := position[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse row %d: %w", len(store.records)+1, err)
		}

		rec := Record{
			RowIndex:      len(store.records),
			SourceValue:   cell(row, srcValCol),
			SourceFormula: cell(row, srcForCol),
			TargetValue:   cell(row, tgtValCol),
			TargetFormula: cell(row, tgtForCol),
		}
		if raw := cell(row, StatusColumn); raw != "" {
			rec.Status = ParseStatus(raw)
		} else {
			rec.Status = deriveStatus(rec)
		}

		extra := make(map[string]string)
		for name, i := range position {
			if known[name] || i >= len(row) {
				continue
			}
			extra[name] = row[i]
		}

		store.records = append(store.records, rec)
		store.extras = append(store.extras, extra)
	}

	return store, nil
}

// HasSourceColumns reports whether the table at path carries the mandatory
// source-language columns. Only the header row is read, so directory
// scanners can cheaply reject files that are not translation inputs.
func HasSourceColumns(path string, source language.Tag) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header, err := csv.NewReader(stripBOM(f)).Read()
	if err != nil {
		return false
	}

	found := 0
	for _, name := range header {
		if name == ValueColumn(source) || name == FormulaColumn(source) {
			found++
		}
	}
	return found == 2
}

// LoadFile loads a Store from a CSV file on disk.
func LoadFile(path string, source, target language.Tag) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	return Load(f, source, target)
}

// deriveStatus infers row state from populated target cells for tables
// written without a status column (e.g. backups from older tooling).
func deriveStatus(rec Record) Status {
	switch {
	case rec.TargetValue != "" && (rec.SourceFormula == "" || rec.TargetFormula != ""):
		return StatusComplete
	case rec.TargetValue != "":
		return StatusValueDone
	default:
		return StatusPending
	}
}

// Serialize emits all original columns plus the target-language and status
// columns, preserving row order, with a UTF-8 byte-order mark.
func (s *Store) Serialize(w io.Writer) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write byte-order mark: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(s.columns); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	row := make([]string, len(s.columns))
	for i, rec := range s.records {
		for j, name := range s.columns {
			row[j] = s.cellValue(rec, s.extras[i], name)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFile serializes the store to a CSV file, replacing any existing file.
func (s *Store) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := s.Serialize(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) cellValue(rec Record, extra map[string]string, column string) string {
	switch column {
	case ValueColumn(s.source):
		return rec.SourceValue
	case FormulaColumn(s.source):
		return rec.SourceFormula
	case ValueColumn(s.target):
		return rec.TargetValue
	case FormulaColumn(s.target):
		return rec.TargetFormula
	case StatusColumn:
		return string(rec.Status)
	default:
		return extra[column]
	}
}

// Len returns the fixed row count.
func (s *Store) Len() int {
	return len(s.records)
}

// Rows returns a snapshot copy of all records.
func (s *Store) Rows() []Record {
	return append([]Record(nil), s.records...)
}

// RowAt returns a copy of the record at rowIndex.
func (s *Store) RowAt(rowIndex int) (Record, error) {
	if rowIndex < 0 || rowIndex >= len(s.records) {
		return Record{}, fmt.Errorf("row index %d out of range [0,%d)", rowIndex, len(s.records))
	}
	return s.records[rowIndex], nil
}

// SetTargets updates the target-language cells of a row in place.
func (s *Store) SetTargets(rowIndex int, value, formula string) error {
	if rowIndex < 0 || rowIndex >= len(s.records) {
		return fmt.Errorf("row index %d out of range [0,%d)", rowIndex, len(s.records))
	}
	s.records[rowIndex].TargetValue = value
	s.records[rowIndex].TargetFormula = formula
	return nil
}

// SetStatus updates the status of a row in place.
func (s *Store) SetStatus(rowIndex int, status Status) error {
	if rowIndex < 0 || rowIndex >= len(s.records) {
		return fmt.Errorf("row index %d out of range [0,%d)", rowIndex, len(s.records))
	}
	s.records[rowIndex].Status = status
	return nil
}

// SourceLanguage returns the source-language tag of the table.
func (s *Store) SourceLanguage() language.Tag {
	return s.source
}

// TargetLanguage returns the target-language tag of the table.
func (s *Store) TargetLanguage() language.Tag {
	return s.target
}

// Summary aggregates row-level progress for analytics and listings.
type Summary struct {
	Total              int
	TranslatedValues   int
	TranslatedFormulas int
	Complete           int
	Failed             int
	Terminal           int
}

// Summarize recomputes progress counters from row state. Row status is the
// ground truth; persisted metadata is only a display cache.
func (s *Store) Summarize() Summary {
	sum := Summary{Total: len(s.records)}
	for _, rec := range s.records {
		if rec.TargetValue != "" {
			sum.TranslatedValues++
		}
		if rec.TargetFormula != "" {
			sum.TranslatedFormulas++
		}
		switch rec.Status {
		case StatusComplete:
			sum.Complete++
		case StatusFailed:
			sum.Failed++
		}
	}
	sum.Terminal = sum.Complete + sum.Failed
	return sum
}

// maxDetectSample bounds how many rows language detection inspects.
const maxDetectSample = 200

// DetectSourceLanguage guesses the dominant language of the source values.
// Returns language.Und for an empty table.
func (s *Store) DetectSourceLanguage() language.Tag {
	langCount := make(map[string]int)

	sampled := 0
	for _, rec := range s.records {
		if rec.SourceValue == "" {
			continue
		}
		lang := whatlanggo.DetectLang(rec.SourceValue).Iso6391()
		langCount[lang]++
		sampled++
		if sampled >= maxDetectSample {
			break
		}
	}

	var topLang string
	var topCount int
	for lang, count := range langCount {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}

	if topLang == "" {
		return language.Und
	}
	return language.Make(topLang)
}

// stripBOM removes a leading UTF-8 byte-order mark if present.
func stripBOM(r io.Reader) io.Reader {
	buf := bufio.NewReader(r)
	peek, err := buf.Peek(3)
	if err == nil && peek[0] == utf8BOM[0] && peek[1] == utf8BOM[1] && peek[2] == utf8BOM[2] {
		_, _ = buf.Discard(3)
	}
	return buf
}
