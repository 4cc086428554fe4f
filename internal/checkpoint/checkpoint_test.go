package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/draftworx/statement-translator/internal/record"
)

func testStore(t *testing.T) *record.Store {
	t.Helper()
	input := "CellValue_English,CellFormula_English\n" +
		"Revenue,=SUM(B2:B10)\n" +
		"Cost of sales,\n"
	store, err := record.Load(strings.NewReader(input), language.English, language.Afrikaans)
	require.NoError(t, err)
	return store
}

func TestShouldCheckpoint(t *testing.T) {
	m := &Manager{}

	assert.False(t, m.ShouldCheckpoint(0, 3), "zero processed never triggers")
	assert.False(t, m.ShouldCheckpoint(2, 3))
	assert.True(t, m.ShouldCheckpoint(3, 3))
	assert.False(t, m.ShouldCheckpoint(4, 3))
	assert.True(t, m.ShouldCheckpoint(6, 3))
	assert.False(t, m.ShouldCheckpoint(5, 0), "non-positive interval disables checkpoints")
}

func TestSaveNamingAndMetadata(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local) }

	meta := RunMetadata{
		RunID:            "run-1",
		TargetLanguage:   "Afrikaans",
		RecordsProcessed: 25,
		StartedAt:        time.Now(),
	}

	h, err := m.Save(testStore(t), meta, Progress)
	require.NoError(t, err)
	assert.Equal(t, "backup_Afrikaans_25_20260314_092653_1.csv", filepath.Base(h.Path))
	assert.False(t, h.Final)

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\xEF\xBB\xBF"), "checkpoints carry the byte-order mark")

	restored, err := readMetadata(h.MetaPath())
	require.NoError(t, err)
	assert.Equal(t, "run-1", restored.RunID)
	assert.Equal(t, Progress, restored.Kind)
}

func TestReadMetaCarriesProgressCounters(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	meta := RunMetadata{
		RunID:              "run-4",
		TargetLanguage:     "Afrikaans",
		RecordsTotal:       40,
		RecordsProcessed:   25,
		ValuesTranslated:   22,
		FormulasTranslated: 9,
		RowsFailed:         3,
	}
	h, err := m.Save(testStore(t), meta, Progress)
	require.NoError(t, err)

	restored, err := m.ReadMeta(h)
	require.NoError(t, err)
	assert.Equal(t, 40, restored.RecordsTotal)
	assert.Equal(t, 25, restored.RecordsProcessed)
	assert.Equal(t, 22, restored.ValuesTranslated)
	assert.Equal(t, 9, restored.FormulasTranslated)
	assert.Equal(t, 3, restored.RowsFailed)

	require.NoError(t, os.Remove(h.MetaPath()))
	_, err = m.ReadMeta(h)
	assert.Error(t, err, "missing sidecar surfaces to the caller")
}

func TestSaveFinalNaming(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	h, err := m.Save(testStore(t), RunMetadata{TargetLanguage: "Dutch", RecordsProcessed: 2}, Final)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(h.Path), "final_backup_Dutch_2_"))
	assert.True(t, h.Final)
}

func TestSaveNeverOverwrites(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local) }

	meta := RunMetadata{TargetLanguage: "Afrikaans", RecordsProcessed: 3}
	first, err := m.Save(testStore(t), meta, Progress)
	require.NoError(t, err)
	second, err := m.Save(testStore(t), meta, Progress)
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path, "identical progress and timestamp must still get distinct names")
	_, err = os.Stat(first.Path)
	assert.NoError(t, err, "earlier checkpoint is retained")
}

func TestListOrderedOldestFirst(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		stamp := base.Add(time.Duration(i) * time.Minute)
		m.now = func() time.Time { return stamp }
		_, err := m.Save(testStore(t), RunMetadata{TargetLanguage: "Afrikaans", RecordsProcessed: i + 1}, Progress)
		require.NoError(t, err)
	}

	handles, err := m.List()
	require.NoError(t, err)
	require.Len(t, handles, 3)
	assert.Equal(t, 1, handles[0].Processed)
	assert.Equal(t, 3, handles[2].Processed)

	latest, ok, err := m.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, latest.Processed)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup_Afrikaans_1_20260314_092653_1.csv.meta.json"), []byte("{}"), 0o644))

	handles, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestResumeRoundTrip(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	store := testStore(t)
	require.NoError(t, store.SetTargets(0, "Inkomste", "'=SUM(B2:B10)"))
	require.NoError(t, store.SetStatus(0, record.StatusComplete))

	h, err := m.Save(store, RunMetadata{RunID: "run-9", TargetLanguage: "Afrikaans", RecordsProcessed: 1}, Progress)
	require.NoError(t, err)

	restored, meta, err := m.Resume(h, language.English, language.Afrikaans)
	require.NoError(t, err)
	assert.Equal(t, "run-9", meta.RunID)
	require.Equal(t, 2, restored.Len())

	rec, _ := restored.RowAt(0)
	assert.Equal(t, "Inkomste", rec.TargetValue)
	assert.Equal(t, record.StatusComplete, rec.Status)
}

func TestResumeMissingMetadataTolerated(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	h, err := m.Save(testStore(t), RunMetadata{TargetLanguage: "Afrikaans", RecordsProcessed: 1}, Progress)
	require.NoError(t, err)
	require.NoError(t, os.Remove(h.MetaPath()))

	store, meta, err := m.Resume(h, language.English, language.Afrikaans)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, "Afrikaans", meta.TargetLanguage)
}

func TestResumeZeroRowsIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "backup_Afrikaans_0_20260314_092653_1.csv")
	require.NoError(t, os.WriteFile(path, []byte("CellValue_English,CellFormula_English\n"), 0o644))

	_, _, err = m.Resume(Handle{Path: path}, language.English, language.Afrikaans)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "no rows")
}

func TestResumeMissingColumnsIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "backup_Afrikaans_1_20260314_092653_1.csv")
	require.NoError(t, os.WriteFile(path, []byte("Foo,Bar\n1,2\n"), 0o644))

	_, _, err = m.Resume(Handle{Path: path}, language.English, language.Afrikaans)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
}
