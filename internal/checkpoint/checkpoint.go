// Package checkpoint persists timestamped snapshots of a translation run so
// long batches can survive interruption and resume from the last good state.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/draftworx/statement-translator/internal/record"
	"github.com/draftworx/statement-translator/pkg/log"
)

// Kind distinguishes interval snapshots from the terminal artifact of a
// completed run.
type Kind string

const (
	Progress Kind = "progress"
	Final    Kind = "final"
)

// RunMetadata is the derived progress cache saved alongside each snapshot.
// It is always recomputable from row state; row status stays the ground
// truth on resume.
type RunMetadata struct {
	RunID              string    `json:"run_id"`
	TargetLanguage     string    `json:"target_language"`
	RecordsTotal       int       `json:"records_total"`
	RecordsProcessed   int       `json:"records_processed"`
	ValuesTranslated   int       `json:"values_translated"`
	FormulasTranslated int       `json:"formulas_translated"`
	RowsFailed         int       `json:"rows_failed"`
	StartedAt          time.Time `json:"started_at"`
	ElapsedSeconds     float64   `json:"elapsed_seconds"`
	LastCheckpointAt   time.Time `json:"last_checkpoint_at,omitempty"`
	Kind               Kind      `json:"kind"`
}

// Handle identifies a snapshot on disk.
type Handle struct {
	Path      string
	Language  string
	Processed int
	Timestamp time.Time
	Seq       int
	Final     bool
}

// MetaPath is the JSON sidecar carrying the snapshot's RunMetadata.
func (h Handle) MetaPath() string {
	return h.Path + ".meta.json"
}

// CorruptError reports a snapshot that cannot be resumed from. The caller
// may pick an older snapshot; the error is fatal only for this attempt.
type CorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("checkpoint %s is not resumable: %s", e.Path, e.Reason)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

const timestampLayout = "20060102_150405"

// backup_<Language>_<processed>_<YYYYMMDD_HHMMSS>_<seq>.csv
var namePattern = regexp.MustCompile(`^(final_)?backup_(.+)_(\d+)_(\d{8}_\d{6})_(\d+)\.csv$`)

// Manager writes and enumerates snapshots under a single directory.
// Artifacts are never overwritten or deleted; superseded snapshots remain
// available as alternative resume points.
type Manager struct {
	dir string
	seq int
	now func() time.Time
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Manager{dir: dir, now: time.Now}, nil
}

// Dir returns the directory snapshots are written to.
func (m *Manager) Dir() string {
	return m.dir
}

// ShouldCheckpoint reports whether processed rows have reached an interval
// boundary. Run completion saves unconditionally and does not go through
// this check.
func (m *Manager) ShouldCheckpoint(processed, interval int) bool {
	return interval > 0 && processed > 0 && processed%interval == 0
}

// Save serializes the store and metadata to a new uniquely named artifact
// and returns its handle. Existing files are never overwritten; the
// embedded sequence number is bumped until a free name is found.
func (m *Manager) Save(store *record.Store, meta RunMetadata, kind Kind) (Handle, error) {
	now := m.now()
	meta.LastCheckpointAt = now
	meta.Kind = kind

	prefix := "backup"
	if kind == Final {
		prefix = "final_backup"
	}

	var path string
	for {
		m.seq++
		name := fmt.Sprintf("%s_%s_%d_%s_%d.csv",
			prefix, meta.TargetLanguage, meta.RecordsProcessed, now.Format(timestampLayout), m.seq)
		path = filepath.Join(m.dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	if err := store.Serialize(f); err != nil {
		_ = f.Close()
		return Handle{}, fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return Handle{}, fmt.Errorf("failed to close checkpoint %s: %w", path, err)
	}

	handle := Handle{
		Path:      path,
		Language:  meta.TargetLanguage,
		Processed: meta.RecordsProcessed,
		Timestamp: now,
		Seq:       m.seq,
		Final:     kind == Final,
	}

	if err := writeMetadata(handle.MetaPath(), meta); err != nil {
		// The snapshot itself is intact; metadata is recomputed on resume.
		log.Warn("Failed to write checkpoint metadata for %s: %v", path, err)
	}

	log.Info("Saved %s checkpoint: %s (%d records processed)", kind, path, meta.RecordsProcessed)
	return handle, nil
}

// List returns all snapshots in the directory, oldest first. Files that do
// not follow the naming convention are ignored.
func (m *Manager) List() ([]Handle, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var handles []Handle
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		h, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		h.Path = filepath.Join(m.dir, entry.Name())
		handles = append(handles, h)
	}

	sort.Slice(handles, func(i, j int) bool {
		if !handles[i].Timestamp.Equal(handles[j].Timestamp) {
			return handles[i].Timestamp.Before(handles[j].Timestamp)
		}
		return handles[i].Seq < handles[j].Seq
	})
	return handles, nil
}

// ReadMeta returns the metadata sidecar of a snapshot. Snapshots written
// without a readable sidecar report an error; the snapshot itself is still
// resumable.
func (m *Manager) ReadMeta(h Handle) (RunMetadata, error) {
	return readMetadata(h.MetaPath())
}

// Latest returns the newest snapshot, or ok=false when none exist.
func (m *Manager) Latest() (Handle, bool, error) {
	handles, err := m.List()
	if err != nil || len(handles) == 0 {
		return Handle{}, false, err
	}
	return handles[len(handles)-1], true, nil
}

// Resume loads a snapshot back into a live store. A snapshot missing its
// required columns or containing zero rows fails with CorruptError. A
// missing metadata sidecar is tolerated; the caller recomputes progress
// from row state anyway.
func (m *Manager) Resume(h Handle, source, target language.Tag) (*record.Store, RunMetadata, error) {
	store, err := record.LoadFile(h.Path, source, target)
	if err != nil {
		var schemaErr *record.SchemaError
		if errors.As(err, &schemaErr) {
			return nil, RunMetadata{}, &CorruptError{Path: h.Path, Reason: schemaErr.Error(), Err: err}
		}
		return nil, RunMetadata{}, err
	}
	if store.Len() == 0 {
		return nil, RunMetadata{}, &CorruptError{Path: h.Path, Reason: "checkpoint contains no rows"}
	}

	meta, err := readMetadata(h.MetaPath())
	if err != nil {
		log.Warn("Checkpoint metadata unreadable for %s, progress will be recomputed: %v", h.Path, err)
		meta = RunMetadata{TargetLanguage: record.LanguageName(target)}
	}

	log.Info("Resumed from checkpoint %s: %d rows", h.Path, store.Len())
	return store, meta, nil
}

func writeMetadata(path string, meta RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readMetadata(path string) (RunMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunMetadata{}, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return RunMetadata{}, err
	}
	return meta, nil
}

// IsSnapshotName reports whether a file name follows the snapshot naming
// convention. Directory scanners use it to keep snapshots out of fresh work.
func IsSnapshotName(name string) bool {
	_, ok := parseName(name)
	return ok
}

func parseName(name string) (Handle, bool) {
	match := namePattern.FindStringSubmatch(name)
	if match == nil {
		return Handle{}, false
	}
	processed, err := strconv.Atoi(match[3])
	if err != nil {
		return Handle{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, match[4], time.Local)
	if err != nil {
		return Handle{}, false
	}
	seq, err := strconv.Atoi(match[5])
	if err != nil {
		return Handle{}, false
	}
	return Handle{
		Language:  match[2],
		Processed: processed,
		Timestamp: ts,
		Seq:       seq,
		Final:     match[1] == "final_",
	}, true
}
