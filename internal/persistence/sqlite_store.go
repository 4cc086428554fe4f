// Package persistence keeps queue and run-ledger state in an embedded
// SQLite database so watch mode survives restarts with its history intact.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/draftworx/statement-translator/internal/job"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*job.TranslationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, input_file, output_file, target_language, resume_from, status, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*job.TranslationJob, 0)
	for rows.Next() {
		var item job.TranslationJob
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.InputFile,
			&item.Payload.OutputFile,
			&item.Payload.TargetLanguage,
			&item.Payload.ResumeFrom,
			&status,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = job.QueueStatus(status)
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, j *job.TranslationJob) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, input_file, output_file, target_language, resume_from, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			input_file=excluded.input_file,
			output_file=excluded.output_file,
			target_language=excluded.target_language,
			resume_from=excluded.resume_from,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		j.ID,
		j.Source,
		j.DedupeKey,
		j.Payload.InputFile,
		j.Payload.OutputFile,
		j.Payload.TargetLanguage,
		j.Payload.ResumeFrom,
		string(j.Status),
		j.Error,
		j.CreatedAt,
		j.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

// UpsertRun records or updates one entry in the run ledger.
func (s *SQLiteStore) UpsertRun(ctx context.Context, entry RunEntry) error {
	if strings.TrimSpace(entry.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
			run_id, job_id, input_file, output_file, target_language,
			records_total, records_processed, values_translated, formulas_translated, rows_failed,
			started_at, elapsed_seconds, last_checkpoint, state, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			job_id=excluded.job_id,
			input_file=excluded.input_file,
			output_file=excluded.output_file,
			target_language=excluded.target_language,
			records_total=excluded.records_total,
			records_processed=excluded.records_processed,
			values_translated=excluded.values_translated,
			formulas_translated=excluded.formulas_translated,
			rows_failed=excluded.rows_failed,
			started_at=excluded.started_at,
			elapsed_seconds=excluded.elapsed_seconds,
			last_checkpoint=excluded.last_checkpoint,
			state=excluded.state,
			updated_at=excluded.updated_at`,
		entry.RunID,
		entry.JobID,
		entry.InputFile,
		entry.OutputFile,
		entry.TargetLanguage,
		entry.RecordsTotal,
		entry.RecordsProcessed,
		entry.ValuesTranslated,
		entry.FormulasTranslated,
		entry.RowsFailed,
		entry.StartedAt.UTC(),
		entry.ElapsedSeconds,
		entry.LastCheckpoint,
		entry.State,
		entry.UpdatedAt.UTC(),
	)
	return err
}

// GetRun fetches one ledger entry by run ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunEntry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, job_id, input_file, output_file, target_language,
			records_total, records_processed, values_translated, formulas_translated, rows_failed,
			started_at, elapsed_seconds, last_checkpoint, state, updated_at
		 FROM runs WHERE run_id = ?`,
		runID,
	)
	entry, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunEntry{}, false, nil
	}
	if err != nil {
		return RunEntry{}, false, err
	}
	return entry, true, nil
}

// ListRuns returns the most recent ledger entries, newest first. A
// non-positive limit returns everything.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	query := `SELECT run_id, job_id, input_file, output_file, target_language,
			records_total, records_processed, values_translated, formulas_translated, rows_failed,
			started_at, elapsed_seconds, last_checkpoint, state, updated_at
		 FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]RunEntry, 0)
	for rows.Next() {
		entry, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunEntry, error) {
	var entry RunEntry
	err := row.Scan(
		&entry.RunID,
		&entry.JobID,
		&entry.InputFile,
		&entry.OutputFile,
		&entry.TargetLanguage,
		&entry.RecordsTotal,
		&entry.RecordsProcessed,
		&entry.ValuesTranslated,
		&entry.FormulasTranslated,
		&entry.RowsFailed,
		&entry.StartedAt,
		&entry.ElapsedSeconds,
		&entry.LastCheckpoint,
		&entry.State,
		&entry.UpdatedAt,
	)
	return entry, err
}
