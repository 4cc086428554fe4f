// Package service ties the pipeline together: the Runner drives one file
// translation end to end, and the WatchService schedules directory scans
// that feed the job queue.
package service

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/draftworx/statement-translator/internal/checkpoint"
	"github.com/draftworx/statement-translator/internal/config"
	"github.com/draftworx/statement-translator/internal/engine"
	"github.com/draftworx/statement-translator/internal/job"
	"github.com/draftworx/statement-translator/internal/llm"
	"github.com/draftworx/statement-translator/internal/persistence"
	"github.com/draftworx/statement-translator/internal/promptcfg"
	"github.com/draftworx/statement-translator/internal/ratelimit"
	"github.com/draftworx/statement-translator/internal/record"
	"github.com/draftworx/statement-translator/internal/translator"
	"github.com/draftworx/statement-translator/pkg/file"
	"github.com/draftworx/statement-translator/pkg/log"
)

// RunLedger records run history. Implemented by persistence.SQLiteStore;
// a nil ledger disables history.
type RunLedger interface {
	UpsertRun(ctx context.Context, entry persistence.RunEntry) error
}

// FileRequest describes one file translation.
type FileRequest struct {
	InputFile  string
	OutputFile string // derived from InputFile when empty
	ResumeFrom string // checkpoint path, empty for a fresh run
	JobID      string
}

// Result is what a finished (or failed) run leaves behind.
type Result struct {
	RunID      string
	OutputFile string
	Analytics  job.Analytics
	Meta       checkpoint.RunMetadata
}

// Runner executes file translations with the configured backend.
type Runner struct {
	cfg    config.Config
	ledger RunLedger

	// newTranslator is swapped out in tests to avoid network access.
	newTranslator func() (translator.Translator, error)
}

func NewRunner(cfg config.Config, ledger RunLedger) *Runner {
	r := &Runner{cfg: cfg, ledger: ledger}
	r.newTranslator = r.buildLLMTranslator
	return r
}

func (r *Runner) buildLLMTranslator() (translator.Translator, error) {
	if r.cfg.LLM.APIKey == "" {
		return nil, NewError(ErrConfig, "LLM_API_KEY is required to run translations")
	}

	client, err := llm.NewClient(&llm.Config{
		APIKey:      r.cfg.LLM.APIKey,
		APIURL:      r.cfg.LLM.APIURL,
		Model:       r.cfg.LLM.Model,
		MaxTokens:   r.cfg.LLM.MaxTokens,
		Temperature: r.cfg.LLM.Temperature,
		Timeout:     r.cfg.LLM.Timeout,
		SiteURL:     r.cfg.LLM.SiteURL,
		AppName:     r.cfg.LLM.AppName,
	})
	if err != nil {
		return nil, WrapError(err, ErrConfig, "failed to create LLM client")
	}

	doc, err := translator.LoadNamedRangesDoc(r.cfg.Translate.NamedRangesPath)
	if err != nil {
		return nil, WrapError(err, ErrFileRead, "failed to load named ranges document")
	}

	prompts := promptcfg.Default()
	if mgr, err := promptcfg.NewManager(r.cfg.Storage.PromptConfigDir); err != nil {
		log.Warn("Prompt configuration unavailable, using built-in prompts: %v", err)
	} else {
		prompts = mgr.LoadActive()
	}

	base := translator.NewLLMTranslator(client, r.cfg.Translate.TargetLanguage, doc,
		translator.WithPromptConfiguration(prompts))
	return translator.NewResilient(base, r.cfg.Retry), nil
}

// OutputPath derives the output file name for an input table, e.g.
// statements.csv -> statements_inAfrikaans.csv.
func (r *Runner) OutputPath(inputPath string) string {
	return file.AppendToName(inputPath, "_in"+record.LanguageName(r.cfg.Translate.TargetLanguage))
}

// TranslateFile loads (or resumes) a table, runs it through the engine and
// writes the translated output. Per-row failures do not fail the run; they
// are reported in the result analytics.
func (r *Runner) TranslateFile(ctx context.Context, req FileRequest) (Result, error) {
	if req.InputFile == "" {
		return Result{}, NewError(ErrValidation, "input file is required")
	}
	output := req.OutputFile
	if output == "" {
		output = r.OutputPath(req.InputFile)
	}

	ckpts, err := checkpoint.NewManager(r.cfg.Storage.BackupDir)
	if err != nil {
		return Result{}, WrapError(err, ErrFileWrite, "failed to prepare backup directory")
	}

	store, meta, err := r.openStore(req, ckpts)
	if err != nil {
		return Result{}, err
	}
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}

	if detected := store.DetectSourceLanguage(); detected != language.Und && detected != r.cfg.Translate.SourceLanguage {
		log.Warn("Input %s looks like %s, configured source language is %s",
			req.InputFile, record.LanguageName(detected), record.LanguageName(r.cfg.Translate.SourceLanguage))
	}

	tr, err := r.newTranslator()
	if err != nil {
		return Result{}, err
	}

	ctl := job.NewController(store, engine.New(tr), ratelimit.New(r.cfg.RateLimit), ckpts,
		r.cfg.Translate.CheckpointInterval, meta)

	r.recordRun(ctx, req, output, store, ctl, string(job.StateRunning))

	finalMeta, runErr := ctl.Run(ctx)
	result := Result{
		RunID:      finalMeta.RunID,
		OutputFile: output,
		Analytics:  ctl.Analytics(),
		Meta:       finalMeta,
	}
	if runErr != nil {
		state := string(ctl.State())
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			// The controller goes back to Idle so the run stays resumable,
			// but the ledger should say why it ended.
			state = "interrupted"
		}
		r.recordRun(context.WithoutCancel(ctx), req, output, store, ctl, state)
		return result, WrapError(runErr, ErrTranslation, "translation run did not finish").
			WithContext("input", req.InputFile)
	}

	if err := store.WriteFile(output); err != nil {
		r.recordRun(ctx, req, output, store, ctl, string(job.StateFailed))
		return result, WrapError(err, ErrFileWrite, "failed to write output table").
			WithContext("output", output)
	}

	r.recordRun(ctx, req, output, store, ctl, string(job.StateCompleted))
	log.Info("Wrote %s: %d/%d rows complete, %d failed",
		output, result.Analytics.Complete, result.Analytics.Total, result.Analytics.Failed)
	return result, nil
}

// openStore loads the input table, or restores a checkpoint when the
// request names one.
func (r *Runner) openStore(req FileRequest, ckpts *checkpoint.Manager) (*record.Store, checkpoint.RunMetadata, error) {
	source := r.cfg.Translate.SourceLanguage
	target := r.cfg.Translate.TargetLanguage

	if req.ResumeFrom != "" {
		store, meta, err := ckpts.Resume(checkpoint.Handle{Path: req.ResumeFrom}, source, target)
		if err != nil {
			var corrupt *checkpoint.CorruptError
			if errors.As(err, &corrupt) {
				return nil, checkpoint.RunMetadata{}, WrapError(err, ErrCheckpoint, "checkpoint is not resumable").
					WithContext("checkpoint", req.ResumeFrom)
			}
			return nil, checkpoint.RunMetadata{}, WrapError(err, ErrFileRead, "failed to read checkpoint").
				WithContext("checkpoint", req.ResumeFrom)
		}
		return store, meta, nil
	}

	if _, err := os.Stat(req.InputFile); err != nil {
		return nil, checkpoint.RunMetadata{}, WrapError(err, ErrFileNotFound, "input table not found").
			WithContext("input", req.InputFile)
	}

	store, err := record.LoadFile(req.InputFile, source, target)
	if err != nil {
		var schemaErr *record.SchemaError
		if errors.As(err, &schemaErr) {
			return nil, checkpoint.RunMetadata{}, WrapError(err, ErrSchema, "input table is missing required columns").
				WithContext("input", req.InputFile)
		}
		return nil, checkpoint.RunMetadata{}, WrapError(err, ErrFileRead, "failed to parse input table").
			WithContext("input", req.InputFile)
	}

	meta := checkpoint.RunMetadata{TargetLanguage: record.LanguageName(target)}
	return store, meta, nil
}

func (r *Runner) recordRun(ctx context.Context, req FileRequest, output string, store *record.Store, ctl *job.Controller, state string) {
	if r.ledger == nil {
		return
	}

	a := ctl.Analytics()
	m := ctl.Meta()
	if m.RunID == "" {
		return
	}
	started := m.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}

	entry := persistence.RunEntry{
		RunID:              m.RunID,
		StartedAt:          started,
		JobID:              req.JobID,
		InputFile:          req.InputFile,
		OutputFile:         output,
		TargetLanguage:     record.LanguageName(r.cfg.Translate.TargetLanguage),
		RecordsTotal:       a.Total,
		RecordsProcessed:   a.Processed,
		ValuesTranslated:   a.ValuesTranslated,
		FormulasTranslated: a.FormulasTranslated,
		RowsFailed:         a.Failed,
		ElapsedSeconds:     a.ElapsedSeconds,
		State:              state,
		UpdatedAt:          time.Now().UTC(),
	}
	if !m.LastCheckpointAt.IsZero() {
		entry.LastCheckpoint = m.LastCheckpointAt.Format(time.RFC3339)
	}

	if err := r.ledger.UpsertRun(ctx, entry); err != nil {
		log.Warn("Failed to record run %s in ledger: %v", entry.RunID, err)
	}
}
