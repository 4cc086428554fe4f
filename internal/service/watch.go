package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/draftworx/statement-translator/internal/checkpoint"
	"github.com/draftworx/statement-translator/internal/config"
	"github.com/draftworx/statement-translator/internal/job"
	"github.com/draftworx/statement-translator/internal/record"
	"github.com/draftworx/statement-translator/pkg/file"
	"github.com/draftworx/statement-translator/pkg/icron"
	"github.com/draftworx/statement-translator/pkg/log"
)

// WatchService periodically scans the input directory for new flat files
// and enqueues them for translation. Scans run on a cron schedule and are
// collapsed through singleflight so a slow scan is never overlapped by the
// next tick.
type WatchService struct {
	cfg    config.Config
	cron   *cron.Cron
	queue  *job.Queue
	runner *Runner

	group           singleflight.Group
	lastTriggerTime time.Time
}

func NewWatchService(cfg config.Config, c *cron.Cron, queue *job.Queue, runner *Runner) *WatchService {
	return &WatchService{
		cfg:    cfg,
		cron:   c,
		queue:  queue,
		runner: runner,
	}
}

// Schedule starts the queue workers and registers the scan job. The first
// scan window opens at the schedule's previous trigger time, so files that
// arrived while the service was down are still picked up.
func (s *WatchService) Schedule(ctx context.Context) error {
	expr := s.cfg.Translate.CronExpr
	info, err := icron.GetTriggerInfo(expr, time.Now())
	if err != nil {
		return WrapError(err, ErrConfig, "invalid watch schedule").WithContext("cron", expr)
	}
	s.lastTriggerTime = info.Last

	s.queue.Start(s.execute)

	runFunc := func() {
		_, _, _ = s.group.Do("scan", func() (any, error) {
			s.scan()
			return nil, nil
		})
	}
	if _, err := s.cron.AddFunc(expr, runFunc); err != nil {
		return WrapError(err, ErrConfig, "failed to register watch schedule").WithContext("cron", expr)
	}

	log.Info("Watching %s on schedule %q (next run %s)", s.cfg.Storage.InputDir, expr, info.Next)
	return nil
}

// Stop drains the queue workers.
func (s *WatchService) Stop() {
	s.queue.Stop()
}

func (s *WatchService) scan() {
	dir := s.cfg.Storage.InputDir
	since := s.lastTriggerTime
	s.lastTriggerTime = time.Now()

	found, err := file.FindRecentAfter(dir, since)
	if err != nil {
		log.Error("Failed to scan %s: %v", dir, err)
		return
	}

	langName := record.LanguageName(s.cfg.Translate.TargetLanguage)
	enqueued := 0
	for _, path := range found {
		if !s.isCandidate(path) || !s.wantsTranslation(path) {
			continue
		}
		j, created := s.queue.Enqueue(job.EnqueueRequest{
			Source:    "watch",
			DedupeKey: fmt.Sprintf("%s|%s", path, langName),
			Payload: job.Payload{
				InputFile:      path,
				OutputFile:     s.runner.OutputPath(path),
				TargetLanguage: langName,
			},
		})
		if created {
			enqueued++
			log.Info("Enqueued %s as job %s", path, j.ID)
		}
	}
	if enqueued > 0 {
		log.Info("Scan of %s enqueued %d new files", dir, enqueued)
	}
}

// isCandidate filters on the name alone: CSVs that are neither checkpoint
// snapshots nor outputs of an earlier run.
func (s *WatchService) isCandidate(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return false
	}
	name := filepath.Base(path)
	if checkpoint.IsSnapshotName(name) {
		return false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return !strings.Contains(base, "_in")
}

// wantsTranslation checks the filesystem side: the file's output must not
// exist yet and its header must carry the mandatory source columns.
func (s *WatchService) wantsTranslation(path string) bool {
	if _, err := os.Stat(s.runner.OutputPath(path)); err == nil {
		log.Debug("Skipping %s, output already exists", path)
		return false
	}
	if !record.HasSourceColumns(path, s.cfg.Translate.SourceLanguage) {
		log.Debug("Skipping %s, header lacks the source columns", path)
		return false
	}
	return true
}

func (s *WatchService) execute(ctx context.Context, j *job.TranslationJob) error {
	_, err := s.runner.TranslateFile(ctx, FileRequest{
		InputFile:  j.Payload.InputFile,
		OutputFile: j.Payload.OutputFile,
		ResumeFrom: j.Payload.ResumeFrom,
		JobID:      j.ID,
	})
	return err
}
