package job

import "context"

// QueueStore persists queued jobs so a restart can pick up unfinished work.
type QueueStore interface {
	LoadJobs(ctx context.Context) ([]*TranslationJob, error)
	UpsertJob(ctx context.Context, job *TranslationJob) error
	DeleteJob(ctx context.Context, jobID string) error
}
