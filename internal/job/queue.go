package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftworx/statement-translator/pkg/log"
)

// Executor runs one queued file translation end to end.
type Executor func(ctx context.Context, job *TranslationJob) error

// Queue schedules file translations one at a time per worker. A file under
// active translation must not be picked up again, so repeat enqueues for
// the same dedupe key return the existing job instead of a new one.
// Jobs survive restarts through the optional QueueStore.
type Queue struct {
	workerCount int
	maxJobs     int
	store       QueueStore

	mu         sync.RWMutex
	jobs       map[string]*TranslationJob
	dedupe     map[string]string
	started    bool
	pendingIDs chan string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewQueue builds a queue with the given parallelism and hydrates any
// persisted jobs. Jobs found in the running state were interrupted by a
// shutdown and are requeued as pending; their row-level progress is
// recovered from checkpoints, not from the queue.
func NewQueue(workerCount int, store QueueStore) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     500,
		store:       store,
		jobs:        make(map[string]*TranslationJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 256),
		stopCh:      make(chan struct{}),
	}
	q.hydrate(context.Background())
	return q
}

// Enqueue registers a file translation. The second return value is false
// when an equivalent job was already queued or running.
func (q *Queue) Enqueue(req EnqueueRequest) (*TranslationJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.DedupeKey]; ok {
		if existing, exists := q.jobs[id]; exists {
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	j := &TranslationJob{
		ID:        uuid.NewString(),
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    QueuePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[j.ID] = j
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = j.ID
	}
	started := q.started
	snapshot := cloneJob(j)
	q.mu.Unlock()

	q.persist(snapshot)
	if started {
		q.dispatch(j.ID)
	}
	return snapshot, true
}

// Get returns a snapshot of one job.
func (q *Queue) Get(id string) (*TranslationJob, bool) {
	q.mu.RLock()
	j, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(j), true
}

// List returns snapshots of all known jobs, oldest first.
func (q *Queue) List() []*TranslationJob {
	q.mu.RLock()
	ret := make([]*TranslationJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		ret = append(ret, cloneJob(j))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.Before(ret[j].CreatedAt) })
	return ret
}

// Start launches the workers and dispatches any pending jobs, including
// hydrated ones.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]string, 0)
	for id, j := range q.jobs {
		if j.Status == QueuePending {
			pending = append(pending, id)
		}
	}
	q.mu.Unlock()

	for _, id := range pending {
		q.dispatch(id)
	}
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop shuts the workers down after their current jobs finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pendingIDs:
			j, ok := q.transition(id, QueuePending, QueueRunning, nil)
			if !ok {
				continue
			}
			if err := exec(context.Background(), j); err != nil {
				log.Error("Job %s failed: %v", id, err)
				q.transition(id, QueueRunning, QueueFailed, err)
				continue
			}
			q.transition(id, QueueRunning, QueueSuccess, nil)
		}
	}
}

func (q *Queue) dispatch(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		// Overflow path: block in a goroutine, but give up once the queue
		// stops so nothing leaks waiting on workers that are gone.
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.stopCh:
			}
		}()
	}
}

// transition moves a job between states, releasing its dedupe key and
// pruning old terminal jobs when the new state is terminal.
func (q *Queue) transition(id string, from, to QueueStatus, cause error) (*TranslationJob, bool) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.Status != from {
		q.mu.Unlock()
		return nil, false
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	j.Error = ""
	if cause != nil {
		j.Error = cause.Error()
	}

	var pruned []string
	if to == QueueSuccess || to == QueueFailed {
		q.releaseDedupeLocked(j)
		pruned = q.pruneLocked()
	}
	snapshot := cloneJob(j)
	q.mu.Unlock()

	q.persist(snapshot)
	q.forget(pruned)
	return snapshot, true
}

func (q *Queue) releaseDedupeLocked(j *TranslationJob) {
	if j.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[j.DedupeKey]; ok && id == j.ID {
		delete(q.dedupe, j.DedupeKey)
	}
}

// pruneLocked evicts the oldest terminal jobs once the map outgrows
// maxJobs. Pending and running jobs are never evicted.
func (q *Queue) pruneLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.jobs))
	for id, j := range q.jobs {
		if j.Status == QueuePending || j.Status == QueueRunning {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: j.UpdatedAt})
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := len(q.jobs) - q.maxJobs
	if toRemove > len(terminal) {
		toRemove = len(terminal)
	}

	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := terminal[i].id
		q.releaseDedupeLocked(q.jobs[id])
		delete(q.jobs, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func (q *Queue) hydrate(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load queued jobs from store: %v", err)
		return
	}

	now := time.Now()
	requeued := make([]*TranslationJob, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		j := cloneJob(raw)
		if j.Status == QueueRunning {
			j.Status = QueuePending
			j.UpdatedAt = now
			requeued = append(requeued, cloneJob(j))
		}
		q.jobs[j.ID] = j
		if j.Status == QueuePending && j.DedupeKey != "" {
			q.dedupe[j.DedupeKey] = j.ID
		}
	}
	q.mu.Unlock()

	for _, j := range requeued {
		q.persist(j)
	}
	if len(loaded) > 0 {
		log.Info("Hydrated %d queued jobs from store (%d requeued)", len(loaded), len(requeued))
	}
}

func (q *Queue) persist(j *TranslationJob) {
	if q.store == nil || j == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), j); err != nil {
		log.Error("Failed to persist job %s: %v", j.ID, err)
	}
}

func (q *Queue) forget(ids []string) {
	if q.store == nil {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete pruned job %s from store: %v", id, err)
		}
	}
}

func cloneJob(j *TranslationJob) *TranslationJob {
	if j == nil {
		return nil
	}
	tmp := *j
	return &tmp
}
