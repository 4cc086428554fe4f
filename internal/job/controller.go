// Package job orchestrates translation runs: the Controller drives one
// table through the transformation engine with pause/resume and periodic
// checkpoints, and the Queue schedules whole-file runs for watch mode.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftworx/statement-translator/internal/checkpoint"
	"github.com/draftworx/statement-translator/internal/engine"
	"github.com/draftworx/statement-translator/internal/ratelimit"
	"github.com/draftworx/statement-translator/internal/record"
	"github.com/draftworx/statement-translator/pkg/log"
)

// State of a translation run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Analytics is a point-in-time view of run progress, recomputed from row
// state on every observation.
type Analytics struct {
	Total              int
	Processed          int
	Complete           int
	Failed             int
	ValuesTranslated   int
	FormulasTranslated int
	ElapsedSeconds     float64
	RatePerSecond      float64
	RemainingSeconds   float64
	RemainingKnown     bool
}

// Controller owns the live record store for the duration of one run. Rows
// are processed strictly sequentially; pause takes effect at row
// boundaries, never mid-row.
type Controller struct {
	store    *record.Store
	engine   *engine.Engine
	limiter  *ratelimit.Limiter
	ckpts    *checkpoint.Manager
	interval int

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	meta    checkpoint.RunMetadata
	summary record.Summary
	now     func() time.Time
}

// NewController wires a run over an already-loaded store. interval is the
// checkpoint cadence in processed rows; meta may carry state restored from
// a checkpoint (its counters are recomputed before the run starts).
func NewController(store *record.Store, eng *engine.Engine, limiter *ratelimit.Limiter, ckpts *checkpoint.Manager, interval int, meta checkpoint.RunMetadata) *Controller {
	c := &Controller{
		store:    store,
		engine:   eng,
		limiter:  limiter,
		ckpts:    ckpts,
		interval: interval,
		state:    StateIdle,
		meta:     meta,
		summary:  store.Summarize(),
		now:      time.Now,
	}
	c.meta.RecordsTotal = c.summary.Total
	c.meta.RowsFailed = c.summary.Failed
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the current run state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Meta returns a snapshot of the run metadata.
func (c *Controller) Meta() checkpoint.RunMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Pause requests a halt at the next row boundary. The in-flight row, if
// any, completes first.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return fmt.Errorf("cannot pause job in state %s", c.state)
	}
	c.state = StatePaused
	log.Info("Pause requested, honoring at next row boundary")
	return nil
}

// Resume continues a paused run from the next unprocessed row.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return fmt.Errorf("cannot resume job in state %s", c.state)
	}
	c.state = StateRunning
	c.cond.Broadcast()
	return nil
}

// Analytics reports progress as of the last finalized row. The counters
// come from row state, never from persisted metadata; the controller
// recomputes them after every row so observers see a consistent snapshot
// without touching the live store.
func (c *Controller) Analytics() Analytics {
	c.mu.Lock()
	started := c.meta.StartedAt
	sum := c.summary
	c.mu.Unlock()

	a := Analytics{
		Total:              sum.Total,
		Processed:          sum.Terminal,
		Complete:           sum.Complete,
		Failed:             sum.Failed,
		ValuesTranslated:   sum.TranslatedValues,
		FormulasTranslated: sum.TranslatedFormulas,
	}
	if !started.IsZero() {
		a.ElapsedSeconds = c.now().Sub(started).Seconds()
	}
	if a.ElapsedSeconds > 0 {
		a.RatePerSecond = float64(a.Processed) / a.ElapsedSeconds
	}
	if a.RatePerSecond > 0 {
		a.RemainingSeconds = float64(a.Total-a.Processed) / a.RatePerSecond
		a.RemainingKnown = true
	}
	return a
}

// Run processes every non-terminal row in stored order, checkpointing at
// the configured interval and once more on completion. Rows already
// Complete or Failed (e.g. restored from a checkpoint) are skipped. Returns
// the final metadata; the error is non-nil only for cancellation or a
// failure to load/save that prevents the run from finishing.
func (c *Controller) Run(ctx context.Context) (checkpoint.RunMetadata, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return checkpoint.RunMetadata{}, fmt.Errorf("cannot start job in state %s", state)
	}
	c.state = StateRunning
	if c.meta.RunID == "" {
		c.meta.RunID = uuid.NewString()
	}
	c.meta.StartedAt = c.now()
	started := c.meta.StartedAt
	runID := c.meta.RunID
	c.mu.Unlock()

	// Wake the pause wait when the context is cancelled.
	stopWatch := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stopWatch()

	total := c.store.Len()
	processed := c.store.Summarize().Terminal
	log.Info("Run %s started: %d rows, %d already terminal", runID, total, processed)

	for i := 0; i < total; i++ {
		if err := c.waitIfPaused(ctx); err != nil {
			return c.finishMeta(), err
		}

		rec, err := c.store.RowAt(i)
		if err != nil {
			c.setState(StateFailed)
			return c.finishMeta(), err
		}
		if rec.Status.Terminal() {
			continue
		}

		updated, err := c.engine.ProcessRow(ctx, rec)
		if err != nil {
			// Only context errors escape the engine; row failures are
			// absorbed into row status.
			c.setState(StateIdle)
			return c.finishMeta(), err
		}

		if err := c.store.SetTargets(i, updated.TargetValue, updated.TargetFormula); err != nil {
			c.setState(StateFailed)
			return c.finishMeta(), err
		}
		if err := c.store.SetStatus(i, updated.Status); err != nil {
			c.setState(StateFailed)
			return c.finishMeta(), err
		}
		processed++

		c.updateMeta(started, processed)

		if c.ckpts != nil && c.ckpts.ShouldCheckpoint(processed, c.interval) {
			c.saveCheckpoint(checkpoint.Progress)
		}

		if c.limiter != nil && i < total-1 {
			if err := c.limiter.Acquire(ctx, processed); err != nil {
				c.setState(StateIdle)
				return c.finishMeta(), err
			}
		}
	}

	c.updateMeta(started, processed)
	c.setState(StateCompleted)
	if c.ckpts != nil {
		c.saveCheckpoint(checkpoint.Final)
	}

	meta := c.finishMeta()
	log.Info("Run %s completed: %d/%d rows processed, %d failed",
		runID, meta.RecordsProcessed, total, c.store.Summarize().Failed)
	return meta, nil
}

// waitIfPaused blocks at a row boundary while the run is paused.
func (c *Controller) waitIfPaused(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == StatePaused && ctx.Err() == nil {
		c.cond.Wait()
	}
	if ctx.Err() != nil {
		c.state = StateIdle
		return ctx.Err()
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) updateMeta(started time.Time, processed int) {
	sum := c.store.Summarize()
	c.mu.Lock()
	c.summary = sum
	c.meta.RecordsTotal = sum.Total
	c.meta.RecordsProcessed = processed
	c.meta.ValuesTranslated = sum.TranslatedValues
	c.meta.FormulasTranslated = sum.TranslatedFormulas
	c.meta.RowsFailed = sum.Failed
	c.meta.ElapsedSeconds = c.now().Sub(started).Seconds()
	c.mu.Unlock()
}

func (c *Controller) finishMeta() checkpoint.RunMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// saveCheckpoint logs and swallows write failures: a missed snapshot is
// retried at the next interval, the run itself continues.
func (c *Controller) saveCheckpoint(kind checkpoint.Kind) {
	c.mu.Lock()
	meta := c.meta
	c.mu.Unlock()

	handle, err := c.ckpts.Save(c.store, meta, kind)
	if err != nil {
		log.Error("Checkpoint save failed, continuing run: %v", err)
		return
	}

	c.mu.Lock()
	c.meta.LastCheckpointAt = handle.Timestamp
	c.mu.Unlock()
}
