// Package ratelimit paces outbound translation calls so long batch runs stay
// under provider request quotas.
package ratelimit

import (
	"context"
	"time"

	"github.com/draftworx/statement-translator/internal/config"
	"github.com/draftworx/statement-translator/pkg/log"
)

// Limiter applies a two-tier delay schedule: a short pause after every
// record and a longer pause after each full batch of records.
type Limiter struct {
	recordDelay time.Duration
	batchDelay  time.Duration
	batchSize   int
	disabled    bool
}

// New builds a Limiter from configuration. A non-positive batch size
// disables the batch-boundary tier.
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		recordDelay: time.Duration(cfg.RecordDelayMs) * time.Millisecond,
		batchDelay:  time.Duration(cfg.BatchDelayMs) * time.Millisecond,
		batchSize:   cfg.BatchSize,
		disabled:    cfg.Disabled,
	}
}

// Acquire blocks for the delay owed after finishing the record at position
// (1-based count of records processed so far). It returns early with the
// context's error when ctx is cancelled, so a paused or stopped job never
// sits in a sleep.
func (l *Limiter) Acquire(ctx context.Context, position int) error {
	if l.disabled {
		return nil
	}

	delay := l.recordDelay
	if l.batchSize > 0 && position > 0 && position%l.batchSize == 0 {
		delay += l.batchDelay
		log.Debug("Rate limiter batch boundary at record %d, sleeping %s", position, delay)
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
