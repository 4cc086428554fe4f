package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/draftworx/statement-translator/internal/config"
	"github.com/draftworx/statement-translator/pkg/log"
)

// Resilient wraps a Translator with bounded retries and a circuit breaker.
// Retries absorb transient backend failures; the breaker stops a run from
// hammering a backend that is down, surfacing the failure to the caller
// quickly so rows fall back to their source text instead of timing out one
// by one.
type Resilient struct {
	inner       Translator
	maxAttempts int
	backoff     time.Duration
	breaker     *gobreaker.CircuitBreaker
}

// NewResilient builds the retrying decorator from retry configuration.
func NewResilient(inner Translator, cfg config.RetryConfig) *Resilient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-translate",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Resilient{
		inner:       inner,
		maxAttempts: maxAttempts,
		backoff:     time.Duration(cfg.BackoffMs) * time.Millisecond,
		breaker:     breaker,
	}
}

func (r *Resilient) TranslateValue(ctx context.Context, value string) (string, error) {
	return r.execute(ctx, func() (string, error) {
		return r.inner.TranslateValue(ctx, value)
	})
}

func (r *Resilient) TranslateFormula(ctx context.Context, value, translatedValue, formula string) (string, error) {
	return r.execute(ctx, func() (string, error) {
		return r.inner.TranslateFormula(ctx, value, translatedValue, formula)
	})
}

func (r *Resilient) execute(ctx context.Context, call func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := r.breaker.Execute(func() (interface{}, error) {
			return call()
		})
		if err == nil {
			return result.(string), nil
		}
		lastErr = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", fmt.Errorf("translation backend unavailable: %w", err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < r.maxAttempts {
			delay := r.backoff * time.Duration(1<<(attempt-1))
			log.Warn("Translation attempt %d/%d failed: %v, retrying in %s", attempt, r.maxAttempts, err, delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return "", lastErr
}
