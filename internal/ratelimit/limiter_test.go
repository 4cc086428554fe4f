package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftworx/statement-translator/internal/config"
)

func TestAcquireDisabledReturnsImmediately(t *testing.T) {
	limiter := New(config.RateLimitConfig{
		RecordDelayMs: 500,
		BatchDelayMs:  5000,
		BatchSize:     25,
		Disabled:      true,
	})

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background(), 25))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquireBatchBoundaryAddsDelay(t *testing.T) {
	limiter := New(config.RateLimitConfig{
		RecordDelayMs: 10,
		BatchDelayMs:  60,
		BatchSize:     5,
	})

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background(), 4))
	plain := time.Since(start)

	start = time.Now()
	require.NoError(t, limiter.Acquire(context.Background(), 5))
	boundary := time.Since(start)

	assert.GreaterOrEqual(t, boundary, 70*time.Millisecond)
	assert.Less(t, plain, 60*time.Millisecond)
}

func TestAcquireCancellation(t *testing.T) {
	limiter := New(config.RateLimitConfig{
		RecordDelayMs: 10_000,
		BatchSize:     25,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- limiter.Acquire(ctx, 1)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}
