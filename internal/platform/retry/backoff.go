// Package retry implements the exponential-backoff-with-jitter policy
// used both client-side (LLM/embedder HTTP calls) and by the task queue
// when computing a redelivery delay for a Nak'd message.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	platerrors "github.com/aegisreview/aegis/internal/platform/errors"
)

// Config holds the parameters of an exponential backoff schedule.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultQueueConfig mirrors the task queue's retry policy: three
// retries, starting at 60s, capped at 600s.
func DefaultQueueConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 60 * time.Second,
		MaxBackoff:     600 * time.Second,
		Multiplier:     2.0,
	}
}

// DefaultHTTPConfig is used by outbound HTTP clients (LLM, embedder,
// platform adapters) that need a tighter loop than the queue's
// redelivery schedule.
func DefaultHTTPConfig() Config {
	return Config{
		MaxRetries:     5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     32 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff computes the delay for the given attempt: min(initial *
// multiplier^attempt, max) with ±25% jitter.
func Backoff(attempt int, cfg Config) time.Duration {
	base := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}

	jitterRange := 0.25 * base
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	result := base + jitter

	if result > float64(cfg.MaxBackoff) {
		result = float64(cfg.MaxBackoff)
	}
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}

// Operation is a unit of work that can be retried.
type Operation func(ctx context.Context) error

// Do executes operation, retrying on platform errors.ShouldRetry
// results with exponential backoff until cfg.MaxRetries is exhausted or
// the context is cancelled.
func Do(ctx context.Context, operation Operation, cfg Config) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !platerrors.ShouldRetry(err) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return err
		}

		delay := Backoff(attempt, cfg)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
