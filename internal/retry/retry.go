// Package retry provides backoff helpers for bounded polling loops and
// transient upstream failures.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Schedule is an explicit sequence of delays between attempts. Unlike
// exponential backoff it is fully enumerated, which suits protocols whose
// total wait is part of the contract.
type Schedule []time.Duration

// Total returns the sum of all delays in the schedule.
func (s Schedule) Total() time.Duration {
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total
}

// Sleeper waits for a duration or until the context is done. Overridable in
// tests to avoid real sleeps.
type Sleeper func(ctx context.Context, d time.Duration) error

// Wait is the default Sleeper.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config configures exponential backoff retries.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the default exponential backoff configuration.
// Pattern: 1s, 2s, 4s, 8s, capped at 30s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Func is an operation that can be retried.
type Func func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn up to MaxAttempts times, sleeping an
// exponentially growing delay between attempts. Returns the last error if
// all attempts fail.
func WithExponentialBackoff(ctx context.Context, cfg *Config, fn Func) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(ctx, attempt); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
		if delay > float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
		}

		if err := Wait(ctx, time.Duration(delay)); err != nil {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
