package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestScheduleTotal(t *testing.T) {
	s := Schedule{5 * time.Second, 10 * time.Second, 15 * time.Second}
	if s.Total() != 30*time.Second {
		t.Errorf("Total = %v, want 30s", s.Total())
	}

	var empty Schedule
	if empty.Total() != 0 {
		t.Errorf("Empty schedule total = %v, want 0", empty.Total())
	}
}

func TestWait_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); err == nil {
		t.Fatal("Expected context error")
	}
}

func TestWait_Elapses(t *testing.T) {
	if err := Wait(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

func TestWithExponentialBackoff_SucceedsAfterRetries(t *testing.T) {
	cfg := &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestWithExponentialBackoff_ExhaustsAttempts(t *testing.T) {
	cfg := &Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
	}

	sentinel := errors.New("always fails")
	attempts := 0
	err := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		attempts++
		return sentinel
	})
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Final error should wrap the last failure, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestWithExponentialBackoff_StopsOnCancel(t *testing.T) {
	cfg := &Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		attempts++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("Expected context error")
	}
	if attempts > 2 {
		t.Errorf("Cancellation should stop retries early, got %d attempts", attempts)
	}
}
