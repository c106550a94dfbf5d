package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avdeyev/sputnik/common/retry"
)

// noSleep skips waits so tests run instantly.
func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, Sleep: noSleep}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 5, Sleep: noSleep}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("still broken")
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, Sleep: noSleep}, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do: got %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestShouldRetryStopsEarly(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := retry.Do(context.Background(), retry.Config{
		MaxAttempts: 5,
		Sleep:       noSleep,
		ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	}, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do: got %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestDelayScheduleOverride(t *testing.T) {
	var delays []time.Duration
	err := retry.Do(context.Background(), retry.Config{
		MaxAttempts: 3,
		MaxDelay:    time.Minute,
		Delay:       func(attempt int) time.Duration { return time.Duration(attempt) * 20 * time.Second },
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}, func() error {
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}

	want := []time.Duration{20 * time.Second, 40 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays: got %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: got %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestMaxDelayCapsSchedule(t *testing.T) {
	var delays []time.Duration
	retry.Do(context.Background(), retry.Config{
		MaxAttempts: 3,
		MaxDelay:    time.Second,
		Delay:       func(attempt int) time.Duration { return time.Hour },
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}, func() error {
		return errors.New("transient")
	})

	if len(delays) != 2 {
		t.Fatalf("delays: got %d, want 2", len(delays))
	}
	for i, d := range delays {
		if d != time.Second {
			t.Errorf("delay %d: got %v, want %v", i, d, time.Second)
		}
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Do(ctx, retry.Config{MaxAttempts: 5, Sleep: noSleep}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do: got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}
