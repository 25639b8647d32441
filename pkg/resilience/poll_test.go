package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// noSleep fast-forwards the loop without waiting.
func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestPollStopsWhenDone(t *testing.T) {
	attempts := 0
	err := Poll(context.Background(), "test", PollConfig{Interval: time.Second, MaxAttempts: 10, Sleep: noSleep},
		func(attempt int) (bool, error) {
			attempts++
			return attempt == 3, nil
		})
	if err != nil {
		t.Fatalf("Poll() = %v, want nil", err)
	}
	if attempts != 3 {
		t.Fatalf("fn called %d times, want 3", attempts)
	}
}

func TestPollExhaustsBudget(t *testing.T) {
	attempts := 0
	err := Poll(context.Background(), "test", PollConfig{Interval: time.Second, MaxAttempts: 5, Sleep: noSleep},
		func(attempt int) (bool, error) {
			attempts++
			return false, nil
		})
	if !errors.Is(err, ErrPollExhausted) {
		t.Fatalf("Poll() = %v, want ErrPollExhausted", err)
	}
	if attempts != 5 {
		t.Fatalf("fn called %d times, want 5", attempts)
	}
}

func TestPollAbortsOnError(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := Poll(context.Background(), "test", PollConfig{Interval: time.Second, MaxAttempts: 5, Sleep: noSleep},
		func(attempt int) (bool, error) {
			attempts++
			if attempt == 2 {
				return false, boom
			}
			return false, nil
		})
	if !errors.Is(err, boom) {
		t.Fatalf("Poll() = %v, want boom", err)
	}
	if attempts != 2 {
		t.Fatalf("fn called %d times, want 2", attempts)
	}
}

func TestPollStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Poll(ctx, "test", PollConfig{Interval: time.Second, MaxAttempts: 10, Sleep: sleepContext},
		func(attempt int) (bool, error) {
			attempts++
			cancel()
			return false, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Poll() = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("fn called %d times, want 1", attempts)
	}
}
