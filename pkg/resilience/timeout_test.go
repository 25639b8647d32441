package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutCompletesInTime(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithTimeout() = %v, want nil", err)
	}
}

func TestWithTimeoutPropagatesError(t *testing.T) {
	want := errors.New("probe failed")
	err := WithTimeout(context.Background(), time.Second, "failing", func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("WithTimeout() = %v, want %v", err, want)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	err := WithTimeout(context.Background(), 10*time.Millisecond, "stuck", func(ctx context.Context) error {
		<-block
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WithTimeout() = %v, want DeadlineExceeded", err)
	}
}

func TestWithTimeoutZeroRunsInline(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), 0, "inline", func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout must not impose a deadline")
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("WithTimeout() = %v, called = %v", err, called)
	}
}

func TestWithTimeoutParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)

	err := WithTimeout(ctx, time.Minute, "cancelled", func(ctx context.Context) error {
		<-block
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithTimeout() = %v, want Canceled", err)
	}
}
