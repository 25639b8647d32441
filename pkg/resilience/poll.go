package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ErrPollExhausted is returned when the attempt budget runs out before the
// polled condition becomes terminal.
var ErrPollExhausted = fmt.Errorf("poll attempts exhausted")

// PollConfig controls a fixed-interval bounded poll loop.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// Sleep overrides the wait between attempts; tests inject a no-op to
	// fast-forward the loop.
	Sleep func(ctx context.Context, d time.Duration) error
}

func defaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    15 * time.Second,
		MaxAttempts: 20,
		Sleep:       sleepContext,
	}
}

// Poll invokes fn at a fixed interval until it reports done, fails, the
// context is cancelled, or MaxAttempts is reached. fn returning done=true
// stops the loop; an error from fn aborts it immediately.
func Poll(ctx context.Context, name string, cfg PollConfig, fn func(attempt int) (done bool, err error)) error {
	defaults := defaultPollConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Sleep == nil {
		cfg.Sleep = defaults.Sleep
	}
	logger := slog.Default().With("component", "poll", "operation", name)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		done, err := fn(attempt)
		if err != nil {
			return fmt.Errorf("poll %s failed at attempt %d: %w", name, attempt, err)
		}
		if done {
			logger.Debug("poll completed", "attempt", attempt)
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if err := cfg.Sleep(ctx, cfg.Interval); err != nil {
			return fmt.Errorf("poll %s aborted: %w", name, err)
		}
	}
	logger.Warn("poll budget exhausted", "attempts", cfg.MaxAttempts, "interval", cfg.Interval)
	return fmt.Errorf("%w: %s after %d attempts", ErrPollExhausted, name, cfg.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
