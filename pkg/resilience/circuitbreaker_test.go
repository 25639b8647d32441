package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute})

	for i := 0; i < 4; i++ {
		if err := cb.Guard(); err != nil {
			t.Fatalf("Guard() rejected before threshold: %v", err)
		}
		cb.Failure()
	}
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after 4 failures = %v, want closed", got)
	}

	if err := cb.Guard(); err != nil {
		t.Fatalf("Guard() rejected at failure 5: %v", err)
	}
	cb.Failure()
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state after 5 failures = %v, want open", got)
	}

	err := cb.Guard()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Guard() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	cb.Failure()
	cb.Failure()
	cb.Success()
	cb.Failure()
	cb.Failure()
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset the count)", got)
	}
	cb.Failure()
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open after 3 consecutive failures", got)
	}
}

func TestCircuitBreakerHalfOpenSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond})

	cb.Failure()
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(30 * time.Millisecond)

	// First Guard after the reset window admits exactly one probe.
	if err := cb.Guard(); err != nil {
		t.Fatalf("Guard() after reset window = %v, want nil", err)
	}
	if got := cb.GetState(); got != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", got)
	}
	// A second caller must wait for the probe to settle.
	if err := cb.Guard(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Guard() with probe in flight = %v, want ErrCircuitOpen", err)
	}

	cb.Success()
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after probe success = %v, want closed", got)
	}
	if err := cb.Guard(); err != nil {
		t.Fatalf("Guard() after recovery = %v, want nil", err)
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond})

	cb.Failure()
	time.Sleep(30 * time.Millisecond)
	if err := cb.Guard(); err != nil {
		t.Fatalf("Guard() after reset window = %v, want nil", err)
	}
	cb.Failure()
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}
}

func TestCircuitBreakerExecute(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	boom := errors.New("boom")
	calls := 0
	fail := func() error { calls++; return boom }

	for i := 0; i < 2; i++ {
		if err := cb.Execute(fail); !errors.Is(err, boom) {
			t.Fatalf("Execute() = %v, want boom", err)
		}
	}
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	// The rejected call never reaches fn and must not bump the count.
	if err := cb.Execute(fail); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() while open = %v, want ErrCircuitOpen", err)
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2", calls)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	cb.Failure()
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	cb.Reset()
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after Reset() = %v, want closed", got)
	}
}
