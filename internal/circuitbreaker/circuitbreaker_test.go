package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var errVendor = errors.New("vendor unavailable")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Execute(context.Background(), func(context.Context) error { return errVendor })
	}
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb := New("vendor", &Config{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1}, zap.NewNop())

	failN(cb, 2)

	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed after 2 of 3 failures", cb.State())
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := New("vendor", &Config{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1}, zap.NewNop())

	failN(cb, 3)

	if !cb.IsOpen() {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn must not run while the circuit is open")
	}
	if cb.Rejected() != 1 {
		t.Errorf("rejected = %d, want 1", cb.Rejected())
	}
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb := New("vendor", &Config{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1}, zap.NewNop())

	failN(cb, 2)
	cb.Execute(context.Background(), func(context.Context) error { return nil })
	failN(cb, 2)

	if cb.State() != StateClosed {
		t.Errorf("state = %s, the streak should have reset", cb.State())
	}
}

func TestCircuitBreaker_ProbesAfterTimeout(t *testing.T) {
	// Zero OpenTimeout moves straight to half-open on the next request.
	cb := New("vendor", &Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 0, HalfOpenMaxRequests: 5}, zap.NewNop())

	failN(cb, 1)
	if !cb.IsOpen() {
		t.Fatalf("state = %s, want open", cb.State())
	}

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("state = %s, want half-open after one good probe of two", cb.State())
	}

	cb.Execute(context.Background(), func(context.Context) error { return nil })
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed after the success threshold", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := New("vendor", &Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 0, HalfOpenMaxRequests: 5}, zap.NewNop())

	failN(cb, 1)
	cb.Execute(context.Background(), func(context.Context) error { return errVendor })

	if !cb.IsOpen() {
		t.Errorf("state = %s, want open after a failed probe", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb := New("vendor", &Config{FailureThreshold: 1, SuccessThreshold: 10, OpenTimeout: 0, HalfOpenMaxRequests: 2}, zap.NewNop())

	failN(cb, 1)

	// Two probes allowed, the third is rejected.
	cb.Execute(context.Background(), func(context.Context) error { return nil })
	cb.Execute(context.Background(), func(context.Context) error { return nil })
	err := cb.Execute(context.Background(), func(context.Context) error { return nil })

	if !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("err = %v, want ErrTooManyRequests", err)
	}
}

func TestCircuitBreaker_NilConfigUsesDefaults(t *testing.T) {
	cb := New("vendor", nil, zap.NewNop())

	failN(cb, DefaultConfig().FailureThreshold)

	if !cb.IsOpen() {
		t.Errorf("state = %s, want open at the default threshold", cb.State())
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
