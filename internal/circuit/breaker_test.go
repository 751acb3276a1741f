package circuit

import (
	"context"
	"testing"
	"time"

	"github.com/arbortree/arbor/pkg/errors"
)

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"closed", StateClosed, "CLOSED"},
		{"open", StateOpen, "OPEN"},
		{"half-open", StateHalfOpen, "HALF_OPEN"},
		{"unknown", State(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	cb := New("s3adapter", Config{})

	if cb.Name() != "s3adapter" {
		t.Errorf("Name() = %q, want %q", cb.Name(), "s3adapter")
	}
	if cb.GetState() != StateClosed {
		t.Errorf("initial state = %v, want %v", cb.GetState(), StateClosed)
	}
	if cb.config.MaxRequests != 1 {
		t.Errorf("default MaxRequests = %d, want 1", cb.config.MaxRequests)
	}
	if cb.config.Interval != 60*time.Second {
		t.Errorf("default Interval = %v, want %v", cb.config.Interval, 60*time.Second)
	}
	if cb.config.Timeout != 60*time.Second {
		t.Errorf("default Timeout = %v, want %v", cb.config.Timeout, 60*time.Second)
	}
}

func TestBreaker_TripsOpenOnFailures(t *testing.T) {
	t.Parallel()

	cb := New("s3adapter", Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	failing := errors.New(errors.CodeSourceUnavailable, "s3adapter", "children", "throttled")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return failing })
		if err != failing {
			t.Errorf("attempt %d: err = %v, want %v", i, err, failing)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want %v after 3 consecutive failures", cb.GetState(), StateOpen)
	}

	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, errors.CodeSourceUnavailable) {
		t.Errorf("open breaker should reject with CodeSourceUnavailable, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	cb := New("fsadapter", Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})

	failing := errors.New(errors.CodeSourceUnavailable, "fsadapter", "children", "boom")
	_ = cb.Execute(func() error { return failing })
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want %v", cb.GetState(), StateOpen)
	}

	time.Sleep(20 * time.Millisecond)
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state = %v, want %v after timeout elapses", cb.GetState(), StateHalfOpen)
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("probe request should succeed, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want %v after successful probe", cb.GetState(), StateClosed)
	}
}

func TestBreaker_ExecuteWithContext(t *testing.T) {
	t.Parallel()

	cb := New("s3adapter", Config{})
	ctx := context.Background()

	called := false
	err := cb.ExecuteWithContext(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if !called {
		t.Error("fn was not called")
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := New("s3adapter", Config{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_ = cb.Execute(func() error { return errors.New(errors.CodeSourceUnavailable, "s3adapter", "children", "x") })
	if cb.GetState() != StateOpen {
		t.Fatal("expected breaker to be open")
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("state after Reset() = %v, want %v", cb.GetState(), StateClosed)
	}
	if cb.GetCounts().Requests != 0 {
		t.Error("Reset() should clear counts")
	}
}

func TestManager_GetBreakerCreatesOnce(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{})

	b1 := m.GetBreaker("s3adapter")
	b2 := m.GetBreaker("s3adapter")
	if b1 != b2 {
		t.Error("GetBreaker should return the same instance for the same name")
	}

	b3 := m.GetBreaker("fsadapter")
	if b1 == b3 {
		t.Error("GetBreaker should return distinct instances for distinct names")
	}
}

func TestManager_GetBreakerIsolatesState(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	b := m.GetBreaker("s3adapter")
	_ = b.Execute(func() error { return errors.New(errors.CodeSourceUnavailable, "s3adapter", "children", "x") })
	if b.GetState() != StateOpen {
		t.Fatal("expected breaker to be open")
	}

	other := m.GetBreaker("fsadapter")
	if other.GetState() != StateClosed {
		t.Errorf("unrelated breaker's state = %v, want %v", other.GetState(), StateClosed)
	}
}
