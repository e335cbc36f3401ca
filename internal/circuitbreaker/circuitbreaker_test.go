package circuitbreaker

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreakerClosed(t *testing.T) {
	t.Run("allows requests while closed", func(t *testing.T) {
		cb := New(DefaultConfig())

		for i := 0; i < 20; i++ {
			if !cb.Allow() {
				t.Fatalf("expected request %d to be allowed", i)
			}
		}
		if cb.State() != StateClosed {
			t.Fatalf("expected closed state, got %s", cb.State())
		}
	})

	t.Run("stays closed below minimum samples", func(t *testing.T) {
		cb := New(Config{
			WindowSize:           10,
			MinimumSamples:       5,
			FailureRateThreshold: 0.5,
			CoolDown:             time.Second,
			TrialCount:           1,
		})

		// 4 failures out of 4 is a 100% rate but under the sample floor
		for i := 0; i < 4; i++ {
			cb.Failure()
		}

		if cb.State() != StateClosed {
			t.Fatalf("expected closed state, got %s", cb.State())
		}
		if !cb.Allow() {
			t.Fatal("expected request to be allowed")
		}
	})

	t.Run("opens when failure rate exceeds threshold", func(t *testing.T) {
		cb := New(Config{
			WindowSize:           5,
			MinimumSamples:       5,
			FailureRateThreshold: 0.5,
			CoolDown:             time.Minute,
			TrialCount:           1,
		})

		// 3 failures out of 5 samples: 0.6 > 0.5
		cb.Success()
		cb.Success()
		cb.Failure()
		cb.Failure()
		cb.Failure()

		if cb.State() != StateOpen {
			t.Fatalf("expected open state, got %s", cb.State())
		}
		if cb.Allow() {
			t.Fatal("expected request to be rejected")
		}
	})

	t.Run("stays closed at exactly the threshold", func(t *testing.T) {
		cb := New(Config{
			WindowSize:           10,
			MinimumSamples:       10,
			FailureRateThreshold: 0.5,
			CoolDown:             time.Minute,
			TrialCount:           1,
		})

		// 5 of 10 is exactly the threshold; the rate must exceed it to open
		for i := 0; i < 5; i++ {
			cb.Success()
			cb.Failure()
		}

		if cb.State() != StateClosed {
			t.Fatalf("expected closed state, got %s", cb.State())
		}
	})

	t.Run("window evicts oldest outcomes", func(t *testing.T) {
		cb := New(Config{
			WindowSize:           5,
			MinimumSamples:       5,
			FailureRateThreshold: 0.5,
			CoolDown:             time.Minute,
			TrialCount:           1,
		})

		// Fill the window with failures short of the floor, then push them
		// out with successes. The early failures must not count forever.
		cb.Failure()
		cb.Failure()
		cb.Failure()
		for i := 0; i < 5; i++ {
			cb.Success()
		}

		stats := cb.Stats()
		if stats.Failures != 0 {
			t.Fatalf("expected 0 failures in window, got %d", stats.Failures)
		}
		if cb.State() != StateClosed {
			t.Fatalf("expected closed state, got %s", cb.State())
		}
	})
}

func TestCircuitBreakerOpen(t *testing.T) {
	t.Run("transitions to half-open after cool-down", func(t *testing.T) {
		cb := New(Config{
			WindowSize:           5,
			MinimumSamples:       1,
			FailureRateThreshold: 0.5,
			CoolDown:             20 * time.Millisecond,
			TrialCount:           2,
		})

		cb.Failure()
		if cb.State() != StateOpen {
			t.Fatalf("expected open state, got %s", cb.State())
		}
		if cb.Allow() {
			t.Fatal("expected request to be rejected while open")
		}

		time.Sleep(30 * time.Millisecond)

		if !cb.Allow() {
			t.Fatal("expected trial request to be allowed after cool-down")
		}
		if cb.State() != StateHalfOpen {
			t.Fatalf("expected half-open state, got %s", cb.State())
		}
	})

	t.Run("ignores late results while open", func(t *testing.T) {
		cb := New(Config{
			WindowSize:           5,
			MinimumSamples:       1,
			FailureRateThreshold: 0.5,
			CoolDown:             time.Minute,
			TrialCount:           1,
		})

		cb.Failure()
		cb.Success()
		cb.Failure()

		if cb.State() != StateOpen {
			t.Fatalf("expected open state, got %s", cb.State())
		}
	})
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	newHalfOpen := func(t *testing.T, trials int) *CircuitBreaker {
		t.Helper()
		cb := New(Config{
			WindowSize:           5,
			MinimumSamples:       1,
			FailureRateThreshold: 0.5,
			CoolDown:             10 * time.Millisecond,
			TrialCount:           trials,
		})
		cb.Failure()
		time.Sleep(20 * time.Millisecond)
		return cb
	}

	t.Run("limits trial requests to the budget", func(t *testing.T) {
		cb := newHalfOpen(t, 3)

		for i := 0; i < 3; i++ {
			if !cb.Allow() {
				t.Fatalf("expected trial %d to be allowed", i)
			}
		}
		if cb.Allow() {
			t.Fatal("expected request beyond trial budget to be rejected")
		}
	})

	t.Run("closes after all trials succeed", func(t *testing.T) {
		cb := newHalfOpen(t, 3)

		for i := 0; i < 3; i++ {
			if !cb.Allow() {
				t.Fatalf("expected trial %d to be allowed", i)
			}
			cb.Success()
		}

		if cb.State() != StateClosed {
			t.Fatalf("expected closed state, got %s", cb.State())
		}
		// Recovery starts with an empty window
		if stats := cb.Stats(); stats.WindowFill != 0 || stats.Failures != 0 {
			t.Fatalf("expected empty window after recovery, got %+v", stats)
		}
	})

	t.Run("re-opens on any trial failure", func(t *testing.T) {
		cb := newHalfOpen(t, 3)

		cb.Allow()
		cb.Success()
		cb.Allow()
		cb.Failure()

		if cb.State() != StateOpen {
			t.Fatalf("expected open state, got %s", cb.State())
		}
		if cb.Allow() {
			t.Fatal("expected request to be rejected after re-open")
		}
	})

	t.Run("re-open restarts the cool-down", func(t *testing.T) {
		cb := newHalfOpen(t, 1)

		cb.Allow()
		cb.Failure()

		// Immediately after the re-open the circuit must still reject
		if cb.Allow() {
			t.Fatal("expected request to be rejected right after re-open")
		}

		time.Sleep(20 * time.Millisecond)
		if !cb.Allow() {
			t.Fatal("expected trial after the restarted cool-down")
		}
	})
}

func TestCircuitBreakerStateChange(t *testing.T) {
	t.Run("notifies on transitions", func(t *testing.T) {
		var mu sync.Mutex
		var transitions []string
		done := make(chan struct{}, 10)

		cb := New(Config{
			WindowSize:           5,
			MinimumSamples:       1,
			FailureRateThreshold: 0.5,
			CoolDown:             time.Minute,
			TrialCount:           1,
			OnStateChange: func(from, to State) {
				mu.Lock()
				transitions = append(transitions, from.String()+"->"+to.String())
				mu.Unlock()
				done <- struct{}{}
			},
		})

		cb.Failure()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for state change callback")
		}

		mu.Lock()
		defer mu.Unlock()
		if len(transitions) != 1 || transitions[0] != "closed->open" {
			t.Fatalf("unexpected transitions: %v", transitions)
		}
	})
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := New(Config{
		WindowSize:           10,
		MinimumSamples:       5,
		FailureRateThreshold: 0.9,
		CoolDown:             time.Minute,
		TrialCount:           1,
	})

	cb.Success()
	cb.Failure()
	cb.Failure()
	cb.Success()

	stats := cb.Stats()
	if stats.State != StateClosed {
		t.Errorf("expected closed state, got %s", stats.State)
	}
	if stats.WindowFill != 4 {
		t.Errorf("expected window fill 4, got %d", stats.WindowFill)
	}
	if stats.Failures != 2 {
		t.Errorf("expected 2 failures, got %d", stats.Failures)
	}
	if stats.FailureRate != 0.5 {
		t.Errorf("expected failure rate 0.5, got %f", stats.FailureRate)
	}
}

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", c.state, got, c.want)
		}
	}
}
