package circuitbreaker

import (
	"log/slog"
	"testing"
	"time"

	"cloudgateway/internal/core"
)

func testBreakerConfig() core.BreakerConfig {
	return core.BreakerConfig{
		WindowSize:           5,
		MinimumSamples:       1,
		FailureRateThreshold: 0.5,
		CoolDown:             time.Minute,
		TrialCount:           1,
	}
}

func TestRegistry(t *testing.T) {
	t.Run("returns the same breaker for the same route", func(t *testing.T) {
		reg := NewRegistry(slog.Default(), nil)

		first := reg.Get("orders", testBreakerConfig())
		second := reg.Get("orders", testBreakerConfig())

		if first != second {
			t.Fatal("expected the same breaker instance for one route")
		}
	})

	t.Run("isolates breakers per route", func(t *testing.T) {
		reg := NewRegistry(slog.Default(), nil)

		orders := reg.Get("orders", testBreakerConfig())
		products := reg.Get("products", testBreakerConfig())

		orders.Failure()

		if orders.State() != StateOpen {
			t.Fatalf("expected orders breaker open, got %s", orders.State())
		}
		if products.State() != StateClosed {
			t.Fatalf("expected products breaker closed, got %s", products.State())
		}
		if !products.Allow() {
			t.Fatal("expected products requests to still be allowed")
		}
	})

	t.Run("stats snapshot covers all routes", func(t *testing.T) {
		reg := NewRegistry(slog.Default(), nil)

		reg.Get("orders", testBreakerConfig()).Failure()
		reg.Get("products", testBreakerConfig())

		stats := reg.Stats()
		if len(stats) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(stats))
		}
		if stats["orders"].State != StateOpen {
			t.Errorf("expected orders open, got %s", stats["orders"].State)
		}
		if stats["products"].State != StateClosed {
			t.Errorf("expected products closed, got %s", stats["products"].State)
		}
	})
}
