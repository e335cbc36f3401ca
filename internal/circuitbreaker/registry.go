package circuitbreaker

import (
	"log/slog"
	"sync"

	"cloudgateway/internal/core"
	"cloudgateway/pkg/metrics"
)

// Registry holds one breaker per route. Breakers are created lazily on first
// use and live for the process lifetime; different routes never share a lock.
type Registry struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	breakers sync.Map // map[string]*CircuitBreaker
}

// NewRegistry creates a breaker registry
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		logger:  logger.With("component", "circuitbreaker"),
		metrics: m,
	}
}

// Get returns the breaker for a route, creating it on first use
func (r *Registry) Get(routeID string, cfg core.BreakerConfig) *CircuitBreaker {
	if breaker, ok := r.breakers.Load(routeID); ok {
		return breaker.(*CircuitBreaker)
	}

	config := Config{
		WindowSize:           cfg.WindowSize,
		MinimumSamples:       cfg.MinimumSamples,
		FailureRateThreshold: cfg.FailureRateThreshold,
		CoolDown:             cfg.CoolDown,
		TrialCount:           cfg.TrialCount,
		OnStateChange: func(from, to State) {
			r.logger.Info("circuit breaker state changed",
				"route", routeID,
				"from", from.String(),
				"to", to.String(),
			)
			if r.metrics != nil {
				r.metrics.BreakerState.WithLabelValues(routeID).Set(float64(to))
				r.metrics.BreakerTransitions.WithLabelValues(routeID, from.String(), to.String()).Inc()
			}
		},
	}

	breaker, loaded := r.breakers.LoadOrStore(routeID, New(config))
	if !loaded && r.metrics != nil {
		r.metrics.BreakerState.WithLabelValues(routeID).Set(float64(StateClosed))
	}
	return breaker.(*CircuitBreaker)
}

// Stats returns a snapshot of every breaker keyed by route ID
func (r *Registry) Stats() map[string]Stats {
	result := make(map[string]Stats)
	r.breakers.Range(func(key, value any) bool {
		result[key.(string)] = value.(*CircuitBreaker).Stats()
		return true
	})
	return result
}
