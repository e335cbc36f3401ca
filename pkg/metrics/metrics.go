package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// Dispatch metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FallbacksTotal  *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec

	// Token manager metrics
	TokenRefreshes *prometheus.CounterVec

	// Directory metrics
	DirectoryInstances *prometheus.GaugeVec
	HeartbeatsTotal    *prometheus.CounterVec
}

// New creates gateway metrics registered with the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total dispatched requests by route and outcome",
			},
			[]string{"route", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Dispatch duration by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_fallbacks_total",
				Help: "Fallback responses served by route and reason",
			},
			[]string{"route", "reason"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_breaker_state",
				Help: "Circuit breaker state per route (0=closed, 1=open, 2=half-open)",
			},
			[]string{"route"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_breaker_transitions_total",
				Help: "Circuit breaker state transitions per route",
			},
			[]string{"route", "from", "to"},
		),
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_token_refreshes_total",
				Help: "Token refresh attempts by credential profile and result",
			},
			[]string{"profile", "result"},
		),
		DirectoryInstances: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_directory_instances",
				Help: "Registered instances by service and liveness state",
			},
			[]string{"service", "state"},
		),
		HeartbeatsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_heartbeats_total",
				Help: "Heartbeats received by service",
			},
			[]string{"service"},
		),
	}
}
