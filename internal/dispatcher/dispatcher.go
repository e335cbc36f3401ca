// Package dispatcher orchestrates request dispatch: route lookup, circuit
// gating, endpoint selection, token attachment, the downstream call, and
// fallback conversion.
package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cloudgateway/internal/circuitbreaker"
	"cloudgateway/internal/core"
	"cloudgateway/internal/router"
	"cloudgateway/internal/token"
	"cloudgateway/pkg/errors"
	"cloudgateway/pkg/metrics"
)

// Fallback reasons recorded in logs and metrics
const (
	reasonCircuitOpen = "circuit_open"
	reasonNoInstance  = "no_instance"
	reasonAuth        = "auth"
	reasonTimeout     = "timeout"
	reasonDownstream  = "downstream"
	reasonBadStatus   = "bad_status"
)

// Dispatcher resolves, authenticates and executes downstream calls with
// per-route circuit protection. Every error class is converted to the
// route's fallback response; callers never see an unhandled failure.
type Dispatcher struct {
	router    *router.Router
	breakers  *circuitbreaker.Registry
	tokens    *token.Manager
	connector core.Connector
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New creates a dispatcher. All collaborators are passed in explicitly and
// shared by reference for the process lifetime.
func New(rt *router.Router, breakers *circuitbreaker.Registry, tokens *token.Manager, connector core.Connector, m *metrics.Metrics, tracer trace.Tracer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		router:    rt,
		breakers:  breakers,
		tokens:    tokens,
		connector: connector,
		metrics:   m,
		tracer:    tracer,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Dispatch implements core.Handler. An unmatched path returns a not-found
// error; everything past route lookup resolves to either the real response
// or the route's fallback.
func (d *Dispatcher) Dispatch(ctx context.Context, req core.Request) (core.Response, error) {
	route, err := d.router.Match(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("route.id", route.ID),
			attribute.String("route.service", route.ServiceName),
		),
	)
	defer span.End()

	resp, reason := d.dispatch(ctx, req, route)

	outcome := "success"
	if reason != "" {
		outcome = "fallback"
		span.SetStatus(codes.Error, reason)
		span.SetAttributes(attribute.String("fallback.reason", reason))
		if d.metrics != nil {
			d.metrics.FallbacksTotal.WithLabelValues(route.ID, reason).Inc()
		}
	}
	if d.metrics != nil {
		d.metrics.RequestsTotal.WithLabelValues(route.ID, outcome).Inc()
		d.metrics.RequestDuration.WithLabelValues(route.ID).Observe(time.Since(start).Seconds())
	}

	return resp, nil
}

// dispatch runs the call chain and returns the response plus a non-empty
// fallback reason when the real call could not complete
func (d *Dispatcher) dispatch(ctx context.Context, req core.Request, route *core.Route) (core.Response, string) {
	breaker := d.breakers.Get(route.ID, route.Breaker)

	// A denied call skips endpoint resolution and token fetch entirely.
	if !breaker.Allow() {
		d.logger.Warn("circuit open, serving fallback",
			"route", route.ID,
			"service", route.ServiceName,
		)
		return d.fallback(route, reasonCircuitOpen), reasonCircuitOpen
	}

	instance, err := d.router.Select(route.ServiceName)
	if err != nil {
		// A persistently empty fleet must open the breaker too.
		breaker.Failure()
		d.logger.Warn("no live instance, serving fallback",
			"route", route.ID,
			"service", route.ServiceName,
		)
		return d.fallback(route, reasonNoInstance), reasonNoInstance
	}

	bearer := ""
	if route.Profile != "" {
		bearer, err = d.tokens.GetToken(ctx, route.Profile)
		if err != nil {
			// An auth outage counts toward tripping protection rather than
			// being retried indefinitely.
			breaker.Failure()
			d.logger.Error("token acquisition failed, serving fallback",
				"route", route.ID,
				"profile", route.Profile,
				"error", err,
			)
			return d.fallback(route, reasonAuth), reasonAuth
		}
	}

	resp, err := d.connector.Call(ctx, req, instance, bearer, route.Timeout)
	if err != nil {
		breaker.Failure()
		reason := reasonDownstream
		if errors.IsType(err, errors.ErrorTypeTimeout) {
			reason = reasonTimeout
		}
		d.logger.Warn("downstream call failed, serving fallback",
			"route", route.ID,
			"instance", instance.HostPort(),
			"reason", reason,
			"error", err,
		)
		return d.fallback(route, reason), reason
	}

	if resp.StatusCode() >= 500 {
		breaker.Failure()
		drain(resp)
		d.logger.Warn("downstream returned server error, serving fallback",
			"route", route.ID,
			"instance", instance.HostPort(),
			"status", resp.StatusCode(),
		)
		return d.fallback(route, reasonBadStatus), reasonBadStatus
	}

	breaker.Success()
	return resp, ""
}

// fallback builds the route's configured fallback response
func (d *Dispatcher) fallback(route *core.Route, reason string) core.Response {
	return &fallbackResponse{
		statusCode: route.Fallback.StatusCode,
		headers: map[string][]string{
			"Content-Type":       {route.Fallback.ContentType},
			"X-Gateway-Fallback": {reason},
		},
		body: io.NopCloser(strings.NewReader(route.Fallback.Body)),
	}
}

// drain discards and closes an abandoned response body so the connection
// can be reused
func drain(resp core.Response) {
	if body := resp.Body(); body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
		_ = body.Close()
	}
}

// fallbackResponse implements core.Response for fallback payloads
type fallbackResponse struct {
	statusCode int
	headers    map[string][]string
	body       io.ReadCloser
}

func (r *fallbackResponse) StatusCode() int {
	return r.statusCode
}

func (r *fallbackResponse) Headers() map[string][]string {
	return r.headers
}

func (r *fallbackResponse) Body() io.ReadCloser {
	return r.body
}
