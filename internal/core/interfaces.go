package core

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Request represents an inbound request being dispatched
type Request interface {
	ID() string
	Method() string
	Path() string
	URL() string
	RemoteAddr() string
	Headers() map[string][]string
	Body() io.ReadCloser
	Context() context.Context
}

// Response represents a downstream or fallback response
type Response interface {
	StatusCode() int
	Headers() map[string][]string
	Body() io.ReadCloser
}

// Handler processes requests
type Handler func(context.Context, Request) (Response, error)

// Liveness is the heartbeat-derived state of a service instance
type Liveness int

const (
	// LivenessUp means the instance heartbeats within the grace period
	LivenessUp Liveness = iota
	// LivenessSuspect means the last heartbeat exceeded the grace period
	LivenessSuspect
	// LivenessDown means the instance timed out and is being removed
	LivenessDown
)

// String returns the string representation of the liveness state
func (l Liveness) String() string {
	switch l {
	case LivenessUp:
		return "up"
	case LivenessSuspect:
		return "suspect"
	case LivenessDown:
		return "down"
	default:
		return "unknown"
	}
}

// Instance is one running copy of a logical service
type Instance struct {
	ServiceName   string
	Address       string
	Port          int
	Scheme        string
	Liveness      Liveness
	LastHeartbeat time.Time
}

// HostPort returns the instance's address:port pair
func (i Instance) HostPort() string {
	return fmt.Sprintf("%s:%d", i.Address, i.Port)
}

// Directory resolves logical service names to live instances
type Directory interface {
	Register(serviceName, address string, port int)
	Heartbeat(serviceName, address string, port int)
	Resolve(serviceName string) []Instance
}

// Connector issues the downstream call. This is the thin boundary to the
// CRUD services; implementations classify failures as timeout, connection
// error, or non-success status so the breaker can account for them.
type Connector interface {
	Call(ctx context.Context, req Request, instance *Instance, bearerToken string, timeout time.Duration) (Response, error)
}

// BreakerConfig holds per-route resilience thresholds
type BreakerConfig struct {
	// WindowSize is the number of recent outcomes kept per route
	WindowSize int
	// MinimumSamples is the window fill required before the failure rate is evaluated
	MinimumSamples int
	// FailureRateThreshold opens the circuit when exceeded (0-1)
	FailureRateThreshold float64
	// CoolDown is how long the circuit stays open before allowing trials
	CoolDown time.Duration
	// TrialCount is the number of half-open trial calls
	TrialCount int
}

// Fallback describes the response substituted when the real call cannot complete
type Fallback struct {
	StatusCode  int
	ContentType string
	Body        string
}

// Route maps a path pattern to a logical service. Routes are loaded once at
// startup and are immutable afterwards.
type Route struct {
	ID          string
	Path        string
	Methods     []string
	ServiceName string
	// Profile names the credential profile for outbound auth; empty means
	// the downstream call is made without a bearer token.
	Profile  string
	Timeout  time.Duration
	Breaker  BreakerConfig
	Fallback Fallback
}
