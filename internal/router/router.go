// Package router matches request paths to routes and selects live instances
// for the target service.
package router

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"cloudgateway/internal/core"
	"cloudgateway/pkg/errors"
)

// Router holds the immutable route table and per-service balancers. Routes
// are added during startup only; the request path is lock-free reads.
type Router struct {
	directory core.Directory
	mux       *http.ServeMux
	routes    map[string]*core.Route // mux pattern -> route
	balancers map[string]*RoundRobinBalancer

	mu sync.Mutex // guards AddRoute during startup
}

// NewRouter creates a new router
func NewRouter(directory core.Directory) *Router {
	return &Router{
		directory: directory,
		mux:       http.NewServeMux(),
		routes:    make(map[string]*core.Route),
		balancers: make(map[string]*RoundRobinBalancer),
	}
}

// AddRoute registers a routing rule. Must be called before serving traffic.
func (r *Router) AddRoute(route core.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.routes {
		if existing.ID == route.ID {
			return errors.NewError(errors.ErrorTypeBadRequest, fmt.Sprintf("duplicate route id: %s", route.ID))
		}
	}

	pattern := toServeMuxPattern(route.Path)

	methods := route.Methods
	if len(methods) == 0 {
		methods = []string{""} // all methods
	}

	for _, method := range methods {
		muxPattern := pattern
		if method != "" {
			muxPattern = method + " " + pattern
		}

		if _, exists := r.routes[muxPattern]; exists {
			return errors.NewError(errors.ErrorTypeBadRequest, fmt.Sprintf("duplicate route pattern: %s", muxPattern))
		}

		stored := route
		r.routes[muxPattern] = &stored

		// Registered for pattern matching only; dispatch happens elsewhere.
		r.mux.HandleFunc(muxPattern, func(http.ResponseWriter, *http.Request) {})
	}

	if _, ok := r.balancers[route.ServiceName]; !ok {
		r.balancers[route.ServiceName] = NewRoundRobinBalancer()
	}

	return nil
}

// Match finds the route for a request
func (r *Router) Match(req core.Request) (*core.Route, error) {
	httpReq, err := http.NewRequest(req.Method(), req.Path(), nil)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid request").WithCause(err)
	}

	_, pattern := r.mux.Handler(httpReq)
	if pattern == "" {
		return nil, errors.NewError(errors.ErrorTypeNotFound, "route not found").
			WithDetail("method", req.Method()).
			WithDetail("path", req.Path())
	}

	// Method-specific patterns take precedence over method-agnostic ones
	if route, ok := r.routes[req.Method()+" "+pattern]; ok {
		return route, nil
	}
	if route, ok := r.routes[pattern]; ok {
		return route, nil
	}

	return nil, errors.NewError(errors.ErrorTypeNotFound, "route not found").
		WithDetail("method", req.Method()).
		WithDetail("path", req.Path())
}

// Select resolves the service through the directory and picks one live
// instance round-robin. An empty fleet yields an unavailable error for the
// dispatcher to handle.
func (r *Router) Select(serviceName string) (*core.Instance, error) {
	instances := r.directory.Resolve(serviceName)

	// Balancers are created in AddRoute; the map is read-only afterwards.
	balancer, ok := r.balancers[serviceName]
	if !ok {
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "unknown service").
			WithDetail("service", serviceName)
	}

	instance, err := balancer.Select(instances)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "no live instances").
			WithDetail("service", serviceName)
	}
	return instance, nil
}

// Routes returns the route table sorted by ID, for the management API
func (r *Router) Routes() []core.Route {
	seen := make(map[string]bool, len(r.routes))
	result := make([]core.Route, 0, len(r.routes))
	for _, route := range r.routes {
		if !seen[route.ID] {
			seen[route.ID] = true
			result = append(result, *route)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
