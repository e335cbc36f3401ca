// Package http is the gateway's frontend: it accepts inbound requests and
// hands them to the dispatcher, and hosts the registry, metrics, health and
// admin endpoints.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"cloudgateway/internal/core"
	gwerrors "cloudgateway/pkg/errors"
	"cloudgateway/pkg/requestid"
)

// Config holds frontend HTTP configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
}

// RegistryHandler serves the instance registration and heartbeat channel
type RegistryHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Heartbeat(w http.ResponseWriter, r *http.Request)
}

// Adapter handles inbound HTTP traffic
type Adapter struct {
	config          Config
	server          *http.Server
	handler         core.Handler
	metricsHandler  http.Handler
	registryHandler RegistryHandler
	adminHandler    http.Handler
	logger          *slog.Logger
}

// New creates a new HTTP adapter
func New(cfg Config, handler core.Handler) *Adapter {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Adapter{
		config:  cfg,
		handler: handler,
		logger:  slog.Default().With("component", "http"),
	}
}

// WithMetricsHandler sets the metrics handler
func (a *Adapter) WithMetricsHandler(handler http.Handler) *Adapter {
	a.metricsHandler = handler
	return a
}

// WithRegistryHandler sets the registration/heartbeat handler
func (a *Adapter) WithRegistryHandler(handler RegistryHandler) *Adapter {
	a.registryHandler = handler
	return a
}

// WithAdminHandler sets the management API handler
func (a *Adapter) WithAdminHandler(handler http.Handler) *Adapter {
	a.adminHandler = handler
	return a
}

// Start starts the HTTP server. It is non-blocking; bind errors surface
// immediately, serve errors are logged.
func (a *Adapter) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// Create the listener ourselves to detect bind errors early
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	a.logger.Info("starting server", "addr", addr)
	go func() {
		if err := a.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			a.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// ServeHTTP routes operational endpoints and forwards everything else to
// the dispatcher
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == a.config.MetricsPath && a.metricsHandler != nil:
		a.metricsHandler.ServeHTTP(w, r)
		return

	case path == "/health":
		a.handleHealth(w, r)
		return

	case path == "/registry/register" && a.registryHandler != nil:
		a.registryHandler.Register(w, r)
		return

	case path == "/registry/heartbeat" && a.registryHandler != nil:
		a.registryHandler.Heartbeat(w, r)
		return

	case strings.HasPrefix(path, "/admin/") && a.adminHandler != nil:
		a.adminHandler.ServeHTTP(w, r)
		return
	}

	a.handleDispatch(w, r)
}

func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"up"}`))
}

func (a *Adapter) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := requestid.Generate()
	req := newRequest(id, r)

	resp, err := a.handler(r.Context(), req)
	if err != nil {
		a.writeError(w, id, err)
		return
	}

	body := resp.Body()
	defer func() {
		if body != nil {
			_ = body.Close()
		}
	}()

	for key, values := range resp.Headers() {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("X-Request-Id", id)
	w.WriteHeader(resp.StatusCode())

	if body != nil {
		if _, err := io.Copy(w, body); err != nil {
			a.logger.Debug("response copy interrupted", "requestId", id, "error", err)
		}
	}
}

func (a *Adapter) writeError(w http.ResponseWriter, id string, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var gwErr *gwerrors.Error
	if e, ok := err.(*gwerrors.Error); ok {
		gwErr = e
		status = e.HTTPStatusCode()
		message = e.Message
	}

	if gwErr == nil || gwErr.Type == gwerrors.ErrorTypeInternal {
		a.logger.Error("request failed", "requestId", id, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", id)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
