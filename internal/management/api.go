// Package management exposes runtime state over a small admin API: directory
// membership, route table, breaker stats, and token cache invalidation.
package management

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"cloudgateway/internal/circuitbreaker"
	"cloudgateway/internal/core"
)

// API provides the /admin endpoints
type API struct {
	logger    *slog.Logger
	mux       *http.ServeMux
	startTime time.Time

	directory interface{ Services() map[string][]core.Instance }
	router    interface{ Routes() []core.Route }
	breakers  interface{ Stats() map[string]circuitbreaker.Stats }
	tokens    interface{ Invalidate(profile string) bool }
}

// New creates the management API
func New(logger *slog.Logger) *API {
	api := &API{
		logger:    logger.With("component", "management-api"),
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	api.setupRoutes()
	return api
}

// SetDirectory sets the membership directory reference
func (api *API) SetDirectory(d interface{ Services() map[string][]core.Instance }) {
	api.directory = d
}

// SetRouter sets the router reference
func (api *API) SetRouter(r interface{ Routes() []core.Route }) {
	api.router = r
}

// SetBreakers sets the circuit breaker registry reference
func (api *API) SetBreakers(b interface{ Stats() map[string]circuitbreaker.Stats }) {
	api.breakers = b
}

// SetTokens sets the token manager reference
func (api *API) SetTokens(t interface{ Invalidate(profile string) bool }) {
	api.tokens = t
}

func (api *API) setupRoutes() {
	api.mux.HandleFunc("GET /admin/info", api.handleInfo)
	api.mux.HandleFunc("GET /admin/services", api.handleServices)
	api.mux.HandleFunc("GET /admin/routes", api.handleRoutes)
	api.mux.HandleFunc("GET /admin/breakers", api.handleBreakers)
	api.mux.HandleFunc("POST /admin/tokens/invalidate", api.handleTokenInvalidate)
}

// ServeHTTP implements http.Handler
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.mux.ServeHTTP(w, r)
}

func (api *API) handleInfo(w http.ResponseWriter, _ *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{
		"uptime":    time.Since(api.startTime).String(),
		"startTime": api.startTime,
	})
}

func (api *API) handleServices(w http.ResponseWriter, _ *http.Request) {
	if api.directory == nil {
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "directory not available"})
		return
	}

	type instanceView struct {
		Address       string    `json:"address"`
		Liveness      string    `json:"liveness"`
		LastHeartbeat time.Time `json:"lastHeartbeat"`
	}

	services := make(map[string][]instanceView)
	for name, instances := range api.directory.Services() {
		views := make([]instanceView, 0, len(instances))
		for _, inst := range instances {
			views = append(views, instanceView{
				Address:       inst.HostPort(),
				Liveness:      inst.Liveness.String(),
				LastHeartbeat: inst.LastHeartbeat,
			})
		}
		services[name] = views
	}
	api.writeJSON(w, http.StatusOK, services)
}

func (api *API) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	if api.router == nil {
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "router not available"})
		return
	}

	type routeView struct {
		ID          string   `json:"id"`
		Path        string   `json:"path"`
		Methods     []string `json:"methods,omitempty"`
		ServiceName string   `json:"serviceName"`
		Profile     string   `json:"profile,omitempty"`
		Timeout     string   `json:"timeout"`
	}

	routes := api.router.Routes()
	views := make([]routeView, 0, len(routes))
	for _, route := range routes {
		views = append(views, routeView{
			ID:          route.ID,
			Path:        route.Path,
			Methods:     route.Methods,
			ServiceName: route.ServiceName,
			Profile:     route.Profile,
			Timeout:     route.Timeout.String(),
		})
	}
	api.writeJSON(w, http.StatusOK, views)
}

func (api *API) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	if api.breakers == nil {
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "breakers not available"})
		return
	}
	api.writeJSON(w, http.StatusOK, api.breakers.Stats())
}

func (api *API) handleTokenInvalidate(w http.ResponseWriter, r *http.Request) {
	if api.tokens == nil {
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "token manager not available"})
		return
	}

	profile := r.URL.Query().Get("profile")
	if profile == "" {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "profile parameter is required"})
		return
	}

	if !api.tokens.Invalidate(profile) {
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown profile"})
		return
	}

	api.logger.Info("token cache invalidated via admin API", "profile", profile)
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		api.logger.Error("failed to encode response", "error", err)
	}
}
