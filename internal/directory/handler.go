package directory

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// registration is the payload instances POST to register or heartbeat
type registration struct {
	ServiceName string `json:"serviceName"`
	Address     string `json:"address"`
	Port        int    `json:"port"`
}

// Handler exposes the registration and heartbeat channel over HTTP
type Handler struct {
	directory *Directory
	logger    *slog.Logger
}

// NewHandler creates the registration handler
func NewHandler(d *Directory, logger *slog.Logger) *Handler {
	return &Handler{
		directory: d,
		logger:    logger.With("component", "registry-api"),
	}
}

// Register handles POST /registry/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.directory.Register)
}

// Heartbeat handles POST /registry/heartbeat
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.directory.Heartbeat)
}

// handle decodes the payload and applies it. A malformed entry is logged and
// discarded without affecting other instances.
func (h *Handler) handle(w http.ResponseWriter, r *http.Request, apply func(string, string, int)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var reg registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		h.logger.Warn("malformed registration payload", "error", err, "remote", r.RemoteAddr)
		http.Error(w, `{"error":"malformed registration payload"}`, http.StatusBadRequest)
		return
	}

	if reg.ServiceName == "" || reg.Address == "" || reg.Port <= 0 || reg.Port > 65535 {
		h.logger.Warn("invalid registration fields",
			"service", reg.ServiceName,
			"address", reg.Address,
			"port", reg.Port,
		)
		http.Error(w, `{"error":"serviceName, address and port are required"}`, http.StatusBadRequest)
		return
	}

	apply(reg.ServiceName, reg.Address, reg.Port)
	w.WriteHeader(http.StatusNoContent)
}
