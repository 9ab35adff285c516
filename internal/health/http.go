package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HTTPHandler provides HTTP endpoints for health checks
type HTTPHandler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHTTPHandler creates a new HTTP handler for health checks
func NewHTTPHandler(manager *Manager, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{manager: manager, logger: logger}
}

// RegisterRoutes mounts the health endpoints on r.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/health/ready", h.handleReadiness)
	r.Get("/health/live", h.handleLiveness)
	r.Get("/health/detailed", h.handleDetailedHealth)
}

func statusCode(s CheckStatus) int {
	switch s {
	case StatusHealthy, StatusDegraded:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall := h.manager.GetOverallHealth(r.Context())
	h.writeJSON(w, statusCode(overall.Status), map[string]interface{}{
		"status":    overall.Status.String(),
		"message":   overall.Message,
		"timestamp": overall.Timestamp.Unix(),
		"duration":  overall.Duration.String(),
		"degraded":  overall.Degraded,
		"ready":     overall.Ready,
		"live":      overall.Live,
	})
}

// handleReadiness returns readiness status (for k8s readiness checks)
func (h *HTTPHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := h.manager.IsReady(r.Context())
	code, message := http.StatusOK, "ready"
	if !ready {
		code, message = http.StatusServiceUnavailable, "not ready"
	}
	h.writeJSON(w, code, map[string]interface{}{
		"status":    message,
		"ready":     ready,
		"timestamp": time.Now().Unix(),
	})
}

// handleLiveness returns liveness status (for k8s liveness checks)
func (h *HTTPHandler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	alive := h.manager.IsLive(r.Context())
	code, message := http.StatusOK, "alive"
	if !alive {
		code, message = http.StatusServiceUnavailable, "not alive"
	}
	h.writeJSON(w, code, map[string]interface{}{
		"status":    message,
		"live":      alive,
		"timestamp": time.Now().Unix(),
	})
}

// handleDetailedHealth returns per-component results. With ?cached=true it
// reports the last results without running the checks again.
func (h *HTTPHandler) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	var detailed DetailedHealth
	if r.URL.Query().Get("cached") == "true" {
		components := h.manager.GetLastResults()
		summary := summarize(components)
		detailed = DetailedHealth{
			Overall:    calculateOverallStatus(components, summary),
			Components: components,
			Summary:    summary,
			Timestamp:  time.Now(),
		}
	} else {
		detailed = h.manager.GetDetailedHealth(r.Context())
	}
	h.writeJSON(w, statusCode(detailed.Overall.Status), detailed)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
