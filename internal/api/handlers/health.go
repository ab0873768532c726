package handlers

import (
	"context"
	"net/http"
	"time"

	"openprotect-lab/internal/infrastructure/cache"
	"openprotect-lab/internal/streaming"
	"openprotect-lab/pkg/logger"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// HealthHandler handles health check endpoints
type HealthHandler struct {
	responder
	cache     *cache.RedisCache
	nats      *streaming.NATSPublisher
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler. Either dependency may be nil
// when it is disabled.
func NewHealthHandler(c *cache.RedisCache, n *streaming.NATSPublisher, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		responder: responder{logger: log.WithComponent("health")},
		cache:     c,
		nats:      n,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - checks all dependencies
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := http.StatusOK
	overallStatus := "ready"

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			overallStatus = "not ready"
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	// NATS is a best-effort mirror, so a lost connection degrades but does
	// not fail readiness
	if h.nats != nil {
		if h.nats.IsConnected() {
			checks["nats"] = "healthy"
		} else {
			checks["nats"] = "degraded: disconnected"
		}
	} else {
		checks["nats"] = "not configured"
	}

	checks["engine"] = "healthy"

	h.respondJSON(w, status, HealthResponse{
		Status:    overallStatus,
		Version:   Version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}
