package handlers

import (
	"net/http"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/pkg/logger"
)

// AnalyticsHandler serves the derived console analytics
type AnalyticsHandler struct {
	responder
	analytics *services.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(analytics *services.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		responder: responder{logger: log.WithComponent("analytics-handler")},
		analytics: analytics,
	}
}

// Heatmap handles GET /api/v1/analytics/heatmap?top=
func (h *AnalyticsHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.analytics.Heatmap(queryInt(r, "top", services.DefaultHeatmapTopN)))
}

// Fleet handles GET /api/v1/analytics/fleet?os=&search=
func (h *AnalyticsHandler) Fleet(w http.ResponseWriter, r *http.Request) {
	agents := h.analytics.Fleet(models.FleetQuery{
		OS:     r.URL.Query().Get("os"),
		Search: r.URL.Query().Get("search"),
	})
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  agents,
		"total": len(agents),
	})
}

// WeakPasswords handles GET /api/v1/analytics/weak-passwords
func (h *AnalyticsHandler) WeakPasswords(w http.ResponseWriter, r *http.Request) {
	alerts := h.analytics.WeakPasswords()
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"total": len(alerts),
	})
}

// LearningSummary handles GET /api/v1/analytics/learning
func (h *AnalyticsHandler) LearningSummary(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.analytics.LearningSummary())
}
