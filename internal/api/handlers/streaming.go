package handlers

import (
	"net/http"

	"openprotect-lab/internal/streaming"
	"openprotect-lab/pkg/logger"
)

// StreamingHandler handles real-time streaming endpoints
type StreamingHandler struct {
	responder
	wsHub    *streaming.WebSocketHub
	eventBus *streaming.EventBus
	nats     *streaming.NATSPublisher
}

// NewStreamingHandler creates a new streaming handler
func NewStreamingHandler(wsHub *streaming.WebSocketHub, eventBus *streaming.EventBus, nats *streaming.NATSPublisher, log *logger.Logger) *StreamingHandler {
	return &StreamingHandler{
		responder: responder{logger: log.WithComponent("streaming-handler")},
		wsHub:     wsHub,
		eventBus:  eventBus,
		nats:      nats,
	}
}

// HandleWebSocket handles GET /ws, the live console event feed
func (h *StreamingHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		h.respondError(w, http.StatusServiceUnavailable, "WebSocket streaming not available", nil)
		return
	}

	h.logger.Debug().
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("WebSocket connection request")

	h.wsHub.ServeWebSocket(w, r)
}

// GetStats handles GET /api/v1/streaming/stats
func (h *StreamingHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"websocket_clients":     0,
		"event_bus_subscribers": 0,
	}

	if h.wsHub != nil {
		stats["websocket_clients"] = h.wsHub.ClientCount()
	}

	if h.eventBus != nil {
		stats["event_bus_subscribers"] = h.eventBus.SubscriberCount()
	}

	if h.nats != nil && h.nats.IsConnected() {
		streamStats, err := h.nats.Stats(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to read NATS stream stats")
		} else {
			stats["nats_stream"] = streamStats
		}
	}

	h.respondJSON(w, http.StatusOK, stats)
}
