package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/internal/infrastructure/cache"
	"openprotect-lab/internal/streaming"
	"openprotect-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health     *HealthHandler
	Console    *ConsoleHandler
	Cases      *CasesHandler
	Playbooks  *PlaybooksHandler
	Directives *DirectivesHandler
	Analytics  *AnalyticsHandler
	Simulation *SimulationHandler
	Streaming  *StreamingHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	// BaseContext outlives requests and bounds background work such as the
	// scheduler loop started from the API
	BaseContext context.Context

	Engine    *services.Coordinator
	Analytics *services.AnalyticsService
	Scheduler *services.Scheduler
	Cache     *cache.RedisCache
	EventBus  *streaming.EventBus
	WSHub     *streaming.WebSocketHub
	NATS      *streaming.NATSPublisher
	Logger    *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	return &Handlers{
		Health:     NewHealthHandler(deps.Cache, deps.NATS, deps.Logger),
		Console:    NewConsoleHandler(deps.Engine, deps.Cache, deps.Logger),
		Cases:      NewCasesHandler(deps.Engine, deps.Logger),
		Playbooks:  NewPlaybooksHandler(deps.Engine, deps.Logger),
		Directives: NewDirectivesHandler(deps.Engine, deps.Logger),
		Analytics:  NewAnalyticsHandler(deps.Analytics, deps.Logger),
		Simulation: NewSimulationHandler(deps.BaseContext, deps.Scheduler, deps.Logger),
		Streaming:  NewStreamingHandler(deps.WSHub, deps.EventBus, deps.NATS, deps.Logger),
	}
}

// responder carries the JSON response helpers shared by every handler
type responder struct {
	logger *logger.Logger
}

// respondJSON sends a JSON response
func (h responder) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// respondError sends an error response
func (h responder) respondError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Msg(message)
		} else {
			h.logger.Debug().Err(err).Msg(message)
		}
		body["details"] = err.Error()
	}
	h.respondJSON(w, status, body)
}

// respondDomainError maps a domain error onto its HTTP status
func (h responder) respondDomainError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case models.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, models.ErrInvalidTransition):
		h.respondError(w, http.StatusConflict, "invalid state transition", err)
	case errors.As(err, &ve):
		h.respondError(w, http.StatusUnprocessableEntity, ve.Reason, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusServiceUnavailable, "request cancelled", err)
	default:
		h.respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// decodeJSON decodes the request body into dest, rejecting unknown fields
func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// queryInt parses an integer query parameter, falling back to def
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
