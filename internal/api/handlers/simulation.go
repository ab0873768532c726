package handlers

import (
	"context"
	"errors"
	"net/http"

	"openprotect-lab/internal/domain/services"
	"openprotect-lab/pkg/logger"
)

// SimulationHandler drives the tick scheduler from the console
type SimulationHandler struct {
	responder
	baseCtx   context.Context
	scheduler *services.Scheduler
}

// NewSimulationHandler creates a new SimulationHandler. scheduler may be nil
// when the simulation is disabled.
func NewSimulationHandler(baseCtx context.Context, scheduler *services.Scheduler, log *logger.Logger) *SimulationHandler {
	return &SimulationHandler{
		responder: responder{logger: log.WithComponent("simulation-handler")},
		baseCtx:   baseCtx,
		scheduler: scheduler,
	}
}

func (h *SimulationHandler) available(w http.ResponseWriter) bool {
	if h.scheduler == nil {
		h.respondError(w, http.StatusServiceUnavailable, "simulation disabled", nil)
		return false
	}
	return true
}

// Status handles GET /api/v1/simulation
func (h *SimulationHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.respondJSON(w, http.StatusOK, h.scheduler.Stats())
}

// Tick handles POST /api/v1/simulation/tick, running a single tick now
func (h *SimulationHandler) Tick(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	report, err := h.scheduler.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrTickLocked) {
			h.respondError(w, http.StatusConflict, "another instance is running a tick", err)
			return
		}
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// Start handles POST /api/v1/simulation/start
func (h *SimulationHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	if h.scheduler.Running() {
		h.respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Simulation already running",
		})
		return
	}

	h.logger.Info().Msg("starting simulation from API")
	go func() {
		if err := h.scheduler.Start(h.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error().Err(err).Msg("simulation loop exited")
		}
	}()

	h.respondJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "Simulation started",
	})
}

// Stop handles POST /api/v1/simulation/stop
func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.scheduler.Stop()
	h.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Simulation stopped",
	})
}
