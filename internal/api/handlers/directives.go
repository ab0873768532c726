package handlers

import (
	"net/http"

	"openprotect-lab/internal/domain/services"
	"openprotect-lab/pkg/logger"
)

// DirectivesHandler handles operator-issued directives
type DirectivesHandler struct {
	responder
	engine *services.Coordinator
}

// NewDirectivesHandler creates a new DirectivesHandler
func NewDirectivesHandler(engine *services.Coordinator, log *logger.Logger) *DirectivesHandler {
	return &DirectivesHandler{
		responder: responder{logger: log.WithComponent("directives-handler")},
		engine:    engine,
	}
}

type agentUpgradeRequest struct {
	Version  string `json:"version"`
	TargetOS string `json:"target_os"`
}

// PushAgentUpgrade handles POST /api/v1/directives/agent-upgrade
func (h *DirectivesHandler) PushAgentUpgrade(w http.ResponseWriter, r *http.Request) {
	var req agentUpgradeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	event, err := h.engine.PushAgentUpgrade(r.Context(), req.Version, req.TargetOS)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, event)
}
