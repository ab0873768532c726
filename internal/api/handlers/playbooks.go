package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/pkg/logger"
)

// PlaybooksHandler handles SOAR playbook endpoints
type PlaybooksHandler struct {
	responder
	engine *services.Coordinator
}

// NewPlaybooksHandler creates a new PlaybooksHandler
func NewPlaybooksHandler(engine *services.Coordinator, log *logger.Logger) *PlaybooksHandler {
	return &PlaybooksHandler{
		responder: responder{logger: log.WithComponent("playbooks-handler")},
		engine:    engine,
	}
}

type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// List handles GET /api/v1/playbooks
func (h *PlaybooksHandler) List(w http.ResponseWriter, r *http.Request) {
	playbooks := h.engine.Playbooks().List()
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  playbooks,
		"total": len(playbooks),
	})
}

// Get handles GET /api/v1/playbooks/{id}
func (h *PlaybooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	pb, err := h.engine.Playbooks().Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pb)
}

// Create handles POST /api/v1/playbooks
func (h *PlaybooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft models.PlaybookDraft
	if err := decodeJSON(r, &draft); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if draft.ID != "" {
		h.respondError(w, http.StatusBadRequest, "id must be empty on create, use PUT to add a version", nil)
		return
	}

	pb, err := h.engine.SavePlaybook(draft)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, pb)
}

// Update handles PUT /api/v1/playbooks/{id}, saving the body as a new version
func (h *PlaybooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	var draft models.PlaybookDraft
	if err := decodeJSON(r, &draft); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	draft.ID = chi.URLParam(r, "id")

	pb, err := h.engine.SavePlaybook(draft)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pb)
}

// SetActive handles PATCH /api/v1/playbooks/{id}/active
func (h *PlaybooksHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	pb, err := h.engine.SetPlaybookActive(chi.URLParam(r, "id"), req.IsActive)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pb)
}

// Versions handles GET /api/v1/playbooks/{id}/versions
func (h *PlaybooksHandler) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.engine.Playbooks().Versions(chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  versions,
		"total": len(versions),
	})
}

// ActivateVersion handles POST /api/v1/playbooks/{id}/versions/{versionID}/activate
func (h *PlaybooksHandler) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	versionID := chi.URLParam(r, "versionID")

	pb, err := h.engine.SetActivePlaybookVersion(id, versionID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.logger.Info().Str("playbook_id", id).Str("version_id", versionID).Msg("playbook version activated")
	h.respondJSON(w, http.StatusOK, pb)
}

// Executions handles GET /api/v1/playbooks/executions
func (h *PlaybooksHandler) Executions(w http.ResponseWriter, r *http.Request) {
	executions := h.engine.Playbooks().Executions(queryInt(r, "limit", 50))
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  executions,
		"total": len(executions),
		"stats": h.engine.Playbooks().Stats(),
	})
}
