package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/pkg/logger"
)

// CasesHandler handles case management endpoints
type CasesHandler struct {
	responder
	engine *services.Coordinator
}

// NewCasesHandler creates a new CasesHandler
func NewCasesHandler(engine *services.Coordinator, log *logger.Logger) *CasesHandler {
	return &CasesHandler{
		responder: responder{logger: log.WithComponent("cases-handler")},
		engine:    engine,
	}
}

type createCaseRequest struct {
	AlertID string `json:"alert_id"`
}

type assignCaseRequest struct {
	Assignee string `json:"assignee"`
}

type resolveCaseRequest struct {
	Notes string `json:"notes"`
}

// List handles GET /api/v1/cases?status=
func (h *CasesHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.CaseStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.CaseStatusNew, models.CaseStatusInProgress, models.CaseStatusResolved:
	default:
		h.respondError(w, http.StatusBadRequest, "unknown case status", nil)
		return
	}

	cases := h.engine.Cases().List(status)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":   cases,
		"total":  len(cases),
		"counts": h.engine.Cases().Counts(),
	})
}

// Review handles GET /api/v1/cases/review?q=, the incident review search
// over resolved cases
func (h *CasesHandler) Review(w http.ResponseWriter, r *http.Request) {
	cases := h.engine.Cases().ResolvedCases(r.URL.Query().Get("q"))
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  cases,
		"total": len(cases),
	})
}

// Get handles GET /api/v1/cases/{id}
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	cs, err := h.engine.Cases().Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cs)
}

// Create handles POST /api/v1/cases. Creating a case for an alert that
// already has one returns the existing case with 200.
func (h *CasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.AlertID == "" {
		h.respondError(w, http.StatusBadRequest, "alert_id is required", nil)
		return
	}

	cs, created, err := h.engine.CreateCase(req.AlertID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info().Str("case_id", cs.ID).Str("alert_id", req.AlertID).Msg("case created")
	}
	h.respondJSON(w, status, cs)
}

// Assign handles POST /api/v1/cases/{id}/assign
func (h *CasesHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	cs, err := h.engine.AssignCase(chi.URLParam(r, "id"), req.Assignee)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cs)
}

// Resolve handles POST /api/v1/cases/{id}/resolve
func (h *CasesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	cs, err := h.engine.ResolveCase(chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cs)
}
