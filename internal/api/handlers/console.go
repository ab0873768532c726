package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/internal/infrastructure/cache"
	"openprotect-lab/pkg/logger"
)

const (
	defaultEventLimit  = 100
	defaultLedgerLimit = 20
)

// ConsoleHandler serves the console read models
type ConsoleHandler struct {
	responder
	engine *services.Coordinator
	cache  *cache.RedisCache
}

// NewConsoleHandler creates a new ConsoleHandler. cache may be nil.
func NewConsoleHandler(engine *services.Coordinator, c *cache.RedisCache, log *logger.Logger) *ConsoleHandler {
	return &ConsoleHandler{
		responder: responder{logger: log.WithComponent("console-handler")},
		engine:    engine,
		cache:     c,
	}
}

// Dashboard handles GET /api/v1/dashboard
// ?source=cache returns the snapshot last written to Redis by the scheduler
func (h *ConsoleHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "cache" {
		if h.cache == nil {
			h.respondError(w, http.StatusServiceUnavailable, "snapshot cache not configured", nil)
			return
		}
		snap, err := h.cache.GetSnapshot(r.Context())
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "failed to read cached snapshot", err)
			return
		}
		if snap == nil {
			h.respondError(w, http.StatusNotFound, "no snapshot cached yet", nil)
			return
		}
		h.respondJSON(w, http.StatusOK, snap)
		return
	}

	h.respondJSON(w, http.StatusOK, h.engine.Snapshot())
}

// ListAlerts handles GET /api/v1/alerts
func (h *ConsoleHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.engine.Feed().List(queryInt(r, "limit", 0))
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"total": len(alerts),
	})
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *ConsoleHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, ok := h.engine.Feed().Get(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "alert not found", nil)
		return
	}

	resp := map[string]any{"alert": alert}
	if caseID, ok := h.engine.Cases().CaseForAlert(id); ok {
		resp["case_id"] = caseID
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// ListEvents handles GET /api/v1/events
//
// Query parameters:
//   - type: repeatable event type filter
//   - since: return retained events with a greater sequence number, oldest first
//   - limit: newest-first page size when since is absent
//   - source=archive: read the Redis timeline instead of the in-memory log
func (h *ConsoleHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	types := make([]models.EventType, 0, len(q["type"]))
	for _, t := range q["type"] {
		et := models.EventType(t)
		if !et.IsValid() {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", t), nil)
			return
		}
		types = append(types, et)
	}
	limit := queryInt(r, "limit", defaultEventLimit)

	if q.Get("source") == "archive" {
		h.listArchivedEvents(w, r, types, limit)
		return
	}

	var events []models.ServerEvent
	if s := q.Get("since"); s != "" {
		seq, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid since", err)
			return
		}
		events = filterEvents(h.engine.Events().Since(seq), types)
	} else {
		events = h.engine.Events().Recent(limit, types...)
	}
	if events == nil {
		events = []models.ServerEvent{}
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":     events,
		"total":    len(events),
		"last_seq": h.engine.Events().LastSeq(),
	})
}

func (h *ConsoleHandler) listArchivedEvents(w http.ResponseWriter, r *http.Request, types []models.EventType, limit int) {
	if h.cache == nil {
		h.respondError(w, http.StatusServiceUnavailable, "event archive not configured", nil)
		return
	}
	events, err := h.cache.RecentEvents(r.Context(), int64(limit))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read event archive", err)
		return
	}
	events = filterEvents(events, types)
	if events == nil {
		events = []models.ServerEvent{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"data":  events,
		"total": len(events),
	})
}

func filterEvents(events []models.ServerEvent, types []models.EventType) []models.ServerEvent {
	if len(types) == 0 {
		return events
	}
	var out []models.ServerEvent
	for _, e := range events {
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Knowledge handles GET /api/v1/knowledge
func (h *ConsoleHandler) Knowledge(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.engine.Knowledge())
}

// Ledger handles GET /api/v1/knowledge/ledger
func (h *ConsoleHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	ledger := h.engine.Ledger()
	h.respondJSON(w, http.StatusOK, map[string]any{
		"total_points": ledger.Total(),
		"entries":      ledger.Entries(queryInt(r, "limit", defaultLedgerLimit)),
	})
}
