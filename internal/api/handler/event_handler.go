package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/peoplehub/hr-notify/internal/api/middleware"
	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/guard"
)

// EventHandler receives correlated sub-updates from producer modules and
// feeds them through the completion guard.
type EventHandler struct {
	guard   *guard.Guard
	observe func(module, result string)
	logger  *zap.Logger
}

func NewEventHandler(g *guard.Guard, observe func(module, result string), logger *zap.Logger) *EventHandler {
	if observe == nil {
		observe = func(string, string) {}
	}
	return &EventHandler{guard: g, observe: observe, logger: logger}
}

// Submit handles POST /api/v1/events
//
// @Summary     Report one correlated sub-update
// @Tags        events
// @Accept      json
// @Produce     json
// @Param       body  body      domain.Event  true  "Sub-update payload"
// @Success     201   {object}  map[string]any  "Operation complete: entry enqueued"
// @Success     200   {object}  map[string]any  "Duplicate suppressed: existing entry returned"
// @Success     202   {object}  map[string]any  "More sub-updates expected"
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/events [post]
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, entry, err := h.guard.OnSubUpdate(r.Context(), ev)
	if result != "" {
		h.observe(ev.Module, string(result))
	}

	switch result {
	case guard.ResultCreated:
		respondJSON(w, http.StatusCreated, map[string]any{"result": result, "entry": entry})
	case guard.ResultDuplicate:
		respondJSON(w, http.StatusOK, map[string]any{"result": result, "entry": entry})
	case guard.ResultIncomplete:
		respondJSON(w, http.StatusAccepted, map[string]any{"result": result})
	case guard.ResultFailed:
		// The operation completed but nobody could be notified; a failed
		// entry was recorded for operator remediation.
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"result": result,
			"entry":  entry,
			"error":  err.Error(),
		})
	default:
		h.logger.Warn("event rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("module", ev.Module),
			zap.Error(err),
		)
		mapError(w, err)
	}
}

// Cancel handles DELETE /api/v1/events/{module}/{referenceID}
//
// Cancels every still-pending entry for the record, used when the
// underlying business record is deleted before dispatch.
//
// @Summary  Cancel pending notifications for a record
// @Tags     events
// @Produce  json
// @Param    module       path   string  true   "Producer module"
// @Param    referenceID  path   string  true   "Business record ID"
// @Param    scope        query  string  false  "Dedup scope (e.g. quarter)"
// @Success  200  {object}  map[string]int
// @Router   /api/v1/events/{module}/{referenceID} [delete]
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	referenceID := chi.URLParam(r, "referenceID")
	scope := r.URL.Query().Get("scope")

	n, err := h.guard.Cancel(r.Context(), module, referenceID, scope)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}
