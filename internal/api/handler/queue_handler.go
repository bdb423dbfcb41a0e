package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/dispatcher"
	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/repository"
)

// QueueHandler exposes the operator surface over the queue store:
// listing, inspection, manual requeue, and on-demand dispatch.
type QueueHandler struct {
	repo   repository.QueueRepository
	disp   *dispatcher.Dispatcher
	logger *zap.Logger
}

func NewQueueHandler(repo repository.QueueRepository, disp *dispatcher.Dispatcher, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{repo: repo, disp: disp, logger: logger}
}

// List handles GET /api/v1/queue
//
// @Summary  List queue entries with filtering and pagination
// @Tags     queue
// @Produce  json
// @Param    status  query     string  false  "Filter by status"
// @Param    module  query     string  false  "Filter by producer module"
// @Param    kind    query     string  false  "Filter by notification kind"
// @Param    from    query     string  false  "Created after (RFC3339)"
// @Param    to      query     string  false  "Created before (RFC3339)"
// @Param    page    query     int     false  "Page number (default 1)"
// @Param    limit   query     int     false  "Items per page (default 20, max 100)"
// @Success  200     {object}  map[string]any
// @Router   /api/v1/queue [get]
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r)
	entries, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("queue listing failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list queue entries")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// GetByID handles GET /api/v1/queue/{id}
//
// @Summary  Get a queue entry with its full error history
// @Tags     queue
// @Produce  json
// @Param    id   path      string  true  "Entry UUID"
// @Success  200  {object}  domain.QueueEntry
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/queue/{id} [get]
func (h *QueueHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// Requeue handles POST /api/v1/queue/{id}/requeue
//
// Resets a failed entry to pending with a fresh retry budget. Only
// failed entries qualify; anything else returns 409.
//
// @Summary  Requeue a failed entry
// @Tags     queue
// @Produce  json
// @Param    id   path  string  true  "Entry UUID"
// @Success  200  {object}  domain.QueueEntry
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/queue/{id}/requeue [post]
func (h *QueueHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Requeue(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}

	h.logger.Info("entry requeued by operator", zap.String("id", id))
	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// Stats handles GET /api/v1/queue/stats
//
// @Summary  Entry counts grouped by status
// @Tags     queue
// @Produce  json
// @Success  200  {object}  map[string]int
// @Router   /api/v1/queue/stats [get]
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.CountByStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count queue entries")
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// Dispatch handles POST /api/v1/dispatch
//
// Runs one dispatch batch immediately instead of waiting for the next
// poll tick. Useful for operators and for cron-style deployments that
// run without a resident worker pool.
//
// @Summary  Process one dispatch batch on demand
// @Tags     queue
// @Produce  json
// @Param    limit  query     int  false  "Max entries to claim (default 50)"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/dispatch [post]
func (h *QueueHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	outcomes, err := h.disp.ProcessBatch(r.Context(), limit)
	if err != nil {
		h.logger.Error("on-demand dispatch failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	sent, failed, retried := 0, 0, 0
	for _, o := range outcomes {
		switch {
		case o.Retried:
			retried++
		case o.Status == domain.StatusSent:
			sent++
		case o.Status == domain.StatusFailed:
			failed++
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"processed": len(outcomes),
		"sent":      sent,
		"failed":    failed,
		"retried":   retried,
	})
}

func parseListFilter(r *http.Request) domain.ListFilter {
	q := r.URL.Query()
	filter := domain.ListFilter{Page: 1, Limit: 20}

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		filter.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		filter.Limit = l
	}
	if s := q.Get("status"); s != "" {
		st := domain.Status(s)
		filter.Status = &st
	}
	if m := q.Get("module"); m != "" {
		filter.Module = &m
	}
	if k := q.Get("kind"); k != "" {
		filter.Kind = &k
	}
	if f := q.Get("from"); f != "" {
		if t, err := time.Parse(time.RFC3339, f); err == nil {
			filter.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	return filter
}
