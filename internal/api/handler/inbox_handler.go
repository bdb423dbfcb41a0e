package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/peoplehub/hr-notify/internal/inapp"
)

// InboxHandler serves the per-user in-app notification surface.
type InboxHandler struct {
	writer *inapp.Writer
}

func NewInboxHandler(writer *inapp.Writer) *InboxHandler {
	return &InboxHandler{writer: writer}
}

// List handles GET /api/v1/inbox/{recipientID}
//
// @Summary  List a user's in-app notifications, newest first
// @Tags     inbox
// @Produce  json
// @Param    recipientID  path      string  true   "User ID"
// @Param    unread       query     bool    false  "Only unread notifications"
// @Param    page         query     int     false  "Page number (default 1)"
// @Param    limit        query     int     false  "Items per page (default 20, max 100)"
// @Success  200          {object}  map[string]any
// @Router   /api/v1/inbox/{recipientID} [get]
func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	q := r.URL.Query()

	unreadOnly := q.Get("unread") == "1" || q.Get("unread") == "true"
	page, limit := 1, 20
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	notifications, total, err := h.writer.List(r.Context(), recipientID, unreadOnly, page, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  notifications,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// MarkRead handles POST /api/v1/inbox/{recipientID}/read/{id}
//
// @Summary  Mark one in-app notification as read
// @Tags     inbox
// @Param    recipientID  path  string  true  "User ID"
// @Param    id           path  string  true  "Notification UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/inbox/{recipientID}/read/{id} [post]
func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	id := chi.URLParam(r, "id")

	if err := h.writer.MarkRead(r.Context(), recipientID, id); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
