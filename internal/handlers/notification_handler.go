package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"storefront/internal/models"
	"storefront/internal/services"
)

type NotificationHandler struct {
	Service *services.NotificationService
	Logger  *slog.Logger
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread_only"))

	list, err := h.Service.List(r.Context(), userID, limit, unreadOnly)
	if err != nil {
		fail(w, orDefault(h.Logger), "notifications.list", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NotificationList{Notifications: list, Total: len(list)})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	count, err := h.Service.UnreadCount(r.Context(), userID)
	if err != nil {
		fail(w, orDefault(h.Logger), "notifications.unread_count", err)
		return
	}
	writeJSON(w, http.StatusOK, models.UnreadCount{Count: count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return
	}
	if err := h.Service.MarkRead(r.Context(), userID, id); err != nil {
		fail(w, orDefault(h.Logger), "notifications.mark_read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.Service.MarkAllRead(r.Context(), userID); err != nil {
		fail(w, orDefault(h.Logger), "notifications.mark_all_read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return
	}
	if err := h.Service.Delete(r.Context(), userID, id); err != nil {
		fail(w, orDefault(h.Logger), "notifications.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Create is the sandbox admin endpoint that sends a notification to a user.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.NotificationInput
	if !decode(w, r, &in) {
		return
	}
	n, err := h.Service.Create(r.Context(), in)
	if err != nil {
		fail(w, orDefault(h.Logger), "notifications.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}
