package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/oss-hunter/internal/realtime"
	"github.com/sakif/oss-hunter/internal/service"
)

// NotificationHandler serves the in-app inbox and its live feed.
type NotificationHandler struct {
	notifications *service.NotificationService
	hub           *realtime.Hub
}

func NewNotificationHandler(notifications *service.NotificationService, hub *realtime.Hub) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, hub: hub}
}

type notificationList struct {
	Notifications any `json:"notifications"`
	Unread        int `json:"unread"`
}

// HandleList: GET /api/notifications
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, err := h.notifications.List(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	unread, err := h.notifications.UnreadCount(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationList{Notifications: list, Unread: unread})
}

// HandleRead: POST /api/notifications/{id}/read
func (h *NotificationHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReadAll: POST /api/notifications/read-all
func (h *NotificationHandler) HandleReadAll(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// HandleStream: GET /api/notifications/ws
//
// Upgrades to a WebSocket that receives every event dispatched to the user.
func (h *NotificationHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	h.hub.Serve(w, r, uid)
}
