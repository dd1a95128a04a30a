package handler

import (
	"net/http"

	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/service"
)

// SettingsHandler serves notification preferences and browser push
// registration.
type SettingsHandler struct {
	settings    *service.SettingsService
	vapidPublic string
}

// NewSettingsHandler takes the VAPID public key browsers need to subscribe;
// empty when push is not configured.
func NewSettingsHandler(settings *service.SettingsService, vapidPublicKey string) *SettingsHandler {
	return &SettingsHandler{settings: settings, vapidPublic: vapidPublicKey}
}

// HandleGet: GET /api/settings
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	prefs, err := h.settings.Get(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandleUpdate: PUT /api/settings
//
// Request: {"emailEnabled": true, "newIssuePush": false}
// Omitted fields keep their value.
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var in service.SettingsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	prefs, err := h.settings.Update(r.Context(), uid, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandlePublicKey: GET /api/push/public-key
func (h *SettingsHandler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublic == "" {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "push notifications are not configured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.vapidPublic})
}

// HandleSubscribe: POST /api/push/subscribe
//
// Request: the browser's PushSubscription.toJSON().
func (h *SettingsHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var sub model.PushSubscription
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, err)
		return
	}
	prefs, err := h.settings.SubscribePush(r.Context(), uid, sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandleUnsubscribe: POST /api/push/unsubscribe
func (h *SettingsHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	prefs, err := h.settings.UnsubscribePush(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
