package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/service"
)

// IssueEventHandler consumes "issues" deliveries.
type IssueEventHandler interface {
	HandleIssueEvent(ctx context.Context, ev service.IssueEvent) (int, error)
}

// WebhookHandler receives GitHub webhook deliveries.
type WebhookHandler struct {
	secret []byte
	events IssueEventHandler
	logger *slog.Logger
}

func NewWebhookHandler(secret string, events IssueEventHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{secret: []byte(secret), events: events, logger: logger}
}

type webhookResponse struct {
	Event   string `json:"event"`
	Action  string `json:"action,omitempty"`
	Created int    `json:"created"`
	Ignored bool   `json:"ignored,omitempty"`
}

// HandleGitHub: POST /webhooks/github
//
// Deliveries must carry a valid X-Hub-Signature-256. Only "issues" events
// on real issues are processed; everything else is acknowledged with 200 so
// GitHub does not retry it.
func (h *WebhookHandler) HandleGitHub(w http.ResponseWriter, r *http.Request) {
	d, err := github.ParseWebhook(r, h.secret)
	if err != nil {
		if errors.Is(err, github.ErrBadSignature) {
			h.logger.Warn("webhook rejected", slog.String("error", err.Error()))
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "invalid webhook signature"})
			return
		}
		h.logger.Warn("webhook malformed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "malformed webhook delivery"})
		return
	}

	resp := webhookResponse{Event: d.Event, Action: d.Action}
	if d.Event != "issues" || d.IsPullRequest {
		resp.Ignored = true
		writeJSON(w, http.StatusOK, resp)
		return
	}

	created, err := h.events.HandleIssueEvent(r.Context(), service.IssueEvent{
		Action: d.Action,
		Owner:  d.Owner,
		Repo:   d.Repo,
		Issue:  d.Issue,
	})
	if err != nil {
		h.logger.Error("webhook processing failed",
			slog.String("delivery", d.DeliveryID),
			slog.String("repo", d.Owner+"/"+d.Repo),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	resp.Created = created
	writeJSON(w, http.StatusOK, resp)
}
