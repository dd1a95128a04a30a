package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/service"
)

// IssueHandler serves the issue board and the draft review queue.
type IssueHandler struct {
	issues  *service.IssueService
	autofix *service.AutoFixService
}

func NewIssueHandler(issues *service.IssueService, autofix *service.AutoFixService) *IssueHandler {
	return &IssueHandler{issues: issues, autofix: autofix}
}

// HandleList: GET /api/issues?status=queued&archived=false&unread=true&repo=<watchID>&limit=50&offset=0
func (h *IssueHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	q, err := issueQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	issues, err := h.issues.List(r.Context(), uid, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func issueQuery(r *http.Request) (service.IssueQuery, error) {
	archived, err := queryBool(r, "archived")
	if err != nil {
		return service.IssueQuery{}, err
	}
	unread, err := queryBool(r, "unread")
	if err != nil {
		return service.IssueQuery{}, err
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return service.IssueQuery{}, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return service.IssueQuery{}, err
	}
	return service.IssueQuery{
		Status:        model.AutoFixStatus(r.URL.Query().Get("status")),
		Archived:      archived,
		UnreadOnly:    unread != nil && *unread,
		WatchedRepoID: r.URL.Query().Get("repo"),
		Limit:         limit,
		Offset:        offset,
	}, nil
}

// HandleGet: GET /api/issues/{id}
func (h *IssueHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.issues.Get)
}

// HandleRead: POST /api/issues/{id}/read
//
// ?read=false marks the issue unread again.
func (h *IssueHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	read, err := queryBool(r, "read")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.issues.MarkRead(r.Context(), uid, chi.URLParam(r, "id"), read == nil || *read); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClaim: POST /api/issues/{id}/claim
func (h *IssueHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.issues.Claim)
}

// HandleUnclaim: POST /api/issues/{id}/unclaim
func (h *IssueHandler) HandleUnclaim(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.issues.Unclaim)
}

// HandleArchive: POST /api/issues/{id}/archive
func (h *IssueHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.issues.Archive)
}

// HandleRestore: POST /api/issues/{id}/restore
func (h *IssueHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.issues.Restore)
}

// HandleRetry: POST /api/issues/{id}/retry
func (h *IssueHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.issues.Retry)
}

// HandleDrafts: GET /api/drafts
func (h *IssueHandler) HandleDrafts(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	drafts, err := h.issues.Drafts(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

// HandlePublish: POST /api/drafts/{id}/publish
//
// Marks the agent's draft PR ready for review upstream.
func (h *IssueHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.autofix.Publish)
}

// HandleReject: POST /api/drafts/{id}/reject
//
// Closes the draft PR without merging.
func (h *IssueHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.autofix.Reject)
}

// respond runs an action on the {id} issue and writes the resulting row.
func (h *IssueHandler) respond(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, userID, id string) (*model.TrackedIssue, error)) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	issue, err := action(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}
