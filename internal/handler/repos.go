package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/service"
)

// RepoHandler serves the watch list.
type RepoHandler struct {
	watches   *service.WatchService
	discovery *service.DiscoveryService
	logger    *slog.Logger
}

func NewRepoHandler(watches *service.WatchService, discovery *service.DiscoveryService, logger *slog.Logger) *RepoHandler {
	return &RepoHandler{watches: watches, discovery: discovery, logger: logger}
}

// HandleList: GET /api/repos
func (h *RepoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	repos, err := h.watches.List(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// HandleAdd: POST /api/repos
//
// Request: {"owner": "acme", "repo": "widgets", "labelFilters": ["good first issue"]}
// Success: 201 with the watch, including the fork when one was created.
func (h *RepoHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var in service.AddWatchInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	repo, err := h.watches.Add(r.Context(), uid, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// HandleGet: GET /api/repos/{id}
func (h *RepoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	repo, err := h.watches.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

type updateFiltersRequest struct {
	LabelFilters []string `json:"labelFilters"`
	TitleQuery   string   `json:"titleQuery"`
}

// HandleUpdate: PATCH /api/repos/{id}
//
// Replaces both filters; send the current value to keep one.
func (h *RepoHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req updateFiltersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	repo, err := h.watches.UpdateFilters(r.Context(), uid, chi.URLParam(r, "id"), req.LabelFilters, req.TitleQuery)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// HandleFreeze: POST /api/repos/{id}/freeze
func (h *RepoHandler) HandleFreeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, true)
}

// HandleUnfreeze: POST /api/repos/{id}/unfreeze
func (h *RepoHandler) HandleUnfreeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, false)
}

func (h *RepoHandler) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	repo, err := h.watches.SetFrozen(r.Context(), uid, chi.URLParam(r, "id"), frozen)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// HandleDelete: DELETE /api/repos/{id}
//
// Tracked issues of the watch go with it.
func (h *RepoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.watches.Remove(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch: GET /api/repos/search?q=widgets&type=name&page=1&perPage=20
func (h *RepoHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	perPage, err := queryInt(r, "perPage", 20)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	res, err := h.watches.Search(r.Context(), uid, q.Get("q"), page, perPage, github.SearchType(q.Get("type")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSync: POST /api/repos/sync
//
// Fetches open issues and PRs of every watch now instead of waiting for the
// next poll.
func (h *RepoHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	res, err := h.discovery.SyncUser(r.Context(), uid)
	if err != nil {
		h.logger.Warn("manual sync failed", slog.String("userID", uid), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
