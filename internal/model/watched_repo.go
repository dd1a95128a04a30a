package model

import (
	"strings"
	"time"
)

// WatchedRepo is a (user, owner, repo) subscription with its filter settings.
//
// IsOwned and the fork coordinates are resolved once when the watch is added:
// if the user cannot push to the upstream repo, a fork is created under their
// account and the coding agent is routed there instead.
type WatchedRepo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Owner        string    `json:"owner"`
	Repo         string    `json:"repo"`
	LabelFilters []string  `json:"labelFilters"`
	TitleQuery   string    `json:"titleQuery,omitempty"` // empty means no title filter
	Frozen       bool      `json:"frozen"`
	IsOwned      bool      `json:"isOwned"`
	ForkOwner    *string   `json:"forkOwner,omitempty"`
	ForkRepo     *string   `json:"forkRepo,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FullName returns "owner/repo".
func (w *WatchedRepo) FullName() string {
	return w.Owner + "/" + w.Repo
}

// HasFork reports whether fork coordinates were recorded for this watch.
func (w *WatchedRepo) HasFork() bool {
	return w.ForkOwner != nil && *w.ForkOwner != "" && w.ForkRepo != nil && *w.ForkRepo != ""
}

// Matches applies the watcher's filters to an upstream issue.
//
// An empty label filter matches everything; otherwise at least one filter
// label must be present on the issue. Label comparison is exact, matching
// GitHub's own label semantics. The title query is a case-insensitive
// substring match.
func (w *WatchedRepo) Matches(title string, labels []string) bool {
	if len(w.LabelFilters) > 0 {
		found := false
		for _, want := range w.LabelFilters {
			for _, have := range labels {
				if want == have {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	if w.TitleQuery != "" &&
		!strings.Contains(strings.ToLower(title), strings.ToLower(w.TitleQuery)) {
		return false
	}

	return true
}
