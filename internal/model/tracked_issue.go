package model

import "time"

// AutoFixStatus is the lifecycle state of a tracked issue's automated fix.
type AutoFixStatus string

const (
	StatusQueued     AutoFixStatus = "queued"
	StatusGenerating AutoFixStatus = "generating"
	StatusDraftReady AutoFixStatus = "draft_ready"
	StatusPublished  AutoFixStatus = "published"
	StatusRejected   AutoFixStatus = "rejected"
	StatusFailed     AutoFixStatus = "failed"
	StatusSkipped    AutoFixStatus = "skipped"
)

// transitions lists every legal edge of the auto-fix state machine.
// failed → queued is the human re-queue ("retry") edge.
var transitions = map[AutoFixStatus][]AutoFixStatus{
	StatusQueued:     {StatusGenerating, StatusSkipped},
	StatusGenerating: {StatusDraftReady, StatusFailed},
	StatusDraftReady: {StatusPublished, StatusRejected},
	StatusSkipped:    {StatusQueued},
	StatusFailed:     {StatusQueued},
}

// Valid reports whether s is a known status.
func (s AutoFixStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusGenerating, StatusDraftReady, StatusPublished,
		StatusRejected, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s AutoFixStatus) CanTransition(next AutoFixStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IssueType distinguishes plain issues from pull requests.
type IssueType string

const (
	TypeIssue       IssueType = "issue"
	TypePullRequest IssueType = "pull_request"
)

// IssueState mirrors the upstream open/closed state.
type IssueState string

const (
	StateOpen   IssueState = "open"
	StateClosed IssueState = "closed"
)

// TrackedIssue is one upstream issue (or PR) monitored for one watcher.
// At most one row exists per (WatchedRepoID, IssueNumber).
type TrackedIssue struct {
	ID            string        `json:"id"`
	WatchedRepoID string        `json:"watchedRepoId"`
	IssueNumber   int           `json:"issueNumber"`
	Title         string        `json:"title"`
	URL           string        `json:"url"`
	Type          IssueType     `json:"type"`
	Labels        []string      `json:"labels"`
	State         IssueState    `json:"state"`
	IsRead        bool          `json:"isRead"`
	ClaimedAt     *time.Time    `json:"claimedAt,omitempty"`
	ArchivedAt    *time.Time    `json:"archivedAt,omitempty"`
	AutoFixStatus AutoFixStatus `json:"autoFixStatus"`
	GeneratingAt  *time.Time    `json:"generatingAt,omitempty"`

	ForkIssueNumber *int    `json:"forkIssueNumber,omitempty"`
	DraftPRNumber   *int    `json:"draftPrNumber,omitempty"`
	DraftPRURL      *string `json:"draftPrUrl,omitempty"`
	DraftPROwner    *string `json:"draftPrOwner,omitempty"`

	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// StatusUpdate carries the columns written alongside a status transition.
// Nil fields are left untouched; Clear* flags null the column.
type StatusUpdate struct {
	GeneratingAt    *time.Time
	ForkIssueNumber *int
	DraftPRNumber   *int
	DraftPRURL      *string
	DraftPROwner    *string
	PublishedAt     *time.Time
	ClaimedAt       *time.Time
	ClearClaimedAt  bool
}
