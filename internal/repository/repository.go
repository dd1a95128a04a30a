// Package repository declares the storage contracts the service layer depends on.
// internal/repository/sqlite is the only implementation.
package repository

import (
	"context"
	"time"

	"github.com/sakif/oss-hunter/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// IssueFilter narrows TrackedIssueRepository.List. Zero values mean "any".
type IssueFilter struct {
	UserID        string
	WatchedRepoID string
	Status        model.AutoFixStatus
	Archived      *bool
	UnreadOnly    bool
	ListOptions
}

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// SetAccessToken stores the sealed OAuth token for a user.
	SetAccessToken(ctx context.Context, userID string, sealed []byte) error
}

type WatchedRepoRepository interface {
	// Create returns apperror.ErrConflict if (userID, owner, repo) is already watched.
	Create(ctx context.Context, w *model.WatchedRepo) error
	GetByID(ctx context.Context, id string) (*model.WatchedRepo, error)
	ListByUser(ctx context.Context, userID string) ([]model.WatchedRepo, error)
	// ListActive returns every non-frozen watch across all users.
	ListActive(ctx context.Context) ([]model.WatchedRepo, error)
	// ListWatchers returns the non-frozen watches of one upstream repo.
	ListWatchers(ctx context.Context, owner, repo string) ([]model.WatchedRepo, error)
	Update(ctx context.Context, w *model.WatchedRepo) error
	// Delete removes the watch and, by cascade, its tracked issues.
	Delete(ctx context.Context, id string) error
}

type TrackedIssueRepository interface {
	// Create returns apperror.ErrConflict if the (watchedRepoID, issueNumber)
	// pair is already tracked.
	Create(ctx context.Context, issue *model.TrackedIssue) error
	Exists(ctx context.Context, watchedRepoID string, issueNumber int) (bool, error)
	GetByID(ctx context.Context, id string) (*model.TrackedIssue, error)
	// GetForUser returns apperror.ErrNotFound unless the issue belongs to one
	// of userID's watches.
	GetForUser(ctx context.Context, userID, id string) (*model.TrackedIssue, error)
	List(ctx context.Context, f IssueFilter) ([]model.TrackedIssue, error)
	ListByStatus(ctx context.Context, status model.AutoFixStatus) ([]model.TrackedIssue, error)
	// ListOpenUnarchived returns issues still open upstream and not archived.
	ListOpenUnarchived(ctx context.Context) ([]model.TrackedIssue, error)

	// TransitionStatus is a conditional write: it moves the issue from `from`
	// to `to` only if the stored status still equals `from`. It reports false
	// (and changes nothing) when the precondition no longer holds.
	TransitionStatus(ctx context.Context, id string, from, to model.AutoFixStatus, upd model.StatusUpdate) (bool, error)

	// SetForkIssueNumber records the fork issue the agent was assigned on.
	SetForkIssueNumber(ctx context.Context, id string, number int) error
	MarkRead(ctx context.Context, id string, read bool) error
	Archive(ctx context.Context, id string, at time.Time) (bool, error)
	// Restore clears archived_at; reports false if the issue was not archived.
	Restore(ctx context.Context, id string) (bool, error)
	// MarkClosed stamps state=closed, closedAt and archivedAt on an open issue.
	MarkClosed(ctx context.Context, id string, closedAt, archivedAt time.Time) (bool, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type PreferencesRepository interface {
	// Get returns apperror.ErrNotFound when the user never saved preferences.
	Get(ctx context.Context, userID string) (*model.NotificationPreferences, error)
	Upsert(ctx context.Context, p *model.NotificationPreferences) error
	// ClearPushSubscription drops the stored subscription and disables push.
	ClearPushSubscription(ctx context.Context, userID string) error
}
