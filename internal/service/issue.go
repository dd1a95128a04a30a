package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

const maxIssuePage = 200

// IssueService backs the issue board. State-machine actions are delegated
// to the AutoFixService.
type IssueService struct {
	issues  repository.TrackedIssueRepository
	autofix *AutoFixService
	logger  *slog.Logger
}

func NewIssueService(issues repository.TrackedIssueRepository, autofix *AutoFixService, logger *slog.Logger) *IssueService {
	return &IssueService{issues: issues, autofix: autofix, logger: logger}
}

// IssueQuery filters the board. Zero values mean "any".
type IssueQuery struct {
	Status        model.AutoFixStatus
	Archived      *bool
	UnreadOnly    bool
	WatchedRepoID string
	Limit         int
	Offset        int
}

// List returns userID's tracked issues, newest first.
func (s *IssueService) List(ctx context.Context, userID string, q IssueQuery) ([]model.TrackedIssue, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", q.Status))
	}
	if q.Limit <= 0 || q.Limit > maxIssuePage {
		q.Limit = maxIssuePage
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.issues.List(ctx, repository.IssueFilter{
		UserID:        userID,
		WatchedRepoID: q.WatchedRepoID,
		Status:        q.Status,
		Archived:      q.Archived,
		UnreadOnly:    q.UnreadOnly,
		ListOptions:   repository.ListOptions{Limit: q.Limit, Offset: q.Offset},
	})
}

// Drafts lists the issues whose draft PR is waiting for review.
func (s *IssueService) Drafts(ctx context.Context, userID string) ([]model.TrackedIssue, error) {
	return s.List(ctx, userID, IssueQuery{Status: model.StatusDraftReady})
}

func (s *IssueService) Get(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	return s.issues.GetForUser(ctx, userID, id)
}

func (s *IssueService) MarkRead(ctx context.Context, userID, id string, read bool) error {
	if _, err := s.issues.GetForUser(ctx, userID, id); err != nil {
		return err
	}
	return s.issues.MarkRead(ctx, id, read)
}

// Claim takes a queued issue out of auto-fix; the user fixes it themselves.
func (s *IssueService) Claim(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	if err := s.autofix.Claim(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.issues.GetByID(ctx, id)
}

func (s *IssueService) Unclaim(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	if err := s.autofix.Unclaim(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.issues.GetByID(ctx, id)
}

// Retry re-queues a failed issue and triggers the agent again.
func (s *IssueService) Retry(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	if _, err := s.autofix.Retry(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.issues.GetByID(ctx, id)
}

func (s *IssueService) Archive(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	if _, err := s.issues.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	ok, err := s.issues.Archive(ctx, id, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Precondition("issue", id, "already archived")
	}
	return s.issues.GetByID(ctx, id)
}

// Restore un-archives an issue. It does not reopen anything upstream.
func (s *IssueService) Restore(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	if _, err := s.issues.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	ok, err := s.issues.Restore(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Precondition("issue", id, "not archived")
	}
	return s.issues.GetByID(ctx, id)
}
