package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

// DefaultGenerationTimeout is how long the agent gets to open a PR.
const DefaultGenerationTimeout = 2 * time.Hour

// pollConcurrency caps parallel status checks in one poll cycle.
const pollConcurrency = 4

// AutoFixService drives tracked issues through the auto-fix lifecycle:
//
//	queued → generating → draft_ready → published | rejected
//	generating → failed          (assignment failure or timeout)
//	queued ⇄ skipped             (claim / unclaim)
//	failed → queued              (retry)
//
// Every transition is a conditional write on the issue row, so concurrent
// triggers from a poll and a webhook cannot both win.
type AutoFixService struct {
	issues   repository.TrackedIssueRepository
	repos    repository.WatchedRepoRepository
	gateways GatewayProvider
	notify   Notifier
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// AutoFixOption configures an AutoFixService.
type AutoFixOption func(*AutoFixService)

// WithGenerationTimeout overrides DefaultGenerationTimeout.
func WithGenerationTimeout(d time.Duration) AutoFixOption {
	return func(s *AutoFixService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now. Tests use it to age generating issues.
func WithClock(now func() time.Time) AutoFixOption {
	return func(s *AutoFixService) { s.now = now }
}

func NewAutoFixService(
	issues repository.TrackedIssueRepository,
	repos repository.WatchedRepoRepository,
	gateways GatewayProvider,
	notify Notifier,
	logger *slog.Logger,
	opts ...AutoFixOption,
) *AutoFixService {
	s := &AutoFixService{
		issues:   issues,
		repos:    repos,
		gateways: gateways,
		notify:   notify,
		timeout:  DefaultGenerationTimeout,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger moves a queued issue to generating and assigns the coding agent,
// on the upstream repo when the watcher owns it, otherwise on a mirrored
// issue in the watcher's fork.
//
// It reports whether the agent was assigned. An issue that is not queued, or
// is claimed, is left alone and Trigger returns false with a nil error. An
// assignment failure moves the issue to failed and also returns false; only
// storage errors are returned.
func (s *AutoFixService) Trigger(ctx context.Context, issueID string) (bool, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return false, fmt.Errorf("service/autofix: loading issue %s: %w", issueID, err)
	}
	if issue.AutoFixStatus != model.StatusQueued || issue.ClaimedAt != nil {
		return false, nil
	}

	watch, err := s.repos.GetByID(ctx, issue.WatchedRepoID)
	if err != nil {
		return false, fmt.Errorf("service/autofix: loading watch for issue %s: %w", issueID, err)
	}

	// generatingAt is always overwritten so a retried issue is timed from
	// this attempt.
	now := s.now()
	ok, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusQueued, model.StatusGenerating,
		model.StatusUpdate{GeneratingAt: &now})
	if err != nil {
		return false, fmt.Errorf("service/autofix: starting issue %s: %w", issueID, err)
	}
	if !ok {
		return false, nil
	}

	gw, err := s.gateways.ForUser(ctx, watch.UserID)
	if err != nil {
		return false, s.fail(ctx, issue, watch, "no GitHub credential", err, model.StatusUpdate{})
	}

	if watch.IsOwned {
		res, err := gw.AssignCodingAgent(ctx, watch.Owner, watch.Repo, issue.IssueNumber)
		if err != nil || !res.Success {
			return false, s.fail(ctx, issue, watch, "agent assignment failed", err, model.StatusUpdate{})
		}
		s.logger.Info("coding agent assigned",
			slog.String("repo", watch.FullName()),
			slog.Int("issue", issue.IssueNumber),
		)
		return true, nil
	}

	return s.assignOnFork(ctx, gw, issue, watch)
}

// assignOnFork mirrors the upstream issue onto the watcher's fork and assigns
// the agent there. A fork issue that was created stays in place when the
// assignment then fails.
func (s *AutoFixService) assignOnFork(ctx context.Context, gw Gateway, issue *model.TrackedIssue, watch *model.WatchedRepo) (bool, error) {
	if !watch.HasFork() {
		return false, s.fail(ctx, issue, watch, "watch has no fork", nil, model.StatusUpdate{})
	}
	forkOwner, forkRepo := *watch.ForkOwner, *watch.ForkRepo

	agentID, err := gw.FindCodingAgent(ctx, forkOwner, forkRepo)
	if err != nil || agentID == "" {
		return false, s.fail(ctx, issue, watch, "coding agent not available on fork", err, model.StatusUpdate{})
	}

	forkIssue, err := gw.CreateLinkedForkIssue(ctx, watch.Owner, watch.Repo, issue.IssueNumber, forkOwner, forkRepo)
	if err != nil {
		return false, s.fail(ctx, issue, watch, "creating fork issue failed", err, model.StatusUpdate{})
	}
	if err := s.issues.SetForkIssueNumber(ctx, issue.ID, forkIssue); err != nil {
		s.logger.Error("recording fork issue",
			slog.String("issueID", issue.ID),
			slog.Int("forkIssue", forkIssue),
			slog.String("error", err.Error()),
		)
	}

	res, err := gw.AssignCodingAgent(ctx, forkOwner, forkRepo, forkIssue)
	if err != nil || !res.Success {
		return false, s.fail(ctx, issue, watch, "agent assignment on fork failed", err,
			model.StatusUpdate{ForkIssueNumber: &forkIssue})
	}

	s.logger.Info("coding agent assigned on fork",
		slog.String("repo", watch.FullName()),
		slog.String("fork", forkOwner+"/"+forkRepo),
		slog.Int("issue", issue.IssueNumber),
		slog.Int("forkIssue", forkIssue),
	)
	return true, nil
}

// fail moves a generating issue to failed. It returns an error only when the
// store could not be written.
func (s *AutoFixService) fail(ctx context.Context, issue *model.TrackedIssue, watch *model.WatchedRepo, reason string, cause error, upd model.StatusUpdate) error {
	attrs := []any{
		slog.String("repo", watch.FullName()),
		slog.Int("issue", issue.IssueNumber),
		slog.String("reason", reason),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	s.logger.Warn("auto-fix failed", attrs...)

	if _, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusGenerating, model.StatusFailed, upd); err != nil {
		return fmt.Errorf("service/autofix: failing issue %s: %w", issue.ID, err)
	}
	return nil
}

// PollResult summarises one generating-status sweep. Successful counts
// issues checked without error, whatever the outcome.
type PollResult struct {
	Polled     int `json:"polled"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// PollGenerating checks every generating issue for an agent-authored PR.
// Issues past the generation timeout fail without a status check.
func (s *AutoFixService) PollGenerating(ctx context.Context) (PollResult, error) {
	issues, err := s.issues.ListByStatus(ctx, model.StatusGenerating)
	if err != nil {
		return PollResult{}, fmt.Errorf("service/autofix: listing generating issues: %w", err)
	}

	var (
		mu      sync.Mutex
		res     = PollResult{Polled: len(issues)}
		watches = newWatchCache(s.repos)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for i := range issues {
		issue := &issues[i]
		g.Go(func() error {
			err := s.checkGenerating(gctx, issue, watches)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				s.logger.Error("checking agent status",
					slog.String("issueID", issue.ID),
					slog.Int("issue", issue.IssueNumber),
					slog.String("error", err.Error()),
				)
				return nil
			}
			res.Successful++
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("agent status poll",
		slog.Int("polled", res.Polled),
		slog.Int("successful", res.Successful),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *AutoFixService) checkGenerating(ctx context.Context, issue *model.TrackedIssue, watches *watchCache) error {
	if issue.GeneratingAt == nil || s.now().Sub(*issue.GeneratingAt) > s.timeout {
		ok, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusGenerating, model.StatusFailed, model.StatusUpdate{})
		if err != nil {
			return err
		}
		if ok {
			s.logger.Warn("auto-fix timed out",
				slog.String("issueID", issue.ID),
				slog.Int("issue", issue.IssueNumber),
			)
		}
		return nil
	}

	watch, err := watches.get(ctx, issue.WatchedRepoID)
	if err != nil {
		return err
	}
	gw, err := s.gateways.ForUser(ctx, watch.UserID)
	if err != nil {
		return err
	}

	status, prOwner, err := s.agentPRStatus(ctx, gw, issue, watch)
	if err != nil {
		return err
	}
	if !status.HasPR {
		return nil
	}

	number, url := status.PRNumber, status.PRURL
	ok, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusGenerating, model.StatusDraftReady, model.StatusUpdate{
		DraftPRNumber: &number,
		DraftPRURL:    &url,
		DraftPROwner:  &prOwner,
	})
	if err != nil || !ok {
		return err
	}

	s.logger.Info("draft PR ready",
		slog.String("repo", watch.FullName()),
		slog.Int("issue", issue.IssueNumber),
		slog.Int("pr", number),
	)
	if err := s.notify.Dispatch(ctx, Event{
		Kind:        EventDraftReady,
		UserID:      watch.UserID,
		IssueID:     issue.ID,
		Owner:       watch.Owner,
		Repo:        watch.Repo,
		IssueNumber: issue.IssueNumber,
		Title:       issue.Title,
		IssueURL:    issue.URL,
		PRNumber:    number,
		PRURL:       url,
	}); err != nil {
		s.logger.Error("dispatching draft ready", slog.String("issueID", issue.ID), slog.String("error", err.Error()))
	}
	return nil
}

// agentPRStatus looks for the agent's PR and reports which account owns it.
func (s *AutoFixService) agentPRStatus(ctx context.Context, gw Gateway, issue *model.TrackedIssue, watch *model.WatchedRepo) (github.AgentPRStatus, string, error) {
	if watch.IsOwned || !watch.HasFork() {
		st, err := gw.CheckAgentPRStatus(ctx, watch.Owner, watch.Repo, issue.IssueNumber)
		return st, watch.Owner, err
	}

	forkOwner, forkRepo := *watch.ForkOwner, *watch.ForkRepo
	if issue.ForkIssueNumber != nil {
		st, err := gw.CheckAgentPRStatus(ctx, forkOwner, forkRepo, *issue.ForkIssueNumber)
		if err != nil || st.HasPR {
			return st, forkOwner, err
		}
	}
	st, err := gw.FindForkAgentPR(ctx, forkOwner, forkRepo, watch.Owner, watch.Repo, issue.IssueNumber)
	return st, forkOwner, err
}

// Publish marks the draft PR ready for review and moves the issue to
// published. A gateway failure leaves the issue draft_ready.
func (s *AutoFixService) Publish(ctx context.Context, userID, issueID string) (*model.TrackedIssue, error) {
	return s.finishDraft(ctx, userID, issueID, model.StatusPublished)
}

// Reject closes the draft PR without merging and moves the issue to rejected.
func (s *AutoFixService) Reject(ctx context.Context, userID, issueID string) (*model.TrackedIssue, error) {
	return s.finishDraft(ctx, userID, issueID, model.StatusRejected)
}

func (s *AutoFixService) finishDraft(ctx context.Context, userID, issueID string, to model.AutoFixStatus) (*model.TrackedIssue, error) {
	issue, err := s.issues.GetForUser(ctx, userID, issueID)
	if err != nil {
		return nil, err
	}
	if issue.AutoFixStatus != model.StatusDraftReady || issue.DraftPRNumber == nil {
		return nil, apperror.Precondition("draft", issueID, "not ready for review")
	}

	watch, err := s.repos.GetByID(ctx, issue.WatchedRepoID)
	if err != nil {
		return nil, fmt.Errorf("service/autofix: loading watch for issue %s: %w", issueID, err)
	}
	gw, err := s.gateways.ForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/autofix: %w", err)
	}

	owner, repo := draftLocation(issue, watch)
	number := *issue.DraftPRNumber

	upd := model.StatusUpdate{}
	if to == model.StatusPublished {
		err = gw.PublishDraftPR(ctx, owner, repo, number)
		now := s.now()
		upd.PublishedAt = &now
	} else {
		err = gw.CloseDraftPR(ctx, owner, repo, number)
	}
	if err != nil {
		return nil, fmt.Errorf("service/autofix: %s PR %s/%s#%d: %w", to, owner, repo, number, err)
	}

	ok, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusDraftReady, to, upd)
	if err != nil {
		return nil, fmt.Errorf("service/autofix: %s issue %s: %w", to, issueID, err)
	}
	if !ok {
		return nil, apperror.Precondition("draft", issueID, "changed while being reviewed")
	}

	s.logger.Info("draft PR reviewed",
		slog.String("repo", owner+"/"+repo),
		slog.Int("pr", number),
		slog.String("status", string(to)),
	)
	return s.issues.GetByID(ctx, issue.ID)
}

// draftLocation returns the repo the draft PR lives in: the fork when the
// PR was opened there, otherwise upstream.
func draftLocation(issue *model.TrackedIssue, watch *model.WatchedRepo) (owner, repo string) {
	owner, repo = watch.Owner, watch.Repo
	if issue.DraftPROwner == nil || *issue.DraftPROwner == "" {
		return owner, repo
	}
	owner = *issue.DraftPROwner
	if watch.HasFork() && owner == *watch.ForkOwner {
		repo = *watch.ForkRepo
	}
	return owner, repo
}

// Claim marks a queued issue as being worked on by a human. Claimed issues
// are never triggered.
func (s *AutoFixService) Claim(ctx context.Context, userID, issueID string) error {
	issue, err := s.issues.GetForUser(ctx, userID, issueID)
	if err != nil {
		return err
	}
	now := s.now()
	ok, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusQueued, model.StatusSkipped,
		model.StatusUpdate{ClaimedAt: &now})
	if err != nil {
		return fmt.Errorf("service/autofix: claiming issue %s: %w", issueID, err)
	}
	if !ok {
		return apperror.Precondition("issue", issueID, "only queued issues can be claimed")
	}
	return nil
}

// Unclaim returns a claimed issue to the queue.
func (s *AutoFixService) Unclaim(ctx context.Context, userID, issueID string) error {
	issue, err := s.issues.GetForUser(ctx, userID, issueID)
	if err != nil {
		return err
	}
	if issue.ClaimedAt == nil {
		return apperror.Precondition("issue", issueID, "issue is not claimed")
	}
	ok, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusSkipped, model.StatusQueued,
		model.StatusUpdate{ClearClaimedAt: true})
	if err != nil {
		return fmt.Errorf("service/autofix: unclaiming issue %s: %w", issueID, err)
	}
	if !ok {
		return apperror.Precondition("issue", issueID, "issue is not claimed")
	}
	return nil
}

// Retry re-queues a failed issue and triggers it. A queued issue is
// triggered as is.
func (s *AutoFixService) Retry(ctx context.Context, userID, issueID string) (bool, error) {
	issue, err := s.issues.GetForUser(ctx, userID, issueID)
	if err != nil {
		return false, err
	}

	switch issue.AutoFixStatus {
	case model.StatusFailed:
		ok, err := s.issues.TransitionStatus(ctx, issue.ID, model.StatusFailed, model.StatusQueued, model.StatusUpdate{})
		if err != nil {
			return false, fmt.Errorf("service/autofix: re-queueing issue %s: %w", issueID, err)
		}
		if !ok {
			return false, apperror.Precondition("issue", issueID, "status changed")
		}
	case model.StatusQueued:
	default:
		return false, apperror.Precondition("issue", issueID, "only failed or queued issues can be retried")
	}

	return s.Trigger(ctx, issue.ID)
}

// watchCache memoises watched repos within one sweep.
type watchCache struct {
	repos repository.WatchedRepoRepository
	mu    sync.Mutex
	byID  map[string]*model.WatchedRepo
}

func newWatchCache(repos repository.WatchedRepoRepository) *watchCache {
	return &watchCache{repos: repos, byID: make(map[string]*model.WatchedRepo)}
}

func (c *watchCache) get(ctx context.Context, id string) (*model.WatchedRepo, error) {
	c.mu.Lock()
	w, ok := c.byID[id]
	c.mu.Unlock()
	if ok {
		return w, nil
	}

	w, err := c.repos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byID[id] = w
	c.mu.Unlock()
	return w, nil
}

// isNoCredential reports whether err means the user has no usable token.
func isNoCredential(err error) bool {
	return errors.Is(err, github.ErrNoCredential)
}
