package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

// Triggerer starts the auto-fix of a freshly tracked issue.
type Triggerer interface {
	Trigger(ctx context.Context, issueID string) (bool, error)
}

// DiscoveryService turns upstream issues into tracked issues.
//
// For each candidate issue and watcher, in order: the watcher's label and
// title filters must match, the issue must not be tracked yet, and it must
// not already have a linked PR. A new row is then created as queued, the
// watcher is notified and the auto-fix is triggered. Triggers of one batch
// run concurrently and are joined before the batch returns; their failures
// are only logged.
type DiscoveryService struct {
	repos    repository.WatchedRepoRepository
	issues   repository.TrackedIssueRepository
	gateways GatewayProvider
	notify   Notifier
	autofix  Triggerer
	logger   *slog.Logger
}

func NewDiscoveryService(
	repos repository.WatchedRepoRepository,
	issues repository.TrackedIssueRepository,
	gateways GatewayProvider,
	notify Notifier,
	autofix Triggerer,
	logger *slog.Logger,
) *DiscoveryService {
	return &DiscoveryService{
		repos:    repos,
		issues:   issues,
		gateways: gateways,
		notify:   notify,
		autofix:  autofix,
		logger:   logger,
	}
}

// DiscoveryResult is returned by PollAll.
type DiscoveryResult struct {
	ReposPolled   int `json:"reposPolled"`
	IssuesCreated int `json:"issuesCreated"`
}

// SyncResult is returned by SyncUser.
type SyncResult struct {
	ReposSynced   int `json:"reposSynced"`
	IssuesCreated int `json:"issuesCreated"`
	PRsCreated    int `json:"prsCreated"`
}

// IssueEvent is the part of an "issues" webhook delivery discovery needs.
type IssueEvent struct {
	Action string
	Owner  string
	Repo   string
	Issue  github.Issue
}

// batch collects the auto-fix triggers launched while processing one
// request and joins them at the end.
type batch struct {
	triggers errgroup.Group
	created  atomic.Int64
}

// PollAll checks every non-frozen watch. Watches of the same upstream repo
// are grouped so its issues are listed once, with the credential of the
// first watcher that has one. A failing group is logged and skipped.
func (s *DiscoveryService) PollAll(ctx context.Context) (DiscoveryResult, error) {
	watches, err := s.repos.ListActive(ctx)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("service/discovery: listing watches: %w", err)
	}

	var (
		order  []string
		groups = make(map[string][]model.WatchedRepo)
	)
	for _, w := range watches {
		key := strings.ToLower(w.FullName())
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], w)
	}

	b := &batch{}
	res := DiscoveryResult{}
	for _, key := range order {
		res.ReposPolled++
		if err := s.pollGroup(ctx, groups[key], b); err != nil {
			s.logger.Error("polling repo",
				slog.String("repo", key),
				slog.String("error", err.Error()),
			)
		}
	}
	_ = b.triggers.Wait()

	res.IssuesCreated = int(b.created.Load())
	s.logger.Info("discovery poll",
		slog.Int("reposPolled", res.ReposPolled),
		slog.Int("issuesCreated", res.IssuesCreated),
	)
	return res, nil
}

func (s *DiscoveryService) pollGroup(ctx context.Context, watchers []model.WatchedRepo, b *batch) error {
	gw, err := s.firstGateway(ctx, watchers)
	if err != nil {
		return err
	}

	owner, repo := watchers[0].Owner, watchers[0].Repo
	issues, err := gw.ListOpenIssues(ctx, owner, repo)
	if err != nil {
		return err
	}

	linked := newLinkedCache(gw, owner, repo)
	for _, issue := range issues {
		for i := range watchers {
			s.consider(ctx, &watchers[i], issue, linked, b)
		}
	}
	return nil
}

func (s *DiscoveryService) firstGateway(ctx context.Context, watchers []model.WatchedRepo) (Gateway, error) {
	for _, w := range watchers {
		gw, err := s.gateways.ForUser(ctx, w.UserID)
		if err == nil {
			return gw, nil
		}
		if !isNoCredential(err) {
			return nil, err
		}
	}
	return nil, github.ErrNoCredential
}

// consider runs one issue through one watcher's pipeline. Errors are logged
// here so a bad issue never stops the rest of the batch.
func (s *DiscoveryService) consider(ctx context.Context, w *model.WatchedRepo, issue github.Issue, linked *linkedCache, b *batch) {
	if !w.Matches(issue.Title, issue.Labels) {
		return
	}

	exists, err := s.issues.Exists(ctx, w.ID, issue.Number)
	if err != nil {
		s.logIssueError("checking tracked issue", w, issue.Number, err)
		return
	}
	if exists {
		return
	}

	hasPR, err := linked.has(ctx, issue.Number)
	if err != nil {
		s.logIssueError("checking linked PRs", w, issue.Number, err)
		return
	}
	if hasPR {
		return
	}

	tracked := &model.TrackedIssue{
		WatchedRepoID: w.ID,
		IssueNumber:   issue.Number,
		Title:         issue.Title,
		URL:           issue.HTMLURL,
		Type:          model.TypeIssue,
		Labels:        issue.Labels,
		AutoFixStatus: model.StatusQueued,
	}
	if !s.create(ctx, w, tracked) {
		return
	}
	b.created.Add(1)

	b.triggers.Go(func() error {
		if _, err := s.autofix.Trigger(ctx, tracked.ID); err != nil {
			s.logIssueError("triggering auto-fix", w, issue.Number, err)
		}
		return nil
	})
}

// create stores the row and announces it. It reports false when nothing
// was created, including when a concurrent pass got there first.
func (s *DiscoveryService) create(ctx context.Context, w *model.WatchedRepo, tracked *model.TrackedIssue) bool {
	if err := s.issues.Create(ctx, tracked); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logIssueError("creating tracked issue", w, tracked.IssueNumber, err)
		}
		return false
	}

	if err := s.notify.Dispatch(ctx, Event{
		Kind:        EventNewIssue,
		UserID:      w.UserID,
		IssueID:     tracked.ID,
		Owner:       w.Owner,
		Repo:        w.Repo,
		IssueNumber: tracked.IssueNumber,
		Title:       tracked.Title,
		IssueURL:    tracked.URL,
		Labels:      tracked.Labels,
	}); err != nil {
		s.logIssueError("dispatching new issue", w, tracked.IssueNumber, err)
	}
	return true
}

// SyncUser runs discovery for one user's watches right away. Open PRs are
// tracked too, as skipped rows that never enter auto-fix.
func (s *DiscoveryService) SyncUser(ctx context.Context, userID string) (SyncResult, error) {
	gw, err := s.gateways.ForUser(ctx, userID)
	if err != nil {
		if isNoCredential(err) {
			return SyncResult{}, apperror.Unauthorized("GitHub access has expired, sign in again")
		}
		return SyncResult{}, fmt.Errorf("service/discovery: %w", err)
	}

	watches, err := s.repos.ListByUser(ctx, userID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("service/discovery: listing watches of %s: %w", userID, err)
	}

	b := &batch{}
	var prs int
	res := SyncResult{}
	for i := range watches {
		w := &watches[i]
		if w.Frozen {
			continue
		}
		res.ReposSynced++

		n, err := s.syncWatch(ctx, gw, w, b)
		prs += n
		if err != nil {
			s.logger.Error("syncing repo",
				slog.String("repo", w.FullName()),
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	_ = b.triggers.Wait()

	res.IssuesCreated = int(b.created.Load())
	res.PRsCreated = prs
	s.logger.Info("manual sync",
		slog.String("userID", userID),
		slog.Int("reposSynced", res.ReposSynced),
		slog.Int("issuesCreated", res.IssuesCreated),
		slog.Int("prsCreated", res.PRsCreated),
	)
	return res, nil
}

func (s *DiscoveryService) syncWatch(ctx context.Context, gw Gateway, w *model.WatchedRepo, b *batch) (int, error) {
	issues, err := gw.ListOpenIssues(ctx, w.Owner, w.Repo)
	if err != nil {
		return 0, err
	}
	linked := newLinkedCache(gw, w.Owner, w.Repo)
	for _, issue := range issues {
		s.consider(ctx, w, issue, linked, b)
	}

	prs, err := gw.ListOpenPullRequests(ctx, w.Owner, w.Repo)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, pr := range prs {
		if !w.Matches(pr.Title, pr.Labels) {
			continue
		}
		exists, err := s.issues.Exists(ctx, w.ID, pr.Number)
		if err != nil {
			s.logIssueError("checking tracked PR", w, pr.Number, err)
			continue
		}
		if exists {
			continue
		}
		if s.create(ctx, w, &model.TrackedIssue{
			WatchedRepoID: w.ID,
			IssueNumber:   pr.Number,
			Title:         pr.Title,
			URL:           pr.HTMLURL,
			Type:          model.TypePullRequest,
			Labels:        pr.Labels,
			AutoFixStatus: model.StatusSkipped,
		}) {
			created++
		}
	}
	return created, nil
}

// HandleIssueEvent reacts to an "opened" or "labeled" webhook delivery.
// Other actions are ignored. It returns the number of rows created.
func (s *DiscoveryService) HandleIssueEvent(ctx context.Context, ev IssueEvent) (int, error) {
	if ev.Action != "opened" && ev.Action != "labeled" {
		return 0, nil
	}

	watchers, err := s.repos.ListWatchers(ctx, ev.Owner, ev.Repo)
	if err != nil {
		return 0, fmt.Errorf("service/discovery: listing watchers of %s/%s: %w", ev.Owner, ev.Repo, err)
	}

	b := &batch{}
	for i := range watchers {
		w := &watchers[i]
		gw, err := s.gateways.ForUser(ctx, w.UserID)
		if err != nil {
			s.logIssueError("resolving credential", w, ev.Issue.Number, err)
			continue
		}
		s.consider(ctx, w, ev.Issue, newLinkedCache(gw, w.Owner, w.Repo), b)
	}
	_ = b.triggers.Wait()

	return int(b.created.Load()), nil
}

func (s *DiscoveryService) logIssueError(msg string, w *model.WatchedRepo, number int, err error) {
	s.logger.Error(msg,
		slog.String("repo", w.FullName()),
		slog.String("watchID", w.ID),
		slog.Int("issue", number),
		slog.String("error", err.Error()),
	)
}

// linkedCache remembers IssueHasLinkedPR answers for one upstream repo, so
// several watchers of the repo cost one timeline read per issue.
type linkedCache struct {
	gw          Gateway
	owner, repo string
	seen        map[int]bool
}

func newLinkedCache(gw Gateway, owner, repo string) *linkedCache {
	return &linkedCache{gw: gw, owner: owner, repo: repo, seen: make(map[int]bool)}
}

func (c *linkedCache) has(ctx context.Context, number int) (bool, error) {
	if v, ok := c.seen[number]; ok {
		return v, nil
	}
	v, err := c.gw.IssueHasLinkedPR(ctx, c.owner, c.repo, number)
	if err != nil {
		return false, err
	}
	c.seen[number] = v
	return v, nil
}
