package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

// ReconcileResult is returned by Reconciler.Sweep.
type ReconcileResult struct {
	IssuesChecked int `json:"issuesChecked"`
	IssuesClosed  int `json:"issuesClosed"`
}

// Reconciler archives tracked issues that were closed upstream.
type Reconciler struct {
	issues   repository.TrackedIssueRepository
	repos    repository.WatchedRepoRepository
	gateways GatewayProvider
	notify   Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewReconciler(
	issues repository.TrackedIssueRepository,
	repos repository.WatchedRepoRepository,
	gateways GatewayProvider,
	notify Notifier,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		issues:   issues,
		repos:    repos,
		gateways: gateways,
		notify:   notify,
		now:      time.Now,
		logger:   logger,
	}
}

// Sweep re-checks every open, unarchived issue. A closed one is stamped
// closed and archived, and its watcher is told. Per-issue failures are
// logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context) (ReconcileResult, error) {
	open, err := r.issues.ListOpenUnarchived(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("service/reconcile: listing open issues: %w", err)
	}

	var (
		mu      sync.Mutex
		res     = ReconcileResult{IssuesChecked: len(open)}
		watches = newWatchCache(r.repos)
	)
	var g errgroup.Group
	g.SetLimit(pollConcurrency)
	for i := range open {
		issue := &open[i]
		g.Go(func() error {
			closed, err := r.reconcile(ctx, issue, watches)
			if err != nil {
				r.logger.Error("checking issue state",
					slog.String("issueID", issue.ID),
					slog.Int("issue", issue.IssueNumber),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if closed {
				mu.Lock()
				res.IssuesClosed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("closure sweep",
		slog.Int("issuesChecked", res.IssuesChecked),
		slog.Int("issuesClosed", res.IssuesClosed),
	)
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, issue *model.TrackedIssue, watches *watchCache) (bool, error) {
	watch, err := watches.get(ctx, issue.WatchedRepoID)
	if err != nil {
		return false, err
	}
	gw, err := r.gateways.ForUser(ctx, watch.UserID)
	if err != nil {
		return false, err
	}

	state, err := gw.FetchIssueState(ctx, watch.Owner, watch.Repo, issue.IssueNumber)
	if err != nil {
		return false, err
	}
	if !state.Closed() {
		return false, nil
	}

	now := r.now()
	closedAt := now
	if state.ClosedAt != nil {
		closedAt = *state.ClosedAt
	}
	ok, err := r.issues.MarkClosed(ctx, issue.ID, closedAt, now)
	if err != nil || !ok {
		return false, err
	}

	if err := r.notify.Dispatch(ctx, Event{
		Kind:        EventIssueClosed,
		UserID:      watch.UserID,
		IssueID:     issue.ID,
		Owner:       watch.Owner,
		Repo:        watch.Repo,
		IssueNumber: issue.IssueNumber,
		Title:       issue.Title,
		IssueURL:    issue.URL,
	}); err != nil {
		r.logger.Error("dispatching issue closed", slog.String("issueID", issue.ID), slog.String("error", err.Error()))
	}
	return true, nil
}
