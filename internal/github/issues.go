package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/sakif/oss-hunter/internal/retry"
)

// ListOpenIssues returns the open issues of owner/repo, newest first.
// Pull requests, which the issues endpoint also returns, are dropped.
func (c *Client) ListOpenIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	out := []Issue{}
	for range maxPages {
		var resp *gh.Response
		page, err := retry.DoVal(ctx, func() ([]*gh.Issue, error) {
			issues, r, err := c.rest.Issues.ListByRepo(ctx, owner, repo, opts)
			resp = r
			return issues, wrapErr("list issues "+owner+"/"+repo, err)
		}, c.retryOpts()...)
		if err != nil {
			return nil, err
		}

		for _, is := range page {
			if is.IsPullRequest() {
				continue
			}
			out = append(out, toIssue(is))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ListOpenPullRequests returns the open pull requests of owner/repo.
func (c *Client) ListOpenPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	out := []PullRequest{}
	for range maxPages {
		var resp *gh.Response
		page, err := retry.DoVal(ctx, func() ([]*gh.PullRequest, error) {
			prs, r, err := c.rest.PullRequests.List(ctx, owner, repo, opts)
			resp = r
			return prs, wrapErr("list pull requests "+owner+"/"+repo, err)
		}, c.retryOpts()...)
		if err != nil {
			return nil, err
		}

		for _, pr := range page {
			out = append(out, PullRequest{
				Number:  pr.GetNumber(),
				Title:   pr.GetTitle(),
				HTMLURL: pr.GetHTMLURL(),
				Labels:  labelNames(pr.Labels),
				Author:  pr.GetUser().GetLogin(),
				Draft:   pr.GetDraft(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// FetchIssueState returns the upstream open/closed state of one issue.
func (c *Client) FetchIssueState(ctx context.Context, owner, repo string, number int) (IssueState, error) {
	is, err := retry.DoVal(ctx, func() (*gh.Issue, error) {
		is, _, err := c.rest.Issues.Get(ctx, owner, repo, number)
		return is, wrapErr(fmt.Sprintf("get issue %s/%s#%d", owner, repo, number), err)
	}, c.retryOpts()...)
	if err != nil {
		return IssueState{}, err
	}

	return IssueState{State: is.GetState(), ClosedAt: timestamp(is.ClosedAt)}, nil
}

// timeline returns the timeline events of an issue.
func (c *Client) timeline(ctx context.Context, owner, repo string, number int) ([]*gh.Timeline, error) {
	opts := &gh.ListOptions{PerPage: 100}

	var out []*gh.Timeline
	for range maxPages {
		var resp *gh.Response
		page, err := retry.DoVal(ctx, func() ([]*gh.Timeline, error) {
			events, r, err := c.rest.Issues.ListIssueTimeline(ctx, owner, repo, number, opts)
			resp = r
			return events, wrapErr(fmt.Sprintf("issue timeline %s/%s#%d", owner, repo, number), err)
		}, c.retryOpts()...)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// crossReferencedPRs yields the pull requests that cross-reference an issue.
func crossReferencedPRs(events []*gh.Timeline) []*gh.Issue {
	var prs []*gh.Issue
	for _, ev := range events {
		if ev.GetEvent() != "cross-referenced" || ev.Source == nil || ev.Source.Issue == nil {
			continue
		}
		if ev.Source.Issue.PullRequestLinks == nil {
			continue
		}
		prs = append(prs, ev.Source.Issue)
	}
	return prs
}

// IssueHasLinkedPR reports whether any pull request cross-references the issue.
func (c *Client) IssueHasLinkedPR(ctx context.Context, owner, repo string, number int) (bool, error) {
	events, err := c.timeline(ctx, owner, repo, number)
	if err != nil {
		return false, err
	}
	return len(crossReferencedPRs(events)) > 0, nil
}

// CheckAgentPRStatus looks for a pull request opened by the coding agent
// that cross-references the issue.
func (c *Client) CheckAgentPRStatus(ctx context.Context, owner, repo string, number int) (AgentPRStatus, error) {
	events, err := c.timeline(ctx, owner, repo, number)
	if err != nil {
		return AgentPRStatus{}, err
	}
	for _, pr := range crossReferencedPRs(events) {
		if pr.GetNumber() == 0 || pr.GetHTMLURL() == "" {
			continue
		}
		if !c.isAgent(pr.GetUser().GetLogin()) {
			continue
		}
		return AgentPRStatus{
			HasPR:    true,
			PRNumber: pr.GetNumber(),
			PRURL:    pr.GetHTMLURL(),
			IsDraft:  pr.GetDraft(),
		}, nil
	}
	return AgentPRStatus{}, nil
}

// FindForkAgentPR scans recent pull requests on a fork for one opened by the
// coding agent that points back at upstreamOwner/upstreamRepo#number, either
// in its body or through the "[Upstream #N]" title prefix.
func (c *Client) FindForkAgentPR(ctx context.Context, forkOwner, forkRepo, upstreamOwner, upstreamRepo string, number int) (AgentPRStatus, error) {
	opts := &gh.PullRequestListOptions{State: "all", ListOptions: gh.ListOptions{PerPage: 30}}
	prs, err := retry.DoVal(ctx, func() ([]*gh.PullRequest, error) {
		prs, _, err := c.rest.PullRequests.List(ctx, forkOwner, forkRepo, opts)
		return prs, wrapErr("list pull requests "+forkOwner+"/"+forkRepo, err)
	}, c.retryOpts()...)
	if err != nil {
		return AgentPRStatus{}, err
	}

	shortRef := fmt.Sprintf("%s/%s#%d", upstreamOwner, upstreamRepo, number)
	urlRef := fmt.Sprintf("%s/%s/issues/%d", upstreamOwner, upstreamRepo, number)
	titleRef := upstreamTitlePrefix(number)

	for _, pr := range prs {
		if !c.isAgent(pr.GetUser().GetLogin()) {
			continue
		}
		body := pr.GetBody()
		if containsAny(body, shortRef, urlRef) || containsAny(pr.GetTitle(), titleRef) {
			return AgentPRStatus{
				HasPR:    true,
				PRNumber: pr.GetNumber(),
				PRURL:    pr.GetHTMLURL(),
				IsDraft:  pr.GetDraft(),
			}, nil
		}
	}
	return AgentPRStatus{}, nil
}

// CreateLinkedForkIssue mirrors an upstream issue onto the fork and returns
// the new issue number on the fork.
func (c *Client) CreateLinkedForkIssue(ctx context.Context, upstreamOwner, upstreamRepo string, number int, forkOwner, forkRepo string) (int, error) {
	upstream, err := retry.DoVal(ctx, func() (*gh.Issue, error) {
		is, _, err := c.rest.Issues.Get(ctx, upstreamOwner, upstreamRepo, number)
		return is, wrapErr(fmt.Sprintf("get issue %s/%s#%d", upstreamOwner, upstreamRepo, number), err)
	}, c.retryOpts()...)
	if err != nil {
		return 0, err
	}

	body := upstream.GetBody()
	if body == "" {
		body = "No description provided."
	}
	labels := labelNames(upstream.Labels)
	req := &gh.IssueRequest{
		Title:  gh.Ptr(upstreamTitlePrefix(number) + " " + upstream.GetTitle()),
		Body:   gh.Ptr(fmt.Sprintf("This issue tracks the fix for upstream issue: %s\n\n---\n\n%s", upstream.GetHTMLURL(), body)),
		Labels: &labels,
	}

	created, _, err := c.rest.Issues.Create(ctx, forkOwner, forkRepo, req)
	if err != nil {
		return 0, wrapErr("create issue on "+forkOwner+"/"+forkRepo, err)
	}
	return created.GetNumber(), nil
}

func toIssue(is *gh.Issue) Issue {
	return Issue{
		Number:  is.GetNumber(),
		Title:   is.GetTitle(),
		Body:    is.GetBody(),
		HTMLURL: is.GetHTMLURL(),
		Labels:  labelNames(is.Labels),
		Author:  is.GetUser().GetLogin(),
	}
}

func upstreamTitlePrefix(number int) string {
	return fmt.Sprintf("[Upstream #%d]", number)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// timestamp converts an optional go-github timestamp.
func timestamp(ts *gh.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}
