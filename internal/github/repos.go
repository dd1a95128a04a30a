package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/sakif/oss-hunter/internal/retry"
)

// permissionOrder lists GitHub repository roles from strongest to weakest.
var permissionOrder = []string{"admin", "maintain", "push", "triage", "pull"}

// CheckOwnership reports the caller's access to owner/repo. The repo counts
// as owned when the caller can push to it.
func (c *Client) CheckOwnership(ctx context.Context, owner, repo string) (Ownership, error) {
	r, err := retry.DoVal(ctx, func() (*gh.Repository, error) {
		r, _, err := c.rest.Repositories.Get(ctx, owner, repo)
		return r, wrapErr("get repo "+owner+"/"+repo, err)
	}, c.retryOpts()...)
	if err != nil {
		return Ownership{}, err
	}

	perms := r.GetPermissions()
	level := ""
	for _, p := range permissionOrder {
		if perms[p] {
			level = p
			break
		}
	}
	return Ownership{
		IsOwned:         perms["push"] || perms["admin"],
		PermissionLevel: level,
	}, nil
}

// ForkRepository returns the caller's fork of owner/repo, creating it when
// absent. After creating a fork it waits for the settle delay; the fork may
// still be empty when this returns.
func (c *Client) ForkRepository(ctx context.Context, owner, repo string) (Fork, error) {
	me, err := retry.DoVal(ctx, func() (*gh.User, error) {
		u, _, err := c.rest.Users.Get(ctx, "")
		return u, wrapErr("get authenticated user", err)
	}, c.retryOpts()...)
	if err != nil {
		return Fork{}, err
	}
	login := me.GetLogin()

	existing, _, err := c.rest.Repositories.Get(ctx, login, repo)
	if err != nil {
		if werr := wrapErr("get repo "+login+"/"+repo, err); !IsNotFound(werr) {
			return Fork{}, werr
		}
	} else if existing.GetFork() && strings.EqualFold(existing.GetParent().GetFullName(), owner+"/"+repo) {
		return Fork{Owner: login, Repo: existing.GetName()}, nil
	}

	created, _, err := c.rest.Repositories.CreateFork(ctx, owner, repo, &gh.RepositoryCreateForkOptions{})
	if err != nil {
		// 202 Accepted: the fork is being created in the background.
		var accepted *gh.AcceptedError
		if !errors.As(err, &accepted) {
			return Fork{}, wrapErr("fork "+owner+"/"+repo, err)
		}
		created = &gh.Repository{}
		if len(accepted.Raw) > 0 {
			if jerr := json.Unmarshal(accepted.Raw, created); jerr != nil {
				return Fork{}, &GatewayError{Op: "fork " + owner + "/" + repo, Err: jerr}
			}
		}
	}

	fork := Fork{Owner: created.GetOwner().GetLogin(), Repo: created.GetName()}
	if fork.Owner == "" {
		fork.Owner = login
	}
	if fork.Repo == "" {
		fork.Repo = repo
	}

	if c.forkSettle > 0 {
		t := time.NewTimer(c.forkSettle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return fork, ctx.Err()
		case <-t.C:
		}
	}
	return fork, nil
}

// SearchRepositories searches GitHub for repositories. Owner mode lists the
// repositories of a user or organization directly; the other modes use the
// search API, name mode restricted to repository names.
func (c *Client) SearchRepositories(ctx context.Context, query string, page, perPage int, typ SearchType) (SearchResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	query = strings.TrimSpace(query)
	lo := gh.ListOptions{Page: page, PerPage: perPage}

	if typ == SearchOwner {
		return c.listOwnerRepos(ctx, query, lo)
	}

	q := query
	if typ == SearchName {
		q += " in:name"
	}
	res, err := retry.DoVal(ctx, func() (*gh.RepositoriesSearchResult, error) {
		res, _, err := c.rest.Search.Repositories(ctx, q, &gh.SearchOptions{
			Sort:        "stars",
			Order:       "desc",
			ListOptions: lo,
		})
		return res, wrapErr("search repositories", err)
	}, c.retryOpts()...)
	if err != nil {
		return SearchResult{}, err
	}

	total := res.GetTotal()
	return SearchResult{
		Repositories: toRepositories(res.Repositories),
		TotalCount:   total,
		Page:         page,
		PerPage:      perPage,
		HasMore:      page*perPage < total,
	}, nil
}

func (c *Client) listOwnerRepos(ctx context.Context, owner string, lo gh.ListOptions) (SearchResult, error) {
	u, err := retry.DoVal(ctx, func() (*gh.User, error) {
		u, _, err := c.rest.Users.Get(ctx, owner)
		return u, wrapErr("get user "+owner, err)
	}, c.retryOpts()...)
	if err != nil {
		return SearchResult{}, err
	}

	var resp *gh.Response
	repos, err := retry.DoVal(ctx, func() ([]*gh.Repository, error) {
		var (
			rs  []*gh.Repository
			r   *gh.Response
			err error
		)
		if u.GetType() == "Organization" {
			rs, r, err = c.rest.Repositories.ListByOrg(ctx, owner, &gh.RepositoryListByOrgOptions{
				Sort: "updated", ListOptions: lo,
			})
		} else {
			rs, r, err = c.rest.Repositories.ListByUser(ctx, owner, &gh.RepositoryListByUserOptions{
				Sort: "updated", ListOptions: lo,
			})
		}
		resp = r
		return rs, wrapErr(fmt.Sprintf("list repos of %s", owner), err)
	}, c.retryOpts()...)
	if err != nil {
		return SearchResult{}, err
	}

	return SearchResult{
		Repositories: toRepositories(repos),
		TotalCount:   u.GetPublicRepos(),
		Page:         lo.Page,
		PerPage:      lo.PerPage,
		HasMore:      resp != nil && resp.NextPage != 0,
	}, nil
}

func toRepositories(rs []*gh.Repository) []Repository {
	out := make([]Repository, 0, len(rs))
	for _, r := range rs {
		out = append(out, Repository{
			Owner:       r.GetOwner().GetLogin(),
			Name:        r.GetName(),
			FullName:    r.GetFullName(),
			Description: r.GetDescription(),
			HTMLURL:     r.GetHTMLURL(),
			Stars:       r.GetStargazersCount(),
			OpenIssues:  r.GetOpenIssuesCount(),
			Language:    r.GetLanguage(),
			Fork:        r.GetFork(),
		})
	}
	return out
}
