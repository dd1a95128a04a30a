package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/github"
)

func newTestWatchService() (*WatchService, *fakeWatchRepo, *fakeGateway) {
	repos := newFakeWatchRepo()
	gw := newFakeGateway()
	return NewWatchService(repos, providerFor("u1", gw), discardLogger()), repos, gw
}

// =========================================================================
// Add TESTS
// =========================================================================

func TestAdd_OwnedRepo(t *testing.T) {
	svc, _, gw := newTestWatchService()
	gw.ownership["acme/widgets"] = github.Ownership{IsOwned: true, PermissionLevel: "admin"}

	w, err := svc.Add(context.Background(), "u1", AddWatchInput{
		Owner: " acme ", Repo: "widgets",
		LabelFilters: []string{"bug", " bug ", "", "good first issue"},
		TitleQuery:   "  crash ",
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if w.ID == "" || !w.IsOwned || w.HasFork() {
		t.Errorf("watch = %+v", w)
	}
	if w.Owner != "acme" || w.TitleQuery != "crash" {
		t.Errorf("owner = %q, titleQuery = %q", w.Owner, w.TitleQuery)
	}
	if strings.Join(w.LabelFilters, ",") != "bug,good first issue" {
		t.Errorf("labels = %v", w.LabelFilters)
	}
	if len(gw.called("fork")) != 0 {
		t.Error("owned repos are not forked")
	}
}

func TestAdd_NotOwnedRepoIsForked(t *testing.T) {
	svc, _, gw := newTestWatchService()
	gw.ownership["oss/lib"] = github.Ownership{PermissionLevel: "pull"}
	gw.fork = github.Fork{Owner: "u1", Repo: "lib"}

	w, err := svc.Add(context.Background(), "u1", AddWatchInput{Owner: "oss", Repo: "lib"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if w.IsOwned {
		t.Error("IsOwned = true, want false")
	}
	if !w.HasFork() || *w.ForkOwner != "u1" || *w.ForkRepo != "lib" {
		t.Errorf("fork = %v/%v", w.ForkOwner, w.ForkRepo)
	}
}

func TestAdd_ForkFailureKeepsWatch(t *testing.T) {
	svc, repos, gw := newTestWatchService()
	gw.forkErr = errors.New("github: 403")

	w, err := svc.Add(context.Background(), "u1", AddWatchInput{Owner: "oss", Repo: "lib"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if w.HasFork() {
		t.Error("watch should have no fork after a failed fork")
	}
	if list, _ := repos.ListByUser(context.Background(), "u1"); len(list) != 1 {
		t.Errorf("watches = %d, want 1", len(list))
	}
}

func TestAdd_Duplicate(t *testing.T) {
	svc, _, _ := newTestWatchService()
	ctx := context.Background()

	if _, err := svc.Add(ctx, "u1", AddWatchInput{Owner: "acme", Repo: "widgets"}); err != nil {
		t.Fatalf("first Add() error = %v", err)
	}
	_, err := svc.Add(ctx, "u1", AddWatchInput{Owner: "ACME", Repo: "Widgets"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Add() error = %v, want ErrConflict", err)
	}
}

func TestAdd_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   AddWatchInput
	}{
		{"empty owner", AddWatchInput{Repo: "widgets"}},
		{"empty repo", AddWatchInput{Owner: "acme"}},
		{"slash in owner", AddWatchInput{Owner: "acme/x", Repo: "widgets"}},
		{"space in repo", AddWatchInput{Owner: "acme", Repo: "my repo"}},
		{"title too long", AddWatchInput{Owner: "acme", Repo: "widgets", TitleQuery: strings.Repeat("x", 201)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, gw := newTestWatchService()
			_, err := svc.Add(context.Background(), "u1", tt.in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Add() error = %v, want ErrValidation", err)
			}
			if len(gw.called("ownership")) != 0 {
				t.Error("GitHub must not be called for invalid input")
			}
		})
	}
}

func TestAdd_RepoNotFound(t *testing.T) {
	svc, _, gw := newTestWatchService()
	gw.ownerErr = &github.GatewayError{Op: "get repository", Status: 404, Err: errors.New("Not Found")}

	_, err := svc.Add(context.Background(), "u1", AddWatchInput{Owner: "acme", Repo: "missing"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Add() error = %v, want ErrValidation", err)
	}
}

func TestAdd_NoCredential(t *testing.T) {
	svc, _, _ := newTestWatchService()

	_, err := svc.Add(context.Background(), "stranger", AddWatchInput{Owner: "acme", Repo: "widgets"})
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Add() error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// Update / Freeze / Remove TESTS
// =========================================================================

func TestUpdateFiltersAndFreeze(t *testing.T) {
	svc, _, _ := newTestWatchService()
	ctx := context.Background()
	w, err := svc.Add(ctx, "u1", AddWatchInput{Owner: "acme", Repo: "widgets"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	updated, err := svc.UpdateFilters(ctx, "u1", w.ID, []string{"help wanted"}, "leak")
	if err != nil {
		t.Fatalf("UpdateFilters() error = %v", err)
	}
	if len(updated.LabelFilters) != 1 || updated.TitleQuery != "leak" {
		t.Errorf("updated = %+v", updated)
	}

	frozen, err := svc.SetFrozen(ctx, "u1", w.ID, true)
	if err != nil {
		t.Fatalf("SetFrozen() error = %v", err)
	}
	if !frozen.Frozen {
		t.Error("Frozen = false after freezing")
	}
	stored, _ := svc.Get(ctx, "u1", w.ID)
	if !stored.Frozen || stored.TitleQuery != "leak" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestWatch_OtherUserCannotTouch(t *testing.T) {
	svc, _, _ := newTestWatchService()
	ctx := context.Background()
	w, err := svc.Add(ctx, "u1", AddWatchInput{Owner: "acme", Repo: "widgets"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := svc.Get(ctx, "u2", w.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.SetFrozen(ctx, "u2", w.ID, true); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetFrozen() error = %v, want ErrNotFound", err)
	}
	if err := svc.Remove(ctx, "u2", w.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Remove() error = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	svc, repos, _ := newTestWatchService()
	ctx := context.Background()
	w, _ := svc.Add(ctx, "u1", AddWatchInput{Owner: "acme", Repo: "widgets"})

	if err := svc.Remove(ctx, "u1", w.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := repos.GetByID(ctx, w.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Error("watch should be gone")
	}
}

// =========================================================================
// Search TESTS
// =========================================================================

func TestSearch(t *testing.T) {
	svc, _, gw := newTestWatchService()
	gw.search = github.SearchResult{
		Repositories: []github.Repository{{Owner: "acme", Name: "widgets", FullName: "acme/widgets"}},
		TotalCount:   1, Page: 1, PerPage: 20,
	}

	res, err := svc.Search(context.Background(), "u1", " widgets ", 0, 0, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Repositories) != 1 {
		t.Errorf("repositories = %d, want 1", len(res.Repositories))
	}
	if calls := gw.called("search"); len(calls) != 1 || calls[0] != "search widgets page=1 per=20 type=all" {
		t.Errorf("search calls = %v", calls)
	}
}

func TestSearch_PerPageCapped(t *testing.T) {
	svc, _, gw := newTestWatchService()

	if _, err := svc.Search(context.Background(), "u1", "widgets", 2, 500, github.SearchOwner); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if calls := gw.called("search"); len(calls) != 1 || calls[0] != "search widgets page=2 per=100 type=owner" {
		t.Errorf("search calls = %v", calls)
	}
}

func TestSearch_Validation(t *testing.T) {
	svc, _, gw := newTestWatchService()
	ctx := context.Background()

	if _, err := svc.Search(ctx, "u1", " a ", 1, 20, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("short query error = %v, want ErrValidation", err)
	}
	if _, err := svc.Search(ctx, "u1", "widgets", 1, 20, "stars"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("bad type error = %v, want ErrValidation", err)
	}
	if len(gw.called("search")) != 0 {
		t.Error("GitHub must not be searched for invalid input")
	}
}
