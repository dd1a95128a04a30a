package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

// GitHub owner and repository names.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,100}$`)

const (
	defaultSearchPerPage = 20
	maxSearchPerPage     = 100
	maxTitleQuery        = 200
)

// WatchService manages a user's watched repositories.
type WatchService struct {
	repos    repository.WatchedRepoRepository
	gateways GatewayProvider
	logger   *slog.Logger
}

func NewWatchService(repos repository.WatchedRepoRepository, gateways GatewayProvider, logger *slog.Logger) *WatchService {
	return &WatchService{repos: repos, gateways: gateways, logger: logger}
}

// AddWatchInput is the request to start watching owner/repo.
type AddWatchInput struct {
	Owner        string   `json:"owner"`
	Repo         string   `json:"repo"`
	LabelFilters []string `json:"labelFilters"`
	TitleQuery   string   `json:"titleQuery"`
}

// Add starts watching a repository. When the user cannot push to it, the
// repository is forked under their account so the coding agent has somewhere
// to work. A failed fork is logged and the watch is created without one.
func (s *WatchService) Add(ctx context.Context, userID string, in AddWatchInput) (*model.WatchedRepo, error) {
	owner, repo := strings.TrimSpace(in.Owner), strings.TrimSpace(in.Repo)
	if !namePattern.MatchString(owner) {
		return nil, apperror.ValidationFailed("owner", "owner must be a GitHub user or organization name")
	}
	if !namePattern.MatchString(repo) {
		return nil, apperror.ValidationFailed("repo", "repo must be a GitHub repository name")
	}
	title, err := validateTitleQuery(in.TitleQuery)
	if err != nil {
		return nil, err
	}

	existing, err := s.repos.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/watch: listing watches of %s: %w", userID, err)
	}
	for _, w := range existing {
		if strings.EqualFold(w.Owner, owner) && strings.EqualFold(w.Repo, repo) {
			return nil, apperror.Conflict("watched repo", owner+"/"+repo)
		}
	}

	gw, err := s.gateway(ctx, userID)
	if err != nil {
		return nil, err
	}

	ownership, err := gw.CheckOwnership(ctx, owner, repo)
	if err != nil {
		if github.IsNotFound(err) {
			return nil, apperror.ValidationFailed("repo", fmt.Sprintf("repository %s/%s not found", owner, repo))
		}
		return nil, fmt.Errorf("service/watch: checking access to %s/%s: %w", owner, repo, err)
	}

	w := &model.WatchedRepo{
		UserID:       userID,
		Owner:        owner,
		Repo:         repo,
		LabelFilters: normalizeLabels(in.LabelFilters),
		TitleQuery:   title,
		IsOwned:      ownership.IsOwned,
	}

	if !ownership.IsOwned {
		fork, err := gw.ForkRepository(ctx, owner, repo)
		if err != nil {
			s.logger.Warn("forking repository",
				slog.String("repo", owner+"/"+repo),
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		} else {
			w.ForkOwner = &fork.Owner
			w.ForkRepo = &fork.Repo
		}
	}

	if err := s.repos.Create(ctx, w); err != nil {
		return nil, err
	}

	s.logger.Info("repository watched",
		slog.String("repo", w.FullName()),
		slog.String("userID", userID),
		slog.Bool("owned", w.IsOwned),
		slog.Bool("forked", w.HasFork()),
	)
	return w, nil
}

func (s *WatchService) List(ctx context.Context, userID string) ([]model.WatchedRepo, error) {
	return s.repos.ListByUser(ctx, userID)
}

// Get returns the watch id if it belongs to userID.
func (s *WatchService) Get(ctx context.Context, userID, id string) (*model.WatchedRepo, error) {
	w, err := s.repos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, apperror.NotFound("watched repo", id)
	}
	return w, nil
}

// UpdateFilters replaces the label filters and title query of a watch.
func (s *WatchService) UpdateFilters(ctx context.Context, userID, id string, labels []string, titleQuery string) (*model.WatchedRepo, error) {
	title, err := validateTitleQuery(titleQuery)
	if err != nil {
		return nil, err
	}
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	w.LabelFilters = normalizeLabels(labels)
	w.TitleQuery = title
	if err := s.repos.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// SetFrozen pauses or resumes discovery for a watch.
func (s *WatchService) SetFrozen(ctx context.Context, userID, id string, frozen bool) (*model.WatchedRepo, error) {
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if w.Frozen == frozen {
		return w, nil
	}
	w.Frozen = frozen
	if err := s.repos.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Remove stops watching; the watch's tracked issues go with it.
func (s *WatchService) Remove(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.repos.Delete(ctx, id)
}

// Search finds repositories to watch.
func (s *WatchService) Search(ctx context.Context, userID, query string, page, perPage int, typ github.SearchType) (github.SearchResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return github.SearchResult{}, apperror.ValidationFailed("q", "search query must be at least 2 characters")
	}
	switch typ {
	case "":
		typ = github.SearchAll
	case github.SearchAll, github.SearchName, github.SearchOwner:
	default:
		return github.SearchResult{}, apperror.ValidationFailed("type", "type must be one of all, name, owner")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultSearchPerPage
	}
	perPage = min(perPage, maxSearchPerPage)

	gw, err := s.gateway(ctx, userID)
	if err != nil {
		return github.SearchResult{}, err
	}
	res, err := gw.SearchRepositories(ctx, query, page, perPage, typ)
	if err != nil {
		return github.SearchResult{}, fmt.Errorf("service/watch: searching %q: %w", query, err)
	}
	return res, nil
}

func (s *WatchService) gateway(ctx context.Context, userID string) (Gateway, error) {
	gw, err := s.gateways.ForUser(ctx, userID)
	if err != nil {
		if isNoCredential(err) {
			return nil, apperror.Unauthorized("GitHub access has expired, sign in again")
		}
		return nil, fmt.Errorf("service/watch: %w", err)
	}
	return gw, nil
}

func validateTitleQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if len(q) > maxTitleQuery {
		return "", apperror.ValidationFailed("titleQuery", fmt.Sprintf("title query must be at most %d characters", maxTitleQuery))
	}
	return q, nil
}

// normalizeLabels trims, drops empties and de-duplicates, keeping order.
func normalizeLabels(labels []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
