package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

var _ repository.WatchedRepoRepository = (*WatchedRepoDB)(nil)

// WatchedRepoDB stores watched repositories.
type WatchedRepoDB struct {
	conn *sql.DB
}

const watchedRepoColumns = `id, user_id, owner, repo, label_filters, title_query, frozen,
	is_owned, fork_owner, fork_repo, created_at, updated_at`

// Create inserts a new watch. A second watch of the same repo by the same
// user hits the UNIQUE constraint and is reported as a conflict.
func (s *WatchedRepoDB) Create(ctx context.Context, w *model.WatchedRepo) error {
	labels, err := encodeStrings(w.LabelFilters)
	if err != nil {
		return fmt.Errorf("sqlite: encoding label filters: %w", err)
	}

	w.ID = xid.New().String()
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO watched_repos (`+watchedRepoColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Owner, w.Repo, labels, w.TitleQuery,
		boolToInt(w.Frozen), boolToInt(w.IsOwned), w.ForkOwner, w.ForkRepo,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("watched repo", w.Owner+"/"+w.Repo)
		}
		return fmt.Errorf("sqlite: creating watched repo %s/%s: %w", w.Owner, w.Repo, err)
	}
	return nil
}

func (s *WatchedRepoDB) GetByID(ctx context.Context, id string) (*model.WatchedRepo, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+watchedRepoColumns+` FROM watched_repos WHERE id = ?`, id)
	w, err := scanWatchedRepo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("watched repo", id)
		}
		return nil, fmt.Errorf("sqlite: getting watched repo %s: %w", id, err)
	}
	return w, nil
}

func (s *WatchedRepoDB) ListByUser(ctx context.Context, userID string) ([]model.WatchedRepo, error) {
	return s.list(ctx,
		`SELECT `+watchedRepoColumns+` FROM watched_repos WHERE user_id = ? ORDER BY owner, repo`,
		userID)
}

func (s *WatchedRepoDB) ListActive(ctx context.Context) ([]model.WatchedRepo, error) {
	return s.list(ctx,
		`SELECT `+watchedRepoColumns+` FROM watched_repos WHERE frozen = 0 ORDER BY owner, repo, created_at`)
}

// ListWatchers matches owner/repo case-insensitively; GitHub names are.
func (s *WatchedRepoDB) ListWatchers(ctx context.Context, owner, repo string) ([]model.WatchedRepo, error) {
	return s.list(ctx,
		`SELECT `+watchedRepoColumns+` FROM watched_repos
		 WHERE frozen = 0 AND owner = ? COLLATE NOCASE AND repo = ? COLLATE NOCASE
		 ORDER BY created_at`,
		owner, repo)
}

// Update writes the mutable fields: filters, frozen flag and fork coordinates.
func (s *WatchedRepoDB) Update(ctx context.Context, w *model.WatchedRepo) error {
	labels, err := encodeStrings(w.LabelFilters)
	if err != nil {
		return fmt.Errorf("sqlite: encoding label filters: %w", err)
	}
	w.UpdatedAt = time.Now()

	res, err := s.conn.ExecContext(ctx,
		`UPDATE watched_repos
		 SET label_filters = ?, title_query = ?, frozen = ?, is_owned = ?,
		     fork_owner = ?, fork_repo = ?, updated_at = ?
		 WHERE id = ?`,
		labels, w.TitleQuery, boolToInt(w.Frozen), boolToInt(w.IsOwned),
		w.ForkOwner, w.ForkRepo, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating watched repo %s: %w", w.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("watched repo", w.ID)
	}
	return nil
}

func (s *WatchedRepoDB) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM watched_repos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting watched repo %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("watched repo", id)
	}
	return nil
}

func (s *WatchedRepoDB) list(ctx context.Context, query string, args ...any) ([]model.WatchedRepo, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing watched repos: %w", err)
	}
	defer rows.Close()

	repos := []model.WatchedRepo{}
	for rows.Next() {
		w, err := scanWatchedRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning watched repo: %w", err)
		}
		repos = append(repos, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating watched repos: %w", err)
	}
	return repos, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWatchedRepo(sc scanner) (*model.WatchedRepo, error) {
	var (
		w         model.WatchedRepo
		labels    string
		forkOwner sql.NullString
		forkRepo  sql.NullString
	)
	err := sc.Scan(
		&w.ID, &w.UserID, &w.Owner, &w.Repo, &labels, &w.TitleQuery, &w.Frozen,
		&w.IsOwned, &forkOwner, &forkRepo, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if w.LabelFilters, err = decodeStrings(labels); err != nil {
		return nil, fmt.Errorf("decoding label filters: %w", err)
	}
	if forkOwner.Valid {
		w.ForkOwner = &forkOwner.String
	}
	if forkRepo.Valid {
		w.ForkRepo = &forkRepo.String
	}
	return &w, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
