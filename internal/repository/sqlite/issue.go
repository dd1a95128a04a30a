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

var _ repository.TrackedIssueRepository = (*IssueDB)(nil)

// IssueDB stores tracked issues.
type IssueDB struct {
	conn *sql.DB
}

const issueColumns = `i.id, i.watched_repo_id, i.issue_number, i.title, i.url, i.type, i.labels,
	i.state, i.is_read, i.claimed_at, i.archived_at, i.auto_fix_status, i.generating_at,
	i.fork_issue_number, i.draft_pr_number, i.draft_pr_url, i.draft_pr_owner,
	i.published_at, i.closed_at, i.created_at, i.updated_at`

// Create inserts a tracked issue. ON CONFLICT DO NOTHING keeps concurrent
// discovery passes from racing each other: the loser sees zero rows affected
// and gets a conflict instead of a duplicate row.
func (s *IssueDB) Create(ctx context.Context, issue *model.TrackedIssue) error {
	labels, err := encodeStrings(issue.Labels)
	if err != nil {
		return fmt.Errorf("sqlite: encoding labels: %w", err)
	}

	issue.ID = xid.New().String()
	now := time.Now()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	if issue.Type == "" {
		issue.Type = model.TypeIssue
	}
	if issue.State == "" {
		issue.State = model.StateOpen
	}
	if issue.AutoFixStatus == "" {
		issue.AutoFixStatus = model.StatusQueued
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO tracked_issues
		   (id, watched_repo_id, issue_number, title, url, type, labels, state,
		    auto_fix_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (watched_repo_id, issue_number) DO NOTHING`,
		issue.ID, issue.WatchedRepoID, issue.IssueNumber, issue.Title, issue.URL,
		string(issue.Type), labels, string(issue.State), string(issue.AutoFixStatus),
		issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating tracked issue #%d: %w", issue.IssueNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.Conflict("tracked issue", fmt.Sprintf("%s#%d", issue.WatchedRepoID, issue.IssueNumber))
	}
	return nil
}

func (s *IssueDB) Exists(ctx context.Context, watchedRepoID string, issueNumber int) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_issues WHERE watched_repo_id = ? AND issue_number = ?`,
		watchedRepoID, issueNumber,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking tracked issue #%d: %w", issueNumber, err)
	}
	return n > 0, nil
}

func (s *IssueDB) GetByID(ctx context.Context, id string) (*model.TrackedIssue, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM tracked_issues i WHERE i.id = ?`, id)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("issue", id)
		}
		return nil, fmt.Errorf("sqlite: getting tracked issue %s: %w", id, err)
	}
	return issue, nil
}

func (s *IssueDB) GetForUser(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+issueColumns+`
		 FROM tracked_issues i JOIN watched_repos w ON w.id = i.watched_repo_id
		 WHERE i.id = ? AND w.user_id = ?`, id, userID)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("issue", id)
		}
		return nil, fmt.Errorf("sqlite: getting tracked issue %s: %w", id, err)
	}
	return issue, nil
}

// List returns issues newest first, filtered by f.
func (s *IssueDB) List(ctx context.Context, f repository.IssueFilter) ([]model.TrackedIssue, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "w.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.WatchedRepoID != "" {
		where = append(where, "i.watched_repo_id = ?")
		args = append(args, f.WatchedRepoID)
	}
	if f.Status != "" {
		where = append(where, "i.auto_fix_status = ?")
		args = append(args, string(f.Status))
	}
	if f.Archived != nil {
		if *f.Archived {
			where = append(where, "i.archived_at IS NOT NULL")
		} else {
			where = append(where, "i.archived_at IS NULL")
		}
	}
	if f.UnreadOnly {
		where = append(where, "i.is_read = 0")
	}

	query := `SELECT ` + issueColumns + `
		FROM tracked_issues i JOIN watched_repos w ON w.id = i.watched_repo_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.created_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	return s.list(ctx, query, args...)
}

func (s *IssueDB) ListByStatus(ctx context.Context, status model.AutoFixStatus) ([]model.TrackedIssue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM tracked_issues i
		 WHERE i.auto_fix_status = ? ORDER BY i.created_at`, string(status))
}

func (s *IssueDB) ListOpenUnarchived(ctx context.Context) ([]model.TrackedIssue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM tracked_issues i
		 WHERE i.state = 'open' AND i.archived_at IS NULL ORDER BY i.created_at`)
}

// TransitionStatus performs "UPDATE ... SET status = to WHERE id = ? AND
// status = from". The edge itself must be legal; RowsAffected tells us
// whether we won the race.
//
// Leaving queued for generating also requires claimed_at IS NULL, so a
// human claim that lands between read and write is never overridden.
func (s *IssueDB) TransitionStatus(ctx context.Context, id string, from, to model.AutoFixStatus, upd model.StatusUpdate) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("sqlite: illegal transition %s → %s", from, to)
	}

	sets := []string{"auto_fix_status = ?", "updated_at = ?"}
	args := []any{string(to), time.Now()}

	if upd.GeneratingAt != nil {
		sets = append(sets, "generating_at = ?")
		args = append(args, *upd.GeneratingAt)
	}
	if upd.ForkIssueNumber != nil {
		sets = append(sets, "fork_issue_number = ?")
		args = append(args, *upd.ForkIssueNumber)
	}
	if upd.DraftPRNumber != nil {
		sets = append(sets, "draft_pr_number = ?")
		args = append(args, *upd.DraftPRNumber)
	}
	if upd.DraftPRURL != nil {
		sets = append(sets, "draft_pr_url = ?")
		args = append(args, *upd.DraftPRURL)
	}
	if upd.DraftPROwner != nil {
		sets = append(sets, "draft_pr_owner = ?")
		args = append(args, *upd.DraftPROwner)
	}
	if upd.PublishedAt != nil {
		sets = append(sets, "published_at = ?")
		args = append(args, *upd.PublishedAt)
	}
	switch {
	case upd.ClearClaimedAt:
		sets = append(sets, "claimed_at = NULL")
	case upd.ClaimedAt != nil:
		sets = append(sets, "claimed_at = ?")
		args = append(args, *upd.ClaimedAt)
	}

	query := `UPDATE tracked_issues SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND auto_fix_status = ?`
	args = append(args, id, string(from))
	if from == model.StatusQueued && to == model.StatusGenerating {
		query += " AND claimed_at IS NULL"
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: transitioning issue %s %s → %s: %w", id, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: transitioning issue %s: %w", id, err)
	}
	return n == 1, nil
}

// SetForkIssueNumber records the mirrored fork issue while the issue is
// generating. The status itself is not touched.
func (s *IssueDB) SetForkIssueNumber(ctx context.Context, id string, number int) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE tracked_issues SET fork_issue_number = ?, updated_at = ? WHERE id = ?`,
		number, time.Now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: recording fork issue for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("issue", id)
	}
	return nil
}

func (s *IssueDB) MarkRead(ctx context.Context, id string, read bool) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE tracked_issues SET is_read = ?, updated_at = ? WHERE id = ?`,
		boolToInt(read), time.Now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: marking issue %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("issue", id)
	}
	return nil
}

func (s *IssueDB) Archive(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.conditional(ctx, "archiving",
		`UPDATE tracked_issues SET archived_at = ?, updated_at = ?
		 WHERE id = ? AND archived_at IS NULL`, at, time.Now(), id)
}

func (s *IssueDB) Restore(ctx context.Context, id string) (bool, error) {
	return s.conditional(ctx, "restoring",
		`UPDATE tracked_issues SET archived_at = NULL, updated_at = ?
		 WHERE id = ? AND archived_at IS NOT NULL`, time.Now(), id)
}

func (s *IssueDB) MarkClosed(ctx context.Context, id string, closedAt, archivedAt time.Time) (bool, error) {
	return s.conditional(ctx, "closing",
		`UPDATE tracked_issues SET state = 'closed', closed_at = ?, archived_at = ?, updated_at = ?
		 WHERE id = ? AND state = 'open'`, closedAt, archivedAt, time.Now(), id)
}

func (s *IssueDB) conditional(ctx context.Context, verb, query string, args ...any) (bool, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: %s issue: %w", verb, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: %s issue: %w", verb, err)
	}
	return n == 1, nil
}

func (s *IssueDB) list(ctx context.Context, query string, args ...any) ([]model.TrackedIssue, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tracked issues: %w", err)
	}
	defer rows.Close()

	issues := []model.TrackedIssue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning tracked issue: %w", err)
		}
		issues = append(issues, *issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tracked issues: %w", err)
	}
	return issues, nil
}

func scanIssue(sc scanner) (*model.TrackedIssue, error) {
	var i model.TrackedIssue
	var typ, state, status, labels string
	var claimedAt, archivedAt, generatingAt, publishedAt, closedAt sql.NullTime
	var forkIssue, draftNumber sql.NullInt64
	var draftURL, draftOwner sql.NullString

	err := sc.Scan(
		&i.ID, &i.WatchedRepoID, &i.IssueNumber, &i.Title, &i.URL, &typ, &labels,
		&state, &i.IsRead, &claimedAt, &archivedAt, &status, &generatingAt,
		&forkIssue, &draftNumber, &draftURL, &draftOwner,
		&publishedAt, &closedAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	i.Type = model.IssueType(typ)
	i.State = model.IssueState(state)
	i.AutoFixStatus = model.AutoFixStatus(status)
	if i.Labels, err = decodeStrings(labels); err != nil {
		return nil, fmt.Errorf("decoding labels: %w", err)
	}

	i.ClaimedAt = nullTime(claimedAt)
	i.ArchivedAt = nullTime(archivedAt)
	i.GeneratingAt = nullTime(generatingAt)
	i.PublishedAt = nullTime(publishedAt)
	i.ClosedAt = nullTime(closedAt)
	i.ForkIssueNumber = nullInt(forkIssue)
	i.DraftPRNumber = nullInt(draftNumber)
	if draftURL.Valid {
		i.DraftPRURL = &draftURL.String
	}
	if draftOwner.Valid {
		i.DraftPROwner = &draftOwner.String
	}
	return &i, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
