package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

var (
	_ repository.NotificationRepository = (*NotificationDB)(nil)
	_ repository.PreferencesRepository  = (*PreferencesDB)(nil)
)

// NotificationDB stores in-app notifications.
type NotificationDB struct {
	conn *sql.DB
}

func (s *NotificationDB) Create(ctx context.Context, n *model.Notification) error {
	n.ID = xid.New().String()
	n.CreatedAt = time.Now()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, issue_id, message, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.IssueID, n.Message, boolToInt(n.IsRead), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating notification for %s: %w", n.UserID, err)
	}
	return nil
}

// ListByUser returns the newest notifications first.
func (s *NotificationDB) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, issue_id, message, is_read, created_at
		 FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		var issueID sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &issueID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		if issueID.Valid {
			n.IssueID = &issueID.String
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationDB) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("notification", id)
	}
	return nil
}

func (s *NotificationDB) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking notifications read for %s: %w", userID, err)
	}
	return res.RowsAffected()
}

func (s *NotificationDB) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting unread notifications for %s: %w", userID, err)
	}
	return n, nil
}

// PreferencesDB stores notification preferences, one row per user.
type PreferencesDB struct {
	conn *sql.DB
}

func (s *PreferencesDB) Get(ctx context.Context, userID string) (*model.NotificationPreferences, error) {
	var p model.NotificationPreferences
	var sub sql.NullString

	err := s.conn.QueryRowContext(ctx,
		`SELECT user_id, email_enabled, push_enabled, new_issue_email, draft_ready_email,
		        new_issue_push, draft_ready_push, push_subscription, updated_at
		 FROM notification_preferences WHERE user_id = ?`, userID,
	).Scan(
		&p.UserID, &p.EmailEnabled, &p.PushEnabled, &p.NewIssueEmail, &p.DraftReadyEmail,
		&p.NewIssuePush, &p.DraftReadyPush, &sub, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("notification preferences", userID)
		}
		return nil, fmt.Errorf("sqlite: getting preferences for %s: %w", userID, err)
	}

	if sub.Valid && sub.String != "" {
		var ps model.PushSubscription
		if err := json.Unmarshal([]byte(sub.String), &ps); err != nil {
			// A corrupt blob is treated as "no subscription" rather than
			// breaking every notification for this user.
			return &p, nil
		}
		p.PushSubscription = &ps
	}
	return &p, nil
}

func (s *PreferencesDB) Upsert(ctx context.Context, p *model.NotificationPreferences) error {
	var sub any
	if p.PushSubscription != nil {
		b, err := json.Marshal(p.PushSubscription)
		if err != nil {
			return fmt.Errorf("sqlite: encoding push subscription: %w", err)
		}
		sub = string(b)
	}
	p.UpdatedAt = time.Now()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO notification_preferences
		   (user_id, email_enabled, push_enabled, new_issue_email, draft_ready_email,
		    new_issue_push, draft_ready_push, push_subscription, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   email_enabled = excluded.email_enabled,
		   push_enabled = excluded.push_enabled,
		   new_issue_email = excluded.new_issue_email,
		   draft_ready_email = excluded.draft_ready_email,
		   new_issue_push = excluded.new_issue_push,
		   draft_ready_push = excluded.draft_ready_push,
		   push_subscription = excluded.push_subscription,
		   updated_at = excluded.updated_at`,
		p.UserID, boolToInt(p.EmailEnabled), boolToInt(p.PushEnabled),
		boolToInt(p.NewIssueEmail), boolToInt(p.DraftReadyEmail),
		boolToInt(p.NewIssuePush), boolToInt(p.DraftReadyPush), sub, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting preferences for %s: %w", p.UserID, err)
	}
	return nil
}

func (s *PreferencesDB) ClearPushSubscription(ctx context.Context, userID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE notification_preferences
		 SET push_subscription = NULL, push_enabled = 0, updated_at = ?
		 WHERE user_id = ?`, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("sqlite: clearing push subscription for %s: %w", userID, err)
	}
	return nil
}
