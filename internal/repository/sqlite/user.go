package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores users.
type UserDB struct {
	conn *sql.DB
}

// Upsert inserts or updates a user based on their GitHub ID.
//
// The internal ID is kept stable across logins: an existing github_id keeps
// its row and only the profile fields are refreshed. The sealed token is
// written only when the caller provides one.
func (u *UserDB) Upsert(ctx context.Context, user *model.User) error {
	var existingID string
	var createdAt time.Time
	err := u.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID, &createdAt)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		user.ID = existingID
		user.CreatedAt = createdAt
		user.UpdatedAt = time.Now()
		_, err = u.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?,
			        access_token = COALESCE(?, access_token), updated_at = ?
			 WHERE id = ?`,
			user.Login,
			user.Email,
			user.AvatarURL,
			nullBytes(user.AccessToken),
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = u.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, access_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Login,
		user.Email,
		user.AvatarURL,
		nullBytes(user.AccessToken),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User

	err := u.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, access_token, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&user.ID,
		&user.GitHubID,
		&user.Login,
		&user.Email,
		&user.AvatarURL,
		&user.AccessToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &user, nil
}

// SetAccessToken replaces the sealed OAuth token of a user.
func (u *UserDB) SetAccessToken(ctx context.Context, userID string, sealed []byte) error {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET access_token = ?, updated_at = ? WHERE id = ?`,
		nullBytes(sealed), time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting access token for %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
