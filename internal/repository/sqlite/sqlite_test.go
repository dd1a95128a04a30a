package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/oss-hunter/internal/model"
)

// newTestDB opens a fresh in-memory database; it is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, githubID int64, login string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:  githubID,
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
	}
	if err := db.Users().Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestWatch inserts a watch of owner/repo for the user.
func createTestWatch(t *testing.T, db *DB, userID, owner, repo string) *model.WatchedRepo {
	t.Helper()
	w := &model.WatchedRepo{UserID: userID, Owner: owner, Repo: repo, IsOwned: true}
	if err := db.Repos().Create(context.Background(), w); err != nil {
		t.Fatalf("failed to create test watch: %v", err)
	}
	return w
}

// createTestIssue inserts a queued tracked issue.
func createTestIssue(t *testing.T, db *DB, watchID string, number int) *model.TrackedIssue {
	t.Helper()
	issue := &model.TrackedIssue{
		WatchedRepoID: watchID,
		IssueNumber:   number,
		Title:         "Fix crash",
		URL:           "https://github.com/acme/widgets/issues/1",
		Labels:        []string{"bug"},
	}
	if err := db.Issues().Create(context.Background(), issue); err != nil {
		t.Fatalf("failed to create test issue: %v", err)
	}
	return issue
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)

	// Running migrate again on an existing schema must not fail.
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

func TestAddColumnIfNotExists(t *testing.T) {
	db := newTestDB(t)

	if err := db.addColumnIfNotExists("users", "access_token", "BLOB"); err != nil {
		t.Fatalf("existing column: %v", err)
	}
	if err := db.addColumnIfNotExists("users", "timezone", "TEXT NOT NULL DEFAULT ''"); err != nil {
		t.Fatalf("new column: %v", err)
	}

	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'timezone'`,
	).Scan(&count)
	if err != nil {
		t.Fatalf("checking column: %v", err)
	}
	if count != 1 {
		t.Errorf("timezone column count = %d, want 1", count)
	}
}
