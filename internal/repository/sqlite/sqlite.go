// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain. One *DB owns the connection pool; the per-table
// stores (Users, Repos, Issues, Notifications, Preferences) share it.
//
// Every auto-fix state transition is a single conditional UPDATE keyed by the
// issue id (see IssueDB.TransitionStatus). The store is the only source of
// truth; there are no in-process locks around issue state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/hunter.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	// PRAGMAs are per connection; the _pragma DSN parameters apply them to
	// every connection the pool opens, not just the first.
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets the sweeps read while a request is writing.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Needed for ON DELETE CASCADE from watched_repos to tracked_issues.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// newWithConn wraps an existing pool without migrating. Tests use it with sqlmock.
func newWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. The health endpoint calls it.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the users table store.
func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }

// Repos returns the watched_repos table store.
func (db *DB) Repos() *WatchedRepoDB { return &WatchedRepoDB{conn: db.conn} }

// Issues returns the tracked_issues table store.
func (db *DB) Issues() *IssueDB { return &IssueDB{conn: db.conn} }

// Notifications returns the notifications table store.
func (db *DB) Notifications() *NotificationDB { return &NotificationDB{conn: db.conn} }

// Preferences returns the notification_preferences table store.
func (db *DB) Preferences() *PreferencesDB { return &PreferencesDB{conn: db.conn} }

// migrate runs all database migrations. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER NOT NULL UNIQUE,
			login      TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Sealed OAuth token. Added after the first release, so older databases
	// need the ALTER.
	if err := db.addColumnIfNotExists("users", "access_token", "BLOB"); err != nil {
		return fmt.Errorf("adding access_token to users: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS watched_repos (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			owner         TEXT NOT NULL,
			repo          TEXT NOT NULL,
			label_filters TEXT NOT NULL DEFAULT '[]',
			title_query   TEXT NOT NULL DEFAULT '',
			frozen        INTEGER NOT NULL DEFAULT 0,
			is_owned      INTEGER NOT NULL DEFAULT 0,
			fork_owner    TEXT,
			fork_repo     TEXT,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, owner, repo)
		);
		CREATE INDEX IF NOT EXISTS idx_watched_repos_owner_repo ON watched_repos(owner, repo);
	`)
	if err != nil {
		return fmt.Errorf("creating watched_repos table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tracked_issues (
			id                TEXT PRIMARY KEY,
			watched_repo_id   TEXT NOT NULL REFERENCES watched_repos(id) ON DELETE CASCADE,
			issue_number      INTEGER NOT NULL,
			title             TEXT NOT NULL,
			url               TEXT NOT NULL DEFAULT '',
			type              TEXT NOT NULL DEFAULT 'issue',
			labels            TEXT NOT NULL DEFAULT '[]',
			state             TEXT NOT NULL DEFAULT 'open',
			is_read           INTEGER NOT NULL DEFAULT 0,
			claimed_at        DATETIME,
			archived_at       DATETIME,
			auto_fix_status   TEXT NOT NULL DEFAULT 'queued',
			generating_at     DATETIME,
			fork_issue_number INTEGER,
			draft_pr_number   INTEGER,
			draft_pr_url      TEXT,
			draft_pr_owner    TEXT,
			published_at      DATETIME,
			closed_at         DATETIME,
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (watched_repo_id, issue_number)
		);
		CREATE INDEX IF NOT EXISTS idx_tracked_issues_status ON tracked_issues(auto_fix_status);
		CREATE INDEX IF NOT EXISTS idx_tracked_issues_open ON tracked_issues(state, archived_at);
	`)
	if err != nil {
		return fmt.Errorf("creating tracked_issues table: %w", err)
	}

	// issue_id is deliberately not a foreign key: notifications outlive issues.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			issue_id   TEXT,
			message    TEXT NOT NULL,
			is_read    INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating notifications table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id           TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			email_enabled     INTEGER NOT NULL DEFAULT 0,
			push_enabled      INTEGER NOT NULL DEFAULT 0,
			new_issue_email   INTEGER NOT NULL DEFAULT 1,
			draft_ready_email INTEGER NOT NULL DEFAULT 1,
			new_issue_push    INTEGER NOT NULL DEFAULT 1,
			draft_ready_push  INTEGER NOT NULL DEFAULT 1,
			push_subscription TEXT,
			updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating notification_preferences table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it is safe to run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// Label sets are stored as JSON arrays.
func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
