package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/sakif/oss-hunter/internal/auth"
)

// =========================================================================
// HELPERS
// =========================================================================

const testPassphrase = "test-passphrase-for-sealing"

// newTestAuthService returns an AuthService wired with fake dependencies.
// The TokenService uses a short secret, suitable for tests only.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	vault, err := auth.NewVault(testPassphrase)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAuthService(repo, ts, vault, logger)
}

type failingSealer struct{}

func (failingSealer) Seal(string) ([]byte, error) { return nil, errors.New("sealer offline") }

// =========================================================================
// LoginOrRegisterGitHub TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	ghUser := &auth.GitHubUser{
		ID:        42,
		Login:     "octocat",
		Email:     "octocat@github.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	}

	result, err := svc.LoginOrRegisterGitHub(context.Background(), ghUser, "gho_test")
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	if result.User == nil {
		t.Fatal("LoginOrRegisterGitHub() returned nil User")
	}
	if result.Token == "" {
		t.Fatal("LoginOrRegisterGitHub() returned empty Token")
	}
	if result.User.Login != "octocat" {
		t.Errorf("User.Login = %q, want %q", result.User.Login, "octocat")
	}
	if result.User.ID == "" {
		t.Error("User.ID should be set after upsert")
	}
}

func TestLoginOrRegisterGitHub_ExistingUserGetsUpdatedProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	firstLogin := &auth.GitHubUser{ID: 99, Login: "old-login", Email: "old@email.com"}
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), firstLogin, "gho_first"); err != nil {
		t.Fatalf("first login error: %v", err)
	}

	// Second login with updated profile
	secondLogin := &auth.GitHubUser{ID: 99, Login: "new-login", Email: "new@email.com"}
	result, err := svc.LoginOrRegisterGitHub(context.Background(), secondLogin, "gho_test")
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if result.User.Login != "new-login" {
		t.Errorf("User.Login after update = %q, want %q", result.User.Login, "new-login")
	}
}

func TestLoginOrRegisterGitHub_TokenIsValidJWT(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 1, Login: "testuser",
	}, "gho_test")
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	// Validate the token we issued
	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("token subject = %q, want %q", userID, result.User.ID)
	}
}

func TestLoginOrRegisterGitHub_NilGitHubUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), nil, "gho_test")
	if err == nil {
		t.Fatal("LoginOrRegisterGitHub() should return error for nil GitHubUser")
	}
}

func TestLoginOrRegisterGitHub_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.upsertErr = errors.New("database is on fire")
	svc := newTestAuthService(t, repo)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"}, "gho_test")
	if err == nil {
		t.Fatal("LoginOrRegisterGitHub() should propagate repository errors")
	}
}

func TestLoginOrRegisterGitHub_SealsAccessToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 3, Login: "sealed"}, "gho_secret")
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	stored, err := repo.GetUserByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if len(stored.AccessToken) == 0 {
		t.Fatal("access token was not stored")
	}
	if string(stored.AccessToken) == "gho_secret" {
		t.Fatal("access token stored in plaintext")
	}

	vault, _ := auth.NewVault(testPassphrase)
	plain, err := vault.Open(stored.AccessToken)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if plain != "gho_secret" {
		t.Errorf("opened token = %q, want %q", plain, "gho_secret")
	}
}

func TestLoginOrRegisterGitHub_EmptyTokenKeepsPrevious(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	first, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 4, Login: "keep"}, "gho_keep")
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}
	before, _ := repo.GetUserByID(ctx, first.User.ID)

	if _, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 4, Login: "keep"}, ""); err != nil {
		t.Fatalf("second login error: %v", err)
	}
	after, _ := repo.GetUserByID(ctx, first.User.ID)
	if string(after.AccessToken) != string(before.AccessToken) {
		t.Error("empty access token should keep the stored one")
	}
}

func TestLoginOrRegisterGitHub_SealError(t *testing.T) {
	repo := newFakeUserRepo()
	ts, _ := auth.NewTokenService("test-secret-at-least-16-chars!!")
	svc := NewAuthService(repo, ts, failingSealer{}, discardLogger())

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 8, Login: "x"}, "gho_x")
	if err == nil {
		t.Fatal("LoginOrRegisterGitHub() should fail when the token cannot be sealed")
	}
	if len(repo.users) != 0 {
		t.Error("no user should be stored when sealing fails")
	}
}

// =========================================================================
// GetUserByID TESTS
// =========================================================================

func TestGetUserByID_Found(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	// Register a user first so we have a valid ID
	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 7, Login: "findme",
	}, "gho_test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Login != "findme" {
		t.Errorf("user.Login = %q, want %q", user.Login, "findme")
	}
}

func TestGetUserByID_EmptyID(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.GetUserByID(context.Background(), "")
	if err == nil {
		t.Fatal("GetUserByID() should return error for empty ID")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.GetUserByID(context.Background(), "non-existent-id")
	if err == nil {
		t.Fatal("GetUserByID() should return error for unknown ID")
	}
}

// =========================================================================
// ValidateToken TESTS
// =========================================================================

func TestValidateToken_ValidToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, _ := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 5, Login: "tok"}, "gho_test")

	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("userID = %q, want %q", userID, result.User.ID)
	}
}

func TestValidateToken_InvalidToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.ValidateToken("this.is.garbage")
	if err == nil {
		t.Fatal("ValidateToken() should return error for garbage token")
	}
}
