// Package service holds the business logic between the HTTP handlers and
// the storage and GitHub layers:
//
//	handler (HTTP) → service (rules) → repository (SQLite)
//	                                 ↘ Gateway (GitHub, per user)
//
// Services never touch HTTP. They return apperror values for anything the
// caller did wrong and wrapped errors for everything else.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/oss-hunter/internal/auth"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

// TokenSealer encrypts an OAuth token for storage.
type TokenSealer interface {
	Seal(token string) ([]byte, error)
}

// AuthService handles sign-in.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users   repository.UserRepository → read/write user records
//   - tokens  *auth.TokenService        → generate/validate session JWTs
//   - sealer  TokenSealer               → encrypts the GitHub token at rest
//   - logger  *slog.Logger              → structured logging
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	sealer TokenSealer
	logger *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	sealer TokenSealer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		sealer: sealer,
		logger: logger,
	}
}

// AuthResult bundles the user record and the issued session JWT so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
//  1. Seal the GitHub access token; the background sweeps act with it
//  2. Upsert the user (create on first login, refresh profile afterwards)
//  3. Issue a session JWT for the internal user ID
//
// An empty accessToken keeps whatever token was stored before.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser, accessToken string) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}
	if accessToken != "" {
		sealed, err := s.sealer.Seal(accessToken)
		if err != nil {
			return nil, fmt.Errorf("service/auth: sealing token for githubID=%d: %w", ghUser.ID, err)
		}
		user.AccessToken = sealed
	}

	// After this call, user.ID is populated by the repository.
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{
		User:  user,
		Token: token,
	}, nil
}

// GetUserByID returns the user for the given internal ID. Used by /api/me.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

// ValidateToken validates a session JWT and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}
