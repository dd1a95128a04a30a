package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/repository"
)

var _ github.TokenSource = (*TokenStore)(nil)

// ErrNoVault is returned by Seal when no token key is configured.
var ErrNoVault = errors.New("auth: token key not configured")

// TokenStore keeps users' GitHub OAuth tokens sealed in the users table.
type TokenStore struct {
	users repository.UserRepository
	vault *Vault
}

// NewTokenStore creates a TokenStore. A nil vault stores nothing and
// resolves no credential for anyone.
func NewTokenStore(users repository.UserRepository, vault *Vault) *TokenStore {
	return &TokenStore{users: users, vault: vault}
}

// Seal encrypts a token for storage on a model.User.
func (s *TokenStore) Seal(token string) ([]byte, error) {
	if s.vault == nil {
		return nil, ErrNoVault
	}
	return s.vault.Seal(token)
}

// Save replaces the stored token of userID.
func (s *TokenStore) Save(ctx context.Context, userID, token string) error {
	sealed, err := s.Seal(token)
	if err != nil {
		return err
	}
	return s.users.SetAccessToken(ctx, userID, sealed)
}

// AccessToken returns the plaintext token of userID, or
// github.ErrNoCredential when the user has none or it cannot be opened.
func (s *TokenStore) AccessToken(ctx context.Context, userID string) (string, error) {
	if s.vault == nil {
		return "", github.ErrNoCredential
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", github.ErrNoCredential
		}
		return "", fmt.Errorf("auth: loading user %s: %w", userID, err)
	}
	if len(u.AccessToken) == 0 {
		return "", github.ErrNoCredential
	}

	token, err := s.vault.Open(u.AccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", github.ErrNoCredential, err)
	}
	return token, nil
}
