package github

import (
	"context"
	"errors"
	"fmt"
)

// TokenSource resolves a user's plaintext GitHub token. It returns
// ErrNoCredential when the user has none.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// Provider builds per-user clients that share one configuration, including
// the request limiter.
type Provider struct {
	tokens TokenSource
	opts   []Option
}

// NewProvider creates a provider. opts apply to every client it builds.
func NewProvider(tokens TokenSource, opts ...Option) *Provider {
	return &Provider{tokens: tokens, opts: opts}
}

// ForUser returns a client authenticated as userID.
func (p *Provider) ForUser(ctx context.Context, userID string) (*Client, error) {
	token, err := p.tokens.AccessToken(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("resolving token for %s: %w", userID, err)
	}
	if token == "" {
		return nil, ErrNoCredential
	}
	return New(token, p.opts...)
}
