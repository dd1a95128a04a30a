// Package auth handles dashboard sessions and the GitHub credentials behind them.
//
// AUTHENTICATION FLOW:
//  1. User visits /auth/github/login and is redirected to GitHub
//  2. GitHub calls back /auth/github/callback with a code
//  3. The server exchanges the code for an OAuth token and the user's profile,
//     seals the token with the Vault and upserts the user
//  4. The server issues a JWT session token in an HttpOnly cookie
//  5. RequireAuth validates the cookie on every /api request
//
// The OAuth token is what the background sweeps use to talk to GitHub on the
// user's behalf, long after the browser session has gone. It is stored sealed
// and only opened by TokenStore when a gateway client is built.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "oss-hunter"

// SessionTTL is the lifetime of a dashboard session cookie.
const SessionTTL = 7 * 24 * time.Hour

// TokenService signs and validates session JWTs (HS256).
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims carries the internal user ID in "sub".
type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a session token for userID valid for SessionTTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, SessionTTL)
}

// GenerateWithDuration signs a token with a custom lifetime.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies a session token and returns the user ID in its subject.
//
// Checks performed by the jwt library:
//   - the HS256 signature matches
//   - the token has not expired (expiry is mandatory)
//   - the issuer is "oss-hunter"
//
// Restricting the accepted methods to HS256 blocks "alg: none" tokens.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
