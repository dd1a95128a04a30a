// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// We use GitHub OAuth as the identity provider, so the primary external
// identifier is the GitHub user ID. The internal ID is an xid so primary keys
// are not tied to GitHub's numbering scheme.
//
// The OAuth access token is the per-user credential every GitHub call runs
// under. It is stored sealed (see auth.Vault) and never serialised to JSON.
type User struct {
	ID          string    `json:"id"`
	GitHubID    int64     `json:"githubId"`  // GitHub's numeric user ID
	Login       string    `json:"login"`     // GitHub username, e.g. "sakif"
	Email       string    `json:"email"`     // Primary email (may be empty)
	AvatarURL   string    `json:"avatarUrl"` // Profile picture URL
	AccessToken []byte    `json:"-"`         // sealed OAuth token, nil if never granted
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
