package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the part of GitHub's /user response we keep.
type GitHubUser struct {
	ID        int64  `json:"id"`         // stable numeric GitHub ID
	Login     string `json:"login"`      // username, e.g. "sakif"
	Email     string `json:"email"`      // empty when hidden; see primaryEmail
	AvatarURL string `json:"avatar_url"` // profile picture URL
}

// GitHubProvider runs the GitHub OAuth Authorization Code flow.
//
// Scopes requested:
//   - "read:user"  → profile (ID, login, avatar)
//   - "user:email" → email addresses, used for notification mail
//   - "repo"       → forking, issue creation and agent assignment on the
//     user's behalf
type GitHubProvider struct {
	config *oauth2.Config
	apiURL string
}

// ProviderOption configures a GitHubProvider.
type ProviderOption func(*GitHubProvider)

// WithEndpoint overrides GitHub's OAuth endpoints.
func WithEndpoint(ep oauth2.Endpoint) ProviderOption {
	return func(p *GitHubProvider) { p.config.Endpoint = ep }
}

// WithAPIURL overrides the REST API root used to load the profile.
func WithAPIURL(url string) ProviderOption {
	return func(p *GitHubProvider) { p.apiURL = strings.TrimSuffix(url, "/") }
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// OAuth App's "Authorization callback URL" exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string, opts ...ProviderOption) *GitHubProvider {
	p := &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email", "repo"},
			Endpoint:     github.Endpoint,
		},
		apiURL: "https://api.github.com",
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AuthURL returns the GitHub authorization URL. state is echoed back on the
// callback and checked against the oauth_state cookie (CSRF protection).
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an OAuth token and loads the
// user's profile with it. The token is returned so the caller can store it.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, string, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	client := p.config.Client(ctx, oauthToken)

	var ghUser GitHubUser
	if err := getJSON(client, p.apiURL+"/user", &ghUser); err != nil {
		return nil, "", err
	}
	if ghUser.ID == 0 {
		return nil, "", fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	if ghUser.Email == "" {
		// A missing address only disables email notifications.
		if email, err := p.primaryEmail(client); err == nil {
			ghUser.Email = email
		}
	}

	return &ghUser, oauthToken.AccessToken, nil
}

func (p *GitHubProvider) primaryEmail(client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(client, p.apiURL+"/user/emails", &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("auth: no verified primary email")
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("auth: calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: %s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("auth: decoding %s: %w", url, err)
	}
	return nil
}
