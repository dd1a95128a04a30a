// Package github is the gateway to GitHub used by the auto-fix orchestrator.
//
// REST calls go through go-github; the coding-agent lookup, assignment and
// ready-for-review mutations go through the GraphQL API (githubv4), which is
// the only surface that exposes them. A Client is bound to one user's token.
package github

import (
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sakif/oss-hunter/internal/retry"
)

const (
	defaultGraphQLURL = "https://api.github.com/graphql"
	defaultAgentLogin = "copilot"
	defaultForkSettle = 3 * time.Second

	// maxPages bounds every paginated listing.
	maxPages = 10
)

// Client is a typed GitHub client for a single user's credential.
type Client struct {
	rest         *gh.Client
	gql          *githubv4.Client
	retryBackoff []time.Duration
	forkSettle   time.Duration
	agentLogin   string
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL      string
	retryBackoff []time.Duration
	forkSettle   time.Duration
	limiter      *rate.Limiter
	agentLogin   string
}

// WithBaseURL points the client at a GitHub Enterprise (or test) server.
// REST calls go to <url>/api/v3/ and GraphQL to <url>/api/graphql.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithRetryBackoff overrides the delays between read retries.
func WithRetryBackoff(delays ...time.Duration) Option {
	return func(c *clientConfig) { c.retryBackoff = delays }
}

// WithForkSettleDelay sets how long ForkRepository waits after creating a
// fork. GitHub creates forks asynchronously.
func WithForkSettleDelay(d time.Duration) Option {
	return func(c *clientConfig) { c.forkSettle = d }
}

// WithRateLimiter shares a request limiter across clients.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *clientConfig) { c.limiter = l }
}

// WithAgentLogin sets the login substring identifying the coding agent.
func WithAgentLogin(login string) Option {
	return func(c *clientConfig) { c.agentLogin = strings.ToLower(login) }
}

// New creates a client authenticating with the given OAuth token.
func New(token string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		forkSettle: defaultForkSettle,
		agentLogin: defaultAgentLogin,
	}
	for _, o := range opts {
		o(cfg)
	}

	authed := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   &limitedTransport{base: http.DefaultTransport, limiter: cfg.limiter},
	}

	rest := gh.NewClient(&http.Client{Transport: authed})
	graphQLURL := defaultGraphQLURL
	if cfg.baseURL != "" {
		var err error
		rest, err = rest.WithEnterpriseURLs(cfg.baseURL, cfg.baseURL)
		if err != nil {
			return nil, err
		}
		graphQLURL = strings.TrimSuffix(cfg.baseURL, "/") + "/api/graphql"
	}

	gqlHTTP := &http.Client{Transport: &featureTransport{base: authed, features: agentAssignmentFeature}}

	return &Client{
		rest:         rest,
		gql:          githubv4.NewEnterpriseClient(graphQLURL, gqlHTTP),
		retryBackoff: cfg.retryBackoff,
		forkSettle:   cfg.forkSettle,
		agentLogin:   cfg.agentLogin,
	}, nil
}

func (c *Client) retryOpts() []retry.Option {
	if len(c.retryBackoff) == 0 {
		return nil
	}
	return []retry.Option{retry.WithBackoff(c.retryBackoff...)}
}

// isAgent reports whether login belongs to the coding agent.
func (c *Client) isAgent(login string) bool {
	return strings.Contains(strings.ToLower(login), c.agentLogin)
}

func labelNames(labels []*gh.Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if name := l.GetName(); name != "" {
			out = append(out, name)
		}
	}
	return out
}
