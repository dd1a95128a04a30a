package service

import (
	"context"

	"github.com/sakif/oss-hunter/internal/github"
)

// Gateway is the slice of the GitHub client the services call. Every
// Gateway acts on behalf of one user.
type Gateway interface {
	ListOpenIssues(ctx context.Context, owner, repo string) ([]github.Issue, error)
	ListOpenPullRequests(ctx context.Context, owner, repo string) ([]github.PullRequest, error)
	IssueHasLinkedPR(ctx context.Context, owner, repo string, number int) (bool, error)
	FetchIssueState(ctx context.Context, owner, repo string, number int) (github.IssueState, error)

	CheckOwnership(ctx context.Context, owner, repo string) (github.Ownership, error)
	ForkRepository(ctx context.Context, owner, repo string) (github.Fork, error)
	SearchRepositories(ctx context.Context, query string, page, perPage int, typ github.SearchType) (github.SearchResult, error)

	FindCodingAgent(ctx context.Context, owner, repo string) (string, error)
	AssignCodingAgent(ctx context.Context, owner, repo string, number int) (github.AssignResult, error)
	CreateLinkedForkIssue(ctx context.Context, upstreamOwner, upstreamRepo string, number int, forkOwner, forkRepo string) (int, error)
	CheckAgentPRStatus(ctx context.Context, owner, repo string, number int) (github.AgentPRStatus, error)
	FindForkAgentPR(ctx context.Context, forkOwner, forkRepo, upstreamOwner, upstreamRepo string, number int) (github.AgentPRStatus, error)
	PublishDraftPR(ctx context.Context, owner, repo string, number int) error
	CloseDraftPR(ctx context.Context, owner, repo string, number int) error
}

var _ Gateway = (*github.Client)(nil)

// GatewayProvider resolves a user's stored credential into a Gateway.
// It returns github.ErrNoCredential when the user has no usable token.
type GatewayProvider interface {
	ForUser(ctx context.Context, userID string) (Gateway, error)
}

type githubProvider struct {
	p *github.Provider
}

// NewGatewayProvider adapts a github.Provider to GatewayProvider.
func NewGatewayProvider(p *github.Provider) GatewayProvider {
	return githubProvider{p: p}
}

func (g githubProvider) ForUser(ctx context.Context, userID string) (Gateway, error) {
	c, err := g.p.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c, nil
}
