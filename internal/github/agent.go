package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"

	"github.com/sakif/oss-hunter/internal/retry"
)

// FindCodingAgent returns the GraphQL node id of the coding agent among the
// actors assignable in owner/repo, or "" when the agent is not enabled there.
func (c *Client) FindCodingAgent(ctx context.Context, owner, repo string) (string, error) {
	var q struct {
		Repository struct {
			SuggestedActors struct {
				Nodes []struct {
					Login githubv4.String
					Bot   struct {
						ID githubv4.ID
					} `graphql:"... on Bot"`
					User struct {
						ID githubv4.ID
					} `graphql:"... on User"`
				}
			} `graphql:"suggestedActors(capabilities: [CAN_BE_ASSIGNED], first: 100)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]any{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
	}

	err := retry.Do(ctx, func() error {
		if err := c.gql.Query(ctx, &q, vars); err != nil {
			return &GatewayError{Op: "suggested actors " + owner + "/" + repo, Err: err}
		}
		return nil
	}, c.retryOpts()...)
	if err != nil {
		return "", err
	}

	for _, n := range q.Repository.SuggestedActors.Nodes {
		if !strings.EqualFold(string(n.Login), c.agentLogin) {
			continue
		}
		if id := nodeID(n.Bot.ID); id != "" {
			return id, nil
		}
		return nodeID(n.User.ID), nil
	}
	return "", nil
}

// issueNodeID resolves the GraphQL node id of an issue.
func (c *Client) issueNodeID(ctx context.Context, owner, repo string, number int) (string, error) {
	var q struct {
		Repository struct {
			Issue struct {
				ID githubv4.ID
			} `graphql:"issue(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}

	err := retry.Do(ctx, func() error {
		if err := c.gql.Query(ctx, &q, vars); err != nil {
			return &GatewayError{Op: fmt.Sprintf("issue node id %s/%s#%d", owner, repo, number), Err: err}
		}
		return nil
	}, c.retryOpts()...)
	if err != nil {
		return "", err
	}
	id := nodeID(q.Repository.Issue.ID)
	if id == "" {
		return "", &GatewayError{Op: fmt.Sprintf("issue node id %s/%s#%d", owner, repo, number), Err: fmt.Errorf("issue not found")}
	}
	return id, nil
}

// AssignCodingAgent assigns the coding agent to issue number in owner/repo.
// When the agent is not assignable in the repo the result is unsuccessful
// and err is nil.
func (c *Client) AssignCodingAgent(ctx context.Context, owner, repo string, number int) (AssignResult, error) {
	agentID, err := c.FindCodingAgent(ctx, owner, repo)
	if err != nil {
		return AssignResult{}, err
	}
	if agentID == "" {
		return AssignResult{}, nil
	}

	issueID, err := c.issueNodeID(ctx, owner, repo, number)
	if err != nil {
		return AssignResult{}, err
	}

	var m struct {
		AddAssigneesToAssignable struct {
			ClientMutationID githubv4.String `graphql:"clientMutationId"`
		} `graphql:"addAssigneesToAssignable(input: $input)"`
	}
	input := githubv4.AddAssigneesToAssignableInput{
		AssignableID: githubv4.ID(issueID),
		AssigneeIDs:  []githubv4.ID{githubv4.ID(agentID)},
	}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return AssignResult{}, &GatewayError{Op: fmt.Sprintf("assign agent %s/%s#%d", owner, repo, number), Err: err}
	}
	return AssignResult{Success: true, AgentID: agentID}, nil
}

// PublishDraftPR marks a draft pull request ready for review.
func (c *Client) PublishDraftPR(ctx context.Context, owner, repo string, number int) error {
	pr, err := retry.DoVal(ctx, func() (*gh.PullRequest, error) {
		pr, _, err := c.rest.PullRequests.Get(ctx, owner, repo, number)
		return pr, wrapErr(fmt.Sprintf("get pull request %s/%s#%d", owner, repo, number), err)
	}, c.retryOpts()...)
	if err != nil {
		return err
	}

	var m struct {
		MarkPullRequestReadyForReview struct {
			PullRequest struct {
				IsDraft githubv4.Boolean
			}
		} `graphql:"markPullRequestReadyForReview(input: $input)"`
	}
	input := githubv4.MarkPullRequestReadyForReviewInput{PullRequestID: githubv4.ID(pr.GetNodeID())}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return &GatewayError{Op: fmt.Sprintf("ready for review %s/%s#%d", owner, repo, number), Err: err}
	}
	return nil
}

// CloseDraftPR closes a pull request without merging it.
func (c *Client) CloseDraftPR(ctx context.Context, owner, repo string, number int) error {
	_, _, err := c.rest.PullRequests.Edit(ctx, owner, repo, number, &gh.PullRequest{State: gh.Ptr("closed")})
	if err != nil {
		return wrapErr(fmt.Sprintf("close pull request %s/%s#%d", owner, repo, number), err)
	}
	return nil
}

func nodeID(id githubv4.ID) string {
	if id == nil {
		return ""
	}
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprint(id)
}
