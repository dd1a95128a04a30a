package github

import "time"

// Issue is an open upstream issue (never a pull request).
type Issue struct {
	Number  int
	Title   string
	Body    string
	HTMLURL string
	Labels  []string
	Author  string
}

// PullRequest is an open upstream pull request.
type PullRequest struct {
	Number  int
	Title   string
	HTMLURL string
	Labels  []string
	Author  string
	Draft   bool
}

// IssueState is the upstream open/closed state of an issue.
type IssueState struct {
	State    string // "open" or "closed"
	ClosedAt *time.Time
}

// Closed reports whether the issue is closed upstream.
func (s IssueState) Closed() bool { return s.State == "closed" }

// Ownership describes the caller's access to a repository.
type Ownership struct {
	IsOwned         bool
	PermissionLevel string // admin, maintain, push, triage, pull
}

// Fork locates the caller's fork of an upstream repository.
type Fork struct {
	Owner string
	Repo  string
}

// AssignResult is the outcome of assigning the coding agent. Success is
// false (with a nil error) when the agent cannot be assigned in the repo.
type AssignResult struct {
	Success bool
	AgentID string
}

// AgentPRStatus reports whether the coding agent has opened a PR.
type AgentPRStatus struct {
	HasPR    bool
	PRNumber int
	PRURL    string
	IsDraft  bool
}

// SearchType selects how SearchRepositories interprets the query.
type SearchType string

const (
	SearchAll   SearchType = "all"
	SearchName  SearchType = "name"
	SearchOwner SearchType = "owner"
)

// Repository is one search hit.
type Repository struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	Description string `json:"description"`
	HTMLURL     string `json:"htmlUrl"`
	Stars       int    `json:"stars"`
	OpenIssues  int    `json:"openIssues"`
	Language    string `json:"language"`
	Fork        bool   `json:"fork"`
}

// SearchResult is one page of repository search hits.
type SearchResult struct {
	Repositories []Repository `json:"repositories"`
	TotalCount   int          `json:"totalCount"`
	Page         int          `json:"page"`
	PerPage      int          `json:"perPage"`
	HasMore      bool         `json:"hasMore"`
}
