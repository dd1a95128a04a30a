package github

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// agentAssignmentFeature unlocks suggestedActors/addAssigneesToAssignable
// support for the coding agent on GitHub's GraphQL API.
const agentAssignmentFeature = "issues_copilot_assignment_api_support"

// limitedTransport waits on a shared limiter before every request so all
// per-user clients together stay under the configured request rate.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	return t.base.RoundTrip(req)
}

// featureTransport adds the GraphQL-Features header.
type featureTransport struct {
	base     http.RoundTripper
	features string
}

func (t *featureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("GraphQL-Features", t.features)
	return t.base.RoundTrip(r)
}
