package github

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	gh "github.com/google/go-github/v68/github"
)

// MaxWebhookBody caps the size of a webhook delivery we are willing to read.
const MaxWebhookBody = 1 << 20

// ErrBadSignature is returned when a delivery's X-Hub-Signature-256 does not
// match the shared secret.
var ErrBadSignature = errors.New("github: webhook signature mismatch")

// WebhookDelivery is the part of a webhook delivery the service acts on.
// Only "issues" events are decoded; for any other Event the remaining fields
// are empty.
type WebhookDelivery struct {
	Event      string // X-GitHub-Event, e.g. "issues" or "ping"
	DeliveryID string
	Action     string
	Owner      string
	Repo       string
	Issue      Issue
	// IsPullRequest is set for issue events that GitHub raises on PRs.
	IsPullRequest bool
}

// ParseWebhook verifies the HMAC-SHA256 signature of r's body against secret
// and decodes the delivery. The body must be the raw JSON GitHub sent.
func ParseWebhook(r *http.Request, secret []byte) (WebhookDelivery, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBody+1))
	if err != nil {
		return WebhookDelivery{}, fmt.Errorf("github: reading webhook body: %w", err)
	}
	if len(body) > MaxWebhookBody {
		return WebhookDelivery{}, fmt.Errorf("github: webhook body exceeds %d bytes", MaxWebhookBody)
	}

	sig := r.Header.Get(gh.SHA256SignatureHeader)
	if sig == "" {
		return WebhookDelivery{}, ErrBadSignature
	}
	if err := gh.ValidateSignature(sig, body, secret); err != nil {
		return WebhookDelivery{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	d := WebhookDelivery{
		Event:      gh.WebHookType(r),
		DeliveryID: gh.DeliveryID(r),
	}
	if d.Event != "issues" {
		return d, nil
	}

	parsed, err := gh.ParseWebHook(d.Event, body)
	if err != nil {
		return WebhookDelivery{}, fmt.Errorf("github: decoding issues event: %w", err)
	}
	ev, ok := parsed.(*gh.IssuesEvent)
	if !ok || ev.Issue == nil || ev.Repo == nil {
		return WebhookDelivery{}, errors.New("github: issues event without issue or repository")
	}

	d.Action = ev.GetAction()
	d.Owner = ev.Repo.GetOwner().GetLogin()
	d.Repo = ev.Repo.GetName()
	d.Issue = toIssue(ev.Issue)
	d.IsPullRequest = ev.Issue.IsPullRequest()
	return d, nil
}
