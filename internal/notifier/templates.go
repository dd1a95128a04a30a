package notifier

import (
	"bytes"
	"fmt"
	"html/template"
)

// NewIssueData feeds the new-issue email.
type NewIssueData struct {
	Owner        string
	Repo         string
	IssueNumber  int
	Title        string
	IssueURL     string
	Labels       []string
	DashboardURL string
}

// DraftReadyData feeds the draft-ready email.
type DraftReadyData struct {
	Owner       string
	Repo        string
	IssueNumber int
	Title       string
	PRNumber    int
	PRURL       string
	ReviewURL   string
}

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "new_issue"}}<!DOCTYPE html>
<html><body style="font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;color:#1f2328">
<h2 style="margin:0 0 12px">New issue in {{.Owner}}/{{.Repo}}</h2>
<p><a href="{{.IssueURL}}">#{{.IssueNumber}} {{.Title}}</a></p>
{{if .Labels}}<p>{{range .Labels}}<span style="background:#ddf4ff;border-radius:12px;padding:2px 8px;margin-right:4px">{{.}}</span>{{end}}</p>{{end}}
<p>The coding agent has been queued to work on it.</p>
{{if .DashboardURL}}<p><a href="{{.DashboardURL}}">Open dashboard</a></p>{{end}}
</body></html>{{end}}

{{define "draft_ready"}}<!DOCTYPE html>
<html><body style="font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;color:#1f2328">
<h2 style="margin:0 0 12px">Draft PR #{{.PRNumber}} is ready for review</h2>
<p>{{.Owner}}/{{.Repo}} issue #{{.IssueNumber}}{{if .Title}}: {{.Title}}{{end}}</p>
<p><a href="{{.PRURL}}">View the pull request on GitHub</a></p>
{{if .ReviewURL}}<p><a href="{{.ReviewURL}}">Publish or reject it from the dashboard</a></p>{{end}}
</body></html>{{end}}
`))

// NewIssueEmail renders the new-issue message for to.
func NewIssueEmail(to string, d NewIssueData) (Email, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, "new_issue", d); err != nil {
		return Email{}, fmt.Errorf("notifier: rendering new issue email: %w", err)
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("New issue in %s/%s: #%d", d.Owner, d.Repo, d.IssueNumber),
		HTML:    buf.String(),
		Text:    fmt.Sprintf("New issue in %s/%s: #%d - %s\n%s\n", d.Owner, d.Repo, d.IssueNumber, d.Title, d.IssueURL),
	}, nil
}

// DraftReadyEmail renders the draft-ready message for to.
func DraftReadyEmail(to string, d DraftReadyData) (Email, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, "draft_ready", d); err != nil {
		return Email{}, fmt.Errorf("notifier: rendering draft ready email: %w", err)
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Draft PR #%d ready for review: %s/%s", d.PRNumber, d.Owner, d.Repo),
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Draft PR #%d ready for review: %s/%s issue #%d\n%s\n", d.PRNumber, d.Owner, d.Repo, d.IssueNumber, d.PRURL),
	}, nil
}
