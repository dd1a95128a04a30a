// Package resend sends notification email through the Resend API.
package resend

import (
	"context"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v2"

	"github.com/sakif/oss-hunter/internal/notifier"
)

var _ notifier.Mailer = (*Mailer)(nil)

// Mailer is a notifier.Mailer backed by one Resend client.
type Mailer struct {
	client *resend.Client
	from   string
}

// Option configures a Mailer.
type Option func(*Mailer) error

// WithBaseURL points the client at another API root (tests).
func WithBaseURL(raw string) Option {
	return func(m *Mailer) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("resend: parsing base URL: %w", err)
		}
		m.client.BaseURL = u
		return nil
	}
}

// New creates a Mailer sending as from.
func New(apiKey, from string, opts ...Option) (*Mailer, error) {
	m := &Mailer{client: resend.NewClient(apiKey), from: from}
	for _, o := range opts {
		if err := o(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Send delivers one email.
func (m *Mailer) Send(ctx context.Context, e notifier.Email) error {
	_, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{e.To},
		Subject: e.Subject,
		Html:    e.HTML,
		Text:    e.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: sending %q to %s: %w", e.Subject, e.To, err)
	}
	return nil
}
