// Package notifier defines the outbound email and push channels used by the
// notification dispatcher. Concrete senders live in the resend and webpush
// subpackages; both are built once at startup and shared.
package notifier

import (
	"context"
	"errors"

	"github.com/sakif/oss-hunter/internal/model"
)

// ErrSubscriptionGone is returned by a Pusher when the push service reports
// the subscription no longer exists (HTTP 404 or 410). The stored
// subscription should be dropped.
var ErrSubscriptionGone = errors.New("notifier: push subscription gone")

// Email is one rendered message.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// PushMessage is the JSON payload the service worker receives.
type PushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
}

// DefaultIcon is shown next to every push notification.
const DefaultIcon = "/icon-192.png"

// Pusher delivers Web Push messages.
type Pusher interface {
	Push(ctx context.Context, sub model.PushSubscription, msg PushMessage) error
}

// Noop channels stand in when email or push is not configured.
type (
	NoopMailer struct{}
	NoopPusher struct{}
)

func (NoopMailer) Send(context.Context, Email) error { return nil }

func (NoopPusher) Push(context.Context, model.PushSubscription, PushMessage) error { return nil }
