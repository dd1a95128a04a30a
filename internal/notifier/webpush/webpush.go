// Package webpush delivers Web Push notifications signed with VAPID keys.
package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	wp "github.com/SherClockHolmes/webpush-go"

	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/notifier"
)

var _ notifier.Pusher = (*Pusher)(nil)

// defaultTTL is how long (seconds) the push service keeps an undelivered message.
const defaultTTL = 24 * 60 * 60

// Pusher is a notifier.Pusher holding the VAPID key pair.
type Pusher struct {
	publicKey  string
	privateKey string
	subject    string
	httpClient *http.Client
}

// New creates a Pusher. subject is the VAPID "sub" claim, a mailto: or
// https: URL identifying the sender.
func New(publicKey, privateKey, subject string, httpClient *http.Client) *Pusher {
	// webpush-go adds the mailto: scheme itself.
	subject = strings.TrimPrefix(subject, "mailto:")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Pusher{
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
		httpClient: httpClient,
	}
}

// Push encrypts msg for the subscription and posts it to its endpoint.
// 404 and 410 responses map to notifier.ErrSubscriptionGone.
func (p *Pusher) Push(ctx context.Context, sub model.PushSubscription, msg notifier.PushMessage) error {
	if msg.Icon == "" {
		msg.Icon = notifier.DefaultIcon
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webpush: encoding payload: %w", err)
	}

	resp, err := wp.SendNotificationWithContext(ctx, payload, &wp.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     wp.Keys{Auth: sub.Keys.Auth, P256dh: sub.Keys.P256dh},
	}, &wp.Options{
		HTTPClient:      p.httpClient,
		Subscriber:      p.subject,
		VAPIDPublicKey:  p.publicKey,
		VAPIDPrivateKey: p.privateKey,
		TTL:             defaultTTL,
		Urgency:         wp.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("webpush: sending: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		return notifier.ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("webpush: push service returned status %d", resp.StatusCode)
	}
	return nil
}

// GenerateKeys returns a fresh VAPID key pair.
func GenerateKeys() (privateKey, publicKey string, err error) {
	return wp.GenerateVAPIDKeys()
}
