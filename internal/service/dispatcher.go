package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/notifier"
	"github.com/sakif/oss-hunter/internal/repository"
)

// EventKind names a notification event.
type EventKind string

const (
	EventNewIssue    EventKind = "new_issue"
	EventDraftReady  EventKind = "draft_ready"
	EventIssueClosed EventKind = "issue_closed"
)

// Event carries what every channel needs to render one notification.
// PRNumber and PRURL are only meaningful for EventDraftReady.
type Event struct {
	Kind        EventKind
	UserID      string
	IssueID     string // tracked issue id; empty when there is none
	Owner       string
	Repo        string
	IssueNumber int
	Title       string
	IssueURL    string
	Labels      []string
	PRNumber    int
	PRURL       string
}

// Message is the in-app text for the event.
func (e Event) Message() string {
	switch e.Kind {
	case EventDraftReady:
		return fmt.Sprintf("Draft PR #%d ready for review: %s/%s issue #%d", e.PRNumber, e.Owner, e.Repo, e.IssueNumber)
	case EventIssueClosed:
		return fmt.Sprintf("Issue closed in %s/%s: #%d - %s", e.Owner, e.Repo, e.IssueNumber, e.Title)
	default:
		return fmt.Sprintf("New issue in %s/%s: #%d - %s", e.Owner, e.Repo, e.IssueNumber, e.Title)
	}
}

// Publisher pushes live events to a user's open dashboards.
type Publisher interface {
	Publish(userID, typ string, data any)
}

// RealtimeNotification is the websocket event type for new in-app rows.
const RealtimeNotification = "notification"

// Notifier is what the workflows call to announce an event.
type Notifier interface {
	Dispatch(ctx context.Context, ev Event) error
}

// Dispatcher fans an event out to the in-app, email and push channels.
//
// The in-app row is always written. Email and push are additive: they need
// the global channel switch, the per-kind toggle and a destination, and any
// failure on them is logged and dropped.
type Dispatcher struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	prefs         repository.PreferencesRepository
	mailer        notifier.Mailer
	pusher        notifier.Pusher
	live          Publisher
	baseURL       string
	logger        *slog.Logger
}

// NewDispatcher creates a Dispatcher. live may be nil.
func NewDispatcher(
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	prefs repository.PreferencesRepository,
	mailer notifier.Mailer,
	pusher notifier.Pusher,
	live Publisher,
	baseURL string,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		users:         users,
		notifications: notifications,
		prefs:         prefs,
		mailer:        mailer,
		pusher:        pusher,
		live:          live,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// Dispatch delivers ev. It only returns an error when the in-app row could
// not be written.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	n := &model.Notification{UserID: ev.UserID, Message: ev.Message()}
	if ev.IssueID != "" {
		id := ev.IssueID
		n.IssueID = &id
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("service/dispatch: writing notification for %s: %w", ev.UserID, err)
	}
	if d.live != nil {
		d.live.Publish(ev.UserID, RealtimeNotification, n)
	}

	if ev.Kind == EventIssueClosed {
		return nil
	}

	prefs, err := d.prefs.Get(ctx, ev.UserID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			d.logger.Warn("loading notification preferences",
				slog.String("userID", ev.UserID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	if d.wantsEmail(prefs, ev.Kind) {
		d.sendEmail(ctx, ev)
	}
	if d.wantsPush(prefs, ev.Kind) {
		d.sendPush(ctx, ev, *prefs.PushSubscription)
	}
	return nil
}

func (d *Dispatcher) wantsEmail(p *model.NotificationPreferences, kind EventKind) bool {
	if !p.EmailEnabled {
		return false
	}
	switch kind {
	case EventNewIssue:
		return p.NewIssueEmail
	case EventDraftReady:
		return p.DraftReadyEmail
	}
	return false
}

func (d *Dispatcher) wantsPush(p *model.NotificationPreferences, kind EventKind) bool {
	if !p.PushEnabled || p.PushSubscription == nil || p.PushSubscription.Endpoint == "" {
		return false
	}
	switch kind {
	case EventNewIssue:
		return p.NewIssuePush
	case EventDraftReady:
		return p.DraftReadyPush
	}
	return false
}

func (d *Dispatcher) sendEmail(ctx context.Context, ev Event) {
	user, err := d.users.GetUserByID(ctx, ev.UserID)
	if err != nil {
		d.logger.Warn("loading user for email", slog.String("userID", ev.UserID), slog.String("error", err.Error()))
		return
	}
	if user.Email == "" {
		return
	}

	var email notifier.Email
	switch ev.Kind {
	case EventNewIssue:
		email, err = notifier.NewIssueEmail(user.Email, notifier.NewIssueData{
			Owner:        ev.Owner,
			Repo:         ev.Repo,
			IssueNumber:  ev.IssueNumber,
			Title:        ev.Title,
			IssueURL:     ev.IssueURL,
			Labels:       ev.Labels,
			DashboardURL: d.baseURL,
		})
	case EventDraftReady:
		email, err = notifier.DraftReadyEmail(user.Email, notifier.DraftReadyData{
			Owner:       ev.Owner,
			Repo:        ev.Repo,
			IssueNumber: ev.IssueNumber,
			Title:       ev.Title,
			PRNumber:    ev.PRNumber,
			PRURL:       ev.PRURL,
			ReviewURL:   d.reviewURL(ev.IssueID),
		})
	}
	if err == nil {
		err = d.mailer.Send(ctx, email)
	}
	if err != nil {
		d.logger.Error("sending notification email",
			slog.String("userID", ev.UserID),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) sendPush(ctx context.Context, ev Event, sub model.PushSubscription) {
	msg := notifier.PushMessage{Icon: notifier.DefaultIcon}
	switch ev.Kind {
	case EventNewIssue:
		msg.Title = fmt.Sprintf("New issue in %s/%s", ev.Owner, ev.Repo)
		msg.Body = fmt.Sprintf("#%d - %s", ev.IssueNumber, ev.Title)
		msg.URL = ev.IssueURL
	case EventDraftReady:
		msg.Title = fmt.Sprintf("Draft PR #%d ready", ev.PRNumber)
		msg.Body = fmt.Sprintf("%s/%s issue #%d", ev.Owner, ev.Repo, ev.IssueNumber)
		msg.URL = d.reviewURL(ev.IssueID)
	}

	err := d.pusher.Push(ctx, sub, msg)
	if err == nil {
		return
	}
	if errors.Is(err, notifier.ErrSubscriptionGone) {
		d.logger.Info("push subscription expired, disabling push", slog.String("userID", ev.UserID))
		if err := d.prefs.ClearPushSubscription(ctx, ev.UserID); err != nil {
			d.logger.Error("clearing push subscription",
				slog.String("userID", ev.UserID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	d.logger.Error("sending push notification",
		slog.String("userID", ev.UserID),
		slog.String("kind", string(ev.Kind)),
		slog.String("error", err.Error()),
	)
}

func (d *Dispatcher) reviewURL(issueID string) string {
	return d.baseURL + "/drafts/" + issueID
}
