package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/repository"
)

// notificationPage is how many notifications the bell shows.
const notificationPage = 50

// NotificationService reads and acknowledges in-app notifications.
type NotificationService struct {
	notifications repository.NotificationRepository
}

func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

// List returns the newest notifications of userID.
func (s *NotificationService) List(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.notifications.ListByUser(ctx, userID, notificationPage)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.notifications.MarkRead(ctx, userID, id)
}

// MarkAllRead returns how many notifications changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

// SettingsService manages notification preferences and push subscriptions.
type SettingsService struct {
	prefs repository.PreferencesRepository
}

func NewSettingsService(prefs repository.PreferencesRepository) *SettingsService {
	return &SettingsService{prefs: prefs}
}

// Get returns the stored preferences, or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, userID string) (*model.NotificationPreferences, error) {
	p, err := s.prefs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.DefaultPreferences(userID), nil
		}
		return nil, fmt.Errorf("service/settings: %w", err)
	}
	return p, nil
}

// SettingsInput is a settings form. Nil fields keep their current value.
type SettingsInput struct {
	EmailEnabled    *bool `json:"emailEnabled"`
	PushEnabled     *bool `json:"pushEnabled"`
	NewIssueEmail   *bool `json:"newIssueEmail"`
	DraftReadyEmail *bool `json:"draftReadyEmail"`
	NewIssuePush    *bool `json:"newIssuePush"`
	DraftReadyPush  *bool `json:"draftReadyPush"`
}

// Update applies in. Push cannot be switched on without a subscription; the
// browser subscribes through SubscribePush first.
func (s *SettingsService) Update(ctx context.Context, userID string, in SettingsInput) (*model.NotificationPreferences, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.EmailEnabled, in.EmailEnabled)
	set(&p.PushEnabled, in.PushEnabled)
	set(&p.NewIssueEmail, in.NewIssueEmail)
	set(&p.DraftReadyEmail, in.DraftReadyEmail)
	set(&p.NewIssuePush, in.NewIssuePush)
	set(&p.DraftReadyPush, in.DraftReadyPush)

	if p.PushEnabled && p.PushSubscription == nil {
		return nil, apperror.ValidationFailed("pushEnabled", "subscribe this browser to push before enabling it")
	}

	if err := s.prefs.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("service/settings: %w", err)
	}
	return p, nil
}

// SubscribePush stores the browser's subscription and turns push on.
func (s *SettingsService) SubscribePush(ctx context.Context, userID string, sub model.PushSubscription) (*model.NotificationPreferences, error) {
	if !strings.HasPrefix(sub.Endpoint, "https://") {
		return nil, apperror.ValidationFailed("endpoint", "push endpoint must be an https URL")
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, apperror.ValidationFailed("keys", "push subscription keys are required")
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.PushSubscription = &sub
	p.PushEnabled = true
	if err := s.prefs.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("service/settings: %w", err)
	}
	return p, nil
}

// UnsubscribePush drops the subscription and turns push off.
func (s *SettingsService) UnsubscribePush(ctx context.Context, userID string) (*model.NotificationPreferences, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.PushSubscription = nil
	p.PushEnabled = false
	if err := s.prefs.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("service/settings: %w", err)
	}
	return p, nil
}
