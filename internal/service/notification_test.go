package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/model"
)

func TestNotificationService(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo)
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		_ = repo.Create(ctx, &model.Notification{UserID: "u1", Message: msg})
	}
	_ = repo.Create(ctx, &model.Notification{UserID: "u2", Message: "other"})

	list, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 || list[0].Message != "three" {
		t.Errorf("list = %+v, want newest first", list)
	}

	if err := svc.MarkRead(ctx, "u1", list[0].ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if n, _ := svc.UnreadCount(ctx, "u1"); n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	if err := svc.MarkRead(ctx, "u2", list[1].ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("MarkRead() on another user's row error = %v, want ErrNotFound", err)
	}

	changed, err := svc.MarkAllRead(ctx, "u1")
	if err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	if changed != 2 {
		t.Errorf("changed = %d, want 2", changed)
	}
	if n, _ := svc.UnreadCount(ctx, "u2"); n != 1 {
		t.Errorf("u2 unread = %d, want 1", n)
	}
}

func validSubscription() model.PushSubscription {
	sub := model.PushSubscription{Endpoint: "https://fcm.googleapis.com/fcm/send/abc"}
	sub.Keys.P256dh = "BNcRd"
	sub.Keys.Auth = "tBHI"
	return sub
}

func TestSettings_DefaultsWhenUnset(t *testing.T) {
	svc := NewSettingsService(newFakePrefsRepo())

	p, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.EmailEnabled || p.PushEnabled || !p.NewIssueEmail || !p.DraftReadyPush {
		t.Errorf("defaults = %+v", p)
	}
}

func TestSettings_GetError(t *testing.T) {
	repo := newFakePrefsRepo()
	repo.getErr = errors.New("db locked")

	if _, err := NewSettingsService(repo).Get(context.Background(), "u1"); err == nil {
		t.Fatal("Get() should surface storage errors")
	}
}

func TestSettings_UpdateKeepsUnsetFields(t *testing.T) {
	repo := newFakePrefsRepo()
	svc := NewSettingsService(repo)
	on, off := true, false

	p, err := svc.Update(context.Background(), "u1", SettingsInput{EmailEnabled: &on, NewIssueEmail: &off})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !p.EmailEnabled || p.NewIssueEmail || !p.DraftReadyEmail {
		t.Errorf("prefs = %+v", p)
	}
	if stored := repo.prefs["u1"]; stored == nil || !stored.EmailEnabled {
		t.Error("preferences were not saved")
	}
}

func TestSettings_PushNeedsSubscription(t *testing.T) {
	svc := NewSettingsService(newFakePrefsRepo())
	on := true

	_, err := svc.Update(context.Background(), "u1", SettingsInput{PushEnabled: &on})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation", err)
	}
}

func TestSettings_SubscribeAndUnsubscribe(t *testing.T) {
	repo := newFakePrefsRepo()
	svc := NewSettingsService(repo)
	ctx := context.Background()

	p, err := svc.SubscribePush(ctx, "u1", validSubscription())
	if err != nil {
		t.Fatalf("SubscribePush() error = %v", err)
	}
	if !p.PushEnabled || p.PushSubscription == nil {
		t.Fatalf("prefs = %+v", p)
	}

	off := false
	if _, err := svc.Update(ctx, "u1", SettingsInput{NewIssuePush: &off}); err != nil {
		t.Fatalf("Update() with subscription error = %v", err)
	}

	p, err = svc.UnsubscribePush(ctx, "u1")
	if err != nil {
		t.Fatalf("UnsubscribePush() error = %v", err)
	}
	if p.PushEnabled || p.PushSubscription != nil {
		t.Errorf("prefs = %+v", p)
	}
	if repo.prefs["u1"].NewIssuePush {
		t.Error("unsubscribing must keep the per-kind toggles")
	}
}

func TestSettings_SubscribeValidation(t *testing.T) {
	svc := NewSettingsService(newFakePrefsRepo())

	insecure := validSubscription()
	insecure.Endpoint = "http://push.example/abc"
	if _, err := svc.SubscribePush(context.Background(), "u1", insecure); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("http endpoint error = %v, want ErrValidation", err)
	}

	noKeys := validSubscription()
	noKeys.Keys.Auth = ""
	if _, err := svc.SubscribePush(context.Background(), "u1", noKeys); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("missing keys error = %v, want ErrValidation", err)
	}
}
