package model

import "time"

// Notification is an in-app message. IssueID is a weak reference: deleting
// the issue leaves the notification in place.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	IssueID   *string   `json:"issueId,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// PushSubscription is the browser's Web Push subscription, as produced by
// PushManager.subscribe() on the client.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// NotificationPreferences holds per-user channel toggles.
type NotificationPreferences struct {
	UserID           string            `json:"userId"`
	EmailEnabled     bool              `json:"emailEnabled"`
	PushEnabled      bool              `json:"pushEnabled"`
	NewIssueEmail    bool              `json:"newIssueEmail"`
	DraftReadyEmail  bool              `json:"draftReadyEmail"`
	NewIssuePush     bool              `json:"newIssuePush"`
	DraftReadyPush   bool              `json:"draftReadyPush"`
	PushSubscription *PushSubscription `json:"pushSubscription,omitempty"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// DefaultPreferences is what settings screens show before the user saves
// anything: both channels off, every per-kind toggle on.
func DefaultPreferences(userID string) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:          userID,
		NewIssueEmail:   true,
		DraftReadyEmail: true,
		NewIssuePush:    true,
		DraftReadyPush:  true,
	}
}
