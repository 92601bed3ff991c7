package models

import "time"

// NotificationType tags the entity a notification refers to.
type NotificationType string

const (
	NotificationTypeIssue        NotificationType = "ISSUE"
	NotificationTypeAnnouncement NotificationType = "ANNOUNCEMENT"
	NotificationTypeLostFound    NotificationType = "LOST_FOUND"
	NotificationTypeApproval     NotificationType = "APPROVAL"
)

// Notification represents an in-app notification delivered to a user.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Type        NotificationType `db:"type" json:"type"`
	Title       string           `db:"title" json:"title"`
	Message     string           `db:"message" json:"message"`
	ReferenceID *string          `db:"reference_id" json:"reference_id,omitempty"`
	Read        bool             `db:"read" json:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes listing of a user's notification feed.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
