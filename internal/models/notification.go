package models

import "time"

// NotificationType drives how clients render a notification.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification is a message addressed to one admin or student.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	UserType  UserRole         `db:"user_type" json:"user_type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      NotificationType `db:"type" json:"type"`
	Link      *string          `db:"link" json:"link,omitempty"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// SendNotificationRequest lets an admin notify a single user.
type SendNotificationRequest struct {
	UserID   string           `json:"user_id" validate:"required"`
	UserType UserRole         `json:"user_type" validate:"required,oneof=ADMIN STUDENT"`
	Title    string           `json:"title" validate:"required,max=200"`
	Message  string           `json:"message" validate:"required,max=1000"`
	Type     NotificationType `json:"type" validate:"omitempty,oneof=success error warning info"`
	Link     *string          `json:"link" validate:"omitempty,max=300"`
}
