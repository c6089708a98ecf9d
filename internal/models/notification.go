package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies the origin of a notification.
type NotificationType string

const (
	NotificationTypeSystem   NotificationType = "system"
	NotificationTypeUser     NotificationType = "user"
	NotificationTypeSecurity NotificationType = "security"
	NotificationTypeContent  NotificationType = "content"
	NotificationTypeInfo     NotificationType = "info"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeSystem, NotificationTypeUser, NotificationTypeSecurity,
		NotificationTypeContent, NotificationTypeInfo:
		return true
	}
	return false
}

// NotificationPriority orders notifications by urgency.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Valid reports whether p is a known priority.
func (p NotificationPriority) Valid() bool {
	switch p {
	case NotificationPriorityLow, NotificationPriorityMedium, NotificationPriorityHigh:
		return true
	}
	return false
}

// Notification represents an in-app notification for a recipient.
// RecipientID never changes after insert; ReadAt is set once, when IsRead flips to true.
type Notification struct {
	BaseModel

	RecipientID string               `gorm:"type:varchar(64);not null;index:idx_notifications_recipient_read,priority:1" json:"recipientId"`
	Type        NotificationType     `gorm:"type:varchar(16);not null" json:"type"`
	Title       string               `gorm:"type:varchar(255);not null" json:"title"`
	Message     string               `gorm:"type:text" json:"message"`
	Priority    NotificationPriority `gorm:"type:varchar(16);not null;default:'medium'" json:"priority"`
	ActionURL   string               `gorm:"type:text" json:"actionUrl"`
	Metadata    datatypes.JSON       `json:"metadata"`

	IsRead bool       `gorm:"not null;default:false;index:idx_notifications_recipient_read,priority:2" json:"read"`
	ReadAt *time.Time `json:"readAt"`
}
