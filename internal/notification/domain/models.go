// Package domain contains the notification sender boundary.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// NotificationType categorizes notifications for client rendering.
type NotificationType string

const (
	NotificationTypePenaltyApplied     NotificationType = "PENALTY_APPLIED"
	NotificationTypeContractTerminated NotificationType = "CONTRACT_TERMINATED"
	NotificationTypeBookingCancelled   NotificationType = "BOOKING_CANCELLED"
	NotificationTypeEscrowRefunded     NotificationType = "ESCROW_REFUNDED"
)

// Notification is one message to one user.
type Notification struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	UserID    snowflake.ID      `gorm:"not null;index"`
	Type      NotificationType  `gorm:"type:text;not null"`
	Title     string            `gorm:"type:text;not null"`
	Content   string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	ReadAt    *time.Time        `gorm:""`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

// CreateRequest asks the notifier to deliver one notification.
type CreateRequest struct {
	UserID   snowflake.ID
	Type     NotificationType
	Title    string
	Content  string
	Metadata map[string]any
}

// Notifier delivers notifications. Callers treat it as fire-and-forget:
// errors are logged at the call site and never fail the local write.
type Notifier interface {
	Create(ctx context.Context, req CreateRequest) error
}
