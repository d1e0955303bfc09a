package models

import (
	"context"
	"time"
)

// NotificationKind classifies recipient notifications.
type NotificationKind string

const (
	// NotificationKindEarning reports a distribution credit.
	NotificationKindEarning NotificationKind = "earning"
	// NotificationKindWithdrawalCompleted reports a settled payout.
	NotificationKindWithdrawalCompleted NotificationKind = "withdrawal_completed"
	// NotificationKindWithdrawalFailed reports a payout that could not settle.
	NotificationKindWithdrawalFailed NotificationKind = "withdrawal_failed"
)

// Notification is a fire-and-forget message to a recipient. Failing to create
// one never fails the operation that produced it; delivery to devices happens
// outside this engine.
type Notification struct {
	// ID is the unique identifier for the notification.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// RecipientID is who the message is for.
	RecipientID string `json:"recipient_id" gorm:"column:recipient_id;index;not null"`
	// Kind classifies the message.
	Kind NotificationKind `json:"kind" gorm:"column:kind;index"`
	// Message is the human-readable text.
	Message string `json:"message" gorm:"column:message"`
	// Amount is the amount the message refers to, when applicable.
	Amount float64 `json:"amount" gorm:"column:amount"`
	// Read is flipped by the presentation layer, never by this engine.
	Read bool `json:"read" gorm:"column:read;default:false"`
	// CreatedAt is when the notification was produced.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}

// NotificationService produces recipient notifications and operator alerts.
// Implementations swallow and log their own failures; callers never see an
// error from either method.
type NotificationService interface {
	// NotifyRecipient persists a notification for a recipient.
	NotifyRecipient(ctx context.Context, n *Notification)
	// AlertOperator pushes a message to the operator channels. Used for
	// states that need manual reconciliation.
	AlertOperator(ctx context.Context, subject, message string)
}
