package models

import "time"

// PaymentStatus is the settlement state of a usage event.
type PaymentStatus string

const (
	// PaymentStatusPending means the event has accrued but has not been paid.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid means the event was consumed by a distribution run.
	// Paid events are never reverted to pending.
	PaymentStatusPaid PaymentStatus = "paid"
)

// UsageEvent is one unit of recipient-attributable activity (an ad view on a
// recipient's content) awaiting payment. Events are created by the
// content-serving layer; this engine only ever flips them pending -> paid.
type UsageEvent struct {
	// ID is the unique identifier for the event.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// RecipientID is the author the event accrues to.
	RecipientID string `json:"recipient_id" gorm:"column:recipient_id;index;not null"`
	// ContentID is the content the ad was served on.
	ContentID string `json:"content_id" gorm:"column:content_id;index"`
	// PaymentStatus is pending until a distribution run consumes the event.
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"column:payment_status;index;default:pending"`
	// CreatedAt is when the view was recorded.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
	// PaidAt is set by the run that marked the event paid.
	PaidAt *time.Time `json:"paid_at,omitempty" gorm:"column:paid_at"`
}
