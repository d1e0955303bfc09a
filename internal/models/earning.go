package models

import (
	"fmt"
	"time"
)

// EarningTransaction is an immutable record of one distribution credit to one
// wallet. The idempotency key collapses duplicate writes across retried runs
// of the same day.
type EarningTransaction struct {
	// ID is the unique identifier for the transaction.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// RecipientID is the credited wallet owner.
	RecipientID string `json:"recipient_id" gorm:"column:recipient_id;index;not null"`
	// Amount is the credited amount in rail-asset units.
	Amount float64 `json:"amount" gorm:"column:amount;not null"`
	// EventCount is the number of usage events the credit covers.
	EventCount int64 `json:"event_count" gorm:"column:event_count"`
	// IdempotencyKey is derived from the run date and the recipient id.
	IdempotencyKey string `json:"idempotency_key" gorm:"column:idempotency_key;uniqueIndex"`
	// RunDate is the distribution run date in YYYY-MM-DD form.
	RunDate string `json:"run_date" gorm:"column:run_date;index"`
	// CreatedAt is when the credit was recorded.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// EarningKey builds the idempotency key for one recipient in one run.
func EarningKey(runDate, recipientID string) string {
	return fmt.Sprintf("dist-%s-%s", runDate, recipientID)
}

// DistributionRunLog is the immutable audit record of one distribution run.
type DistributionRunLog struct {
	// ID is the unique identifier for the run log.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// RunDate is the run date in YYYY-MM-DD form.
	RunDate string `json:"run_date" gorm:"column:run_date;index"`
	// Pool is the distributable pool the run started from.
	Pool float64 `json:"pool" gorm:"column:pool"`
	// Rate is the per-event rate applied across the run.
	Rate float64 `json:"rate" gorm:"column:rate"`
	// TotalEvents is the global pending event count the rate was computed from.
	TotalEvents int64 `json:"total_events" gorm:"column:total_events"`
	// RecipientsPaid is how many recipients the run credited.
	RecipientsPaid int64 `json:"recipients_paid" gorm:"column:recipients_paid"`
	// TotalDistributed is the sum of all credits the run made.
	TotalDistributed float64 `json:"total_distributed" gorm:"column:total_distributed"`
	// CreatedAt is when the run finished.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}
