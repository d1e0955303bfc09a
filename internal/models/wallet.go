package models

import "time"

// Wallet is a recipient's ledger-internal balance. It is created lazily on
// the first credit and is the only place earnings live until a withdrawal
// settles on the rail.
//
// Invariant: Balance never goes below zero. Balance only increases through a
// distribution credit and only decreases through a successful withdrawal
// debit; both updates are conditional writes so overlapping runs cannot
// corrupt it.
type Wallet struct {
	// RecipientID identifies the wallet owner.
	RecipientID string `json:"recipient_id" gorm:"column:recipient_id;primaryKey"`
	// Balance is the spendable ledger balance in rail-asset units.
	Balance float64 `json:"balance" gorm:"column:balance;not null;default:0"`
	// TotalEarned is the lifetime sum of distribution credits.
	TotalEarned float64 `json:"total_earned" gorm:"column:total_earned;not null;default:0"`
	// TotalWithdrawn is the lifetime sum of settled withdrawal debits.
	TotalWithdrawn float64 `json:"total_withdrawn" gorm:"column:total_withdrawn;not null;default:0"`
	// TotalEventsCounted is the lifetime number of usage events paid out.
	TotalEventsCounted int64 `json:"total_events_counted" gorm:"column:total_events_counted;not null;default:0"`
	// CreatedAt is when the wallet row was first created.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	// UpdatedAt is bumped on every balance change.
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}
