package models

import "time"

// WithdrawalStatus is the state of a withdrawal request.
type WithdrawalStatus string

const (
	// WithdrawalStatusPending awaits an external approval decision.
	WithdrawalStatusPending WithdrawalStatus = "pending"
	// WithdrawalStatusApproved is cleared for settlement.
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	// WithdrawalStatusProcessing is locked by a settlement run.
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	// WithdrawalStatusCompleted was paid on the rail and debited.
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	// WithdrawalStatusFailed was settled without a payment (or the payment
	// failed). The wallet was never debited.
	WithdrawalStatusFailed WithdrawalStatus = "failed"
	// WithdrawalStatusRejected was declined by the external approval step and
	// awaits the rejected sweep.
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// CanTransition reports whether moving from s to next is a legal step of the
// withdrawal state machine:
//
//	pending -> approved -> processing -> completed|failed
//	pending -> rejected -> failed
func (s WithdrawalStatus) CanTransition(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalStatusPending:
		return next == WithdrawalStatusApproved || next == WithdrawalStatusRejected
	case WithdrawalStatusApproved:
		return next == WithdrawalStatusProcessing
	case WithdrawalStatusProcessing:
		return next == WithdrawalStatusCompleted || next == WithdrawalStatusFailed
	case WithdrawalStatusRejected:
		return next == WithdrawalStatusFailed
	case WithdrawalStatusCompleted, WithdrawalStatusFailed:
		return false
	}
	return false
}

// Final reports whether the status is terminal.
func (s WithdrawalStatus) Final() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusFailed
}

// WithdrawalRequest is one payout ask. It is created and approved/rejected
// outside this engine; the settlement run owns the
// approved -> processing -> completed|failed transitions.
type WithdrawalRequest struct {
	// ID is the unique identifier for the request.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// RecipientID is the requesting wallet owner.
	RecipientID string `json:"recipient_id" gorm:"column:recipient_id;index;not null"`
	// Destination is the rail address the payment goes to.
	Destination string `json:"destination" gorm:"column:destination;not null"`
	// Amount is the requested payout in rail-asset units. Only this amount is
	// debited from the wallet; the network fee is paid by the funding pool.
	Amount float64 `json:"amount" gorm:"column:amount;not null"`
	// NetworkFee is the fee quoted when the request was created.
	NetworkFee float64 `json:"network_fee" gorm:"column:network_fee"`
	// TotalDebit is the pool-side cost of the payout (amount + fee).
	TotalDebit float64 `json:"total_debit" gorm:"column:total_debit"`
	// Status is the request's position in the state machine.
	Status WithdrawalStatus `json:"status" gorm:"column:status;index;default:pending"`
	// ExternalTxID is the rail transaction identifier, set on completion.
	ExternalTxID string `json:"external_tx_id,omitempty" gorm:"column:external_tx_id;index"`
	// FailureReason is a human-readable reason, set on failure.
	FailureReason string `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	// CreatedAt orders settlement oldest-first.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
	// ProcessedAt is set when the request reaches a terminal state.
	ProcessedAt *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
}

// TransactionStatus is the state of a withdrawal transaction record.
type TransactionStatus string

const (
	// TransactionStatusPending is a transaction awaiting settlement.
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusCompleted is a transaction settled by a rail payment.
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusFailed is a transaction settled without a payment.
	TransactionStatusFailed TransactionStatus = "failed"
)

// WithdrawalTransaction records one payout settlement. Completed records are
// keyed by the rail's transaction identifier so a retried run cannot write a
// second record for the same payment.
type WithdrawalTransaction struct {
	// ID is the unique identifier for the record.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// RequestID is the withdrawal request this record settles.
	RequestID string `json:"request_id" gorm:"column:request_id;index;not null"`
	// RecipientID is the wallet owner the payout belongs to.
	RecipientID string `json:"recipient_id" gorm:"column:recipient_id;index"`
	// Destination is the rail address the payment went to.
	Destination string `json:"destination" gorm:"column:destination"`
	// Amount is the payout amount in rail-asset units.
	Amount float64 `json:"amount" gorm:"column:amount"`
	// Fee is the network fee the funding account paid.
	Fee float64 `json:"fee" gorm:"column:fee"`
	// ExternalTxID is the rail transaction identifier, set on completion.
	ExternalTxID string `json:"external_tx_id,omitempty" gorm:"column:external_tx_id;index"`
	// Status is pending until the request settles.
	Status TransactionStatus `json:"status" gorm:"column:status;index;default:pending"`
	// Reason is a human-readable failure reason, set on failure.
	Reason string `json:"reason,omitempty" gorm:"column:reason"`
	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}
