package models

import (
	"context"
	"time"
)

// MaxMemoBytes is the rail's limit on payment memo length.
const MaxMemoBytes = 28

// Payment is one native-asset transfer submitted to the rail. The network fee
// is charged to the funding account on top of the amount.
type Payment struct {
	// Destination is the receiving rail address.
	Destination string `json:"destination"`
	// Amount is the transfer amount in rail-asset units.
	Amount float64 `json:"amount"`
	// Memo is a short text attached to the transfer, at most MaxMemoBytes.
	Memo string `json:"memo"`
	// IdempotencyKey lets the gateway collapse a retried submission with the
	// attempt it is retrying.
	IdempotencyKey string `json:"idempotency_key"`
}

// PaymentReceipt reports a confirmed rail payment.
type PaymentReceipt struct {
	// ExternalTxID is the rail's identifier for the settled transaction.
	ExternalTxID string `json:"external_tx_id"`
	// FeeCharged is the network fee the funding account paid.
	FeeCharged float64 `json:"fee_charged"`
	// Attempts is how many submissions it took, including the last.
	Attempts int `json:"attempts"`
	// SubmittedAt is when the accepted submission was made.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Rail is the external value-transfer network used to execute real payments.
type Rail interface {
	// ValidateAddress checks address format and checksum without a network
	// call.
	ValidateAddress(addr string) error
	// AccountExists reports whether the address exists on the rail.
	AccountExists(ctx context.Context, addr string) (bool, error)
	// GetBalance returns the spendable balance of addr.
	GetBalance(ctx context.Context, addr string) (float64, error)
	// SubmitPayment submits a payment and waits for confirmation, retrying
	// transient gateway failures internally with backoff. Fatal failures
	// return immediately so the caller can settle the item as failed without
	// spending the retry budget.
	SubmitPayment(ctx context.Context, p Payment) (*PaymentReceipt, error)
}
