package models

import "errors"

// Sentinel errors returned by Ledger implementations. Engines branch on them
// with errors.Is, so stores return them either bare or wrapped with %w.
var (
	// ErrInsufficientBalance is returned by DebitWallet when the balance
	// cannot cover the amount at write time.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrWalletNotFound is returned when no wallet exists for a recipient.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWithdrawalNotFound is returned when a withdrawal request id is unknown.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrConcurrentUpdate is returned when an optimistic wallet update lost
	// the write race on every retry.
	ErrConcurrentUpdate = errors.New("concurrent update")
)
