package models

import "context"

// Ledger owns every persisted settlement entity. Runs may overlap in time, so
// every state transition that matters is a conditional write that no-ops
// instead of corrupting state when a concurrent run already acted; all
// methods are safe to call from overlapping runs.
type Ledger interface {
	// FetchUnpaidEvents returns every pending usage event grouped by
	// recipient, paging through the underlying store until exhausted so no
	// recipient or event is silently dropped.
	FetchUnpaidEvents(ctx context.Context) (map[string][]*UsageEvent, error)
	// MarkEventsPaid flips the given events from pending to paid and returns
	// how many rows were actually flipped. Already-paid events are not
	// counted, so overlapping calls never double-count.
	MarkEventsPaid(ctx context.Context, eventIDs []string) (int64, error)
	// CreditWallet adds amount to the recipient's wallet, creating it on
	// first credit. The update is optimistic: it retries when a concurrent
	// writer moved the balance and fails with ErrConcurrentUpdate when the
	// retry budget is spent, never overwriting a foreign write.
	CreditWallet(ctx context.Context, recipientID string, amount float64, eventCount int64) (*Wallet, error)
	// DebitWallet subtracts amount, conditioned on sufficient balance at
	// write time. Returns ErrInsufficientBalance when the condition fails.
	DebitWallet(ctx context.Context, recipientID string, amount float64) (*Wallet, error)
	// GetWallet returns the wallet or ErrWalletNotFound.
	GetWallet(ctx context.Context, recipientID string) (*Wallet, error)
	// RecordEarning writes the earning transaction for an idempotency key.
	// When the key was already written recently the existing record is
	// returned instead of a duplicate.
	RecordEarning(ctx context.Context, recipientID string, amount float64, eventCount int64, key, runDate string) (*EarningTransaction, error)

	// FetchApprovedWithdrawals returns up to limit approved withdrawal
	// requests, oldest first.
	FetchApprovedWithdrawals(ctx context.Context, limit int) ([]*WithdrawalRequest, error)
	// FetchRejectedWithdrawals returns up to limit rejected requests not yet
	// swept, oldest first.
	FetchRejectedWithdrawals(ctx context.Context, limit int) ([]*WithdrawalRequest, error)
	// TryLockWithdrawal transitions approved to processing. False means the
	// request is no longer approved, usually because another run owns it.
	TryLockWithdrawal(ctx context.Context, id string) (bool, error)
	// FinalizeWithdrawal moves a processing or rejected request to a
	// terminal status and stamps ProcessedAt.
	FinalizeWithdrawal(ctx context.Context, id string, outcome WithdrawalStatus, externalTxID, reason string) error
	// IsWithdrawalSettled reports whether the request is already completed
	// or carries a rail transaction id.
	IsWithdrawalSettled(ctx context.Context, id string) (bool, error)
	// RecordWithdrawalTransaction writes the settlement record for a
	// request: idempotent by rail transaction id, updating the request's
	// still-pending record in place when one exists.
	RecordWithdrawalTransaction(ctx context.Context, tx *WithdrawalTransaction) (*WithdrawalTransaction, error)
	// FailPendingWithdrawalTransactions flips a request's still-pending
	// transaction records to failed and returns how many were flipped.
	FailPendingWithdrawalTransactions(ctx context.Context, requestID, reason string) (int64, error)

	// SaveRunLog persists the audit record of one distribution run.
	SaveRunLog(ctx context.Context, log *DistributionRunLog) error
	// RecentRunLogs returns the newest distribution run logs, newest first.
	RecentRunLogs(ctx context.Context, limit int) ([]*DistributionRunLog, error)
	// CreateNotification persists a recipient notification.
	CreateNotification(ctx context.Context, n *Notification) error
}
