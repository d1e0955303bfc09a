package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/config"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

// WithdrawalResult summarizes one settlement pass over approved requests.
type WithdrawalResult struct {
	Completed int64
	Failed    int64
	Skipped   int64
	// ItemFailures counts requests left in a state that needs manual
	// reconciliation, paid but not finalized or not debited.
	ItemFailures int64
}

// SweepResult summarizes one pass over rejected requests.
type SweepResult struct {
	Swept        int64
	ItemFailures int64
}

// WithdrawalEngine pays out approved withdrawal requests and sweeps rejected
// ones to their terminal state. The ledger debit happens strictly after the
// rail confirmed the payment; there are no compensating refunds to get wrong.
type WithdrawalEngine struct {
	logger *logger.Logger
	config *config.Config

	ledger models.Ledger
	rail   models.Rail
	notify models.NotificationService
}

// NewWithdrawalEngine creates a new WithdrawalEngine instance.
func NewWithdrawalEngine(
	ledger models.Ledger,
	rail models.Rail,
	notify models.NotificationService,
	logger *logger.Logger,
	config *config.Config,
) *WithdrawalEngine {
	return &WithdrawalEngine{
		ledger: ledger,
		rail:   rail,
		notify: notify,
		logger: logger,
		config: config,
	}
}

// Run settles approved withdrawal requests, oldest first. A failure on one
// request finalizes that request and moves on; only failing to list the
// queue aborts the pass.
func (e *WithdrawalEngine) Run(ctx context.Context) (*WithdrawalResult, error) {
	res := &WithdrawalResult{}

	requests, err := e.ledger.FetchApprovedWithdrawals(ctx, e.config.MaxWithdrawalsPerRun)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved withdrawals: %w", err)
	}
	if len(requests) == 0 {
		return res, nil
	}

	for _, wr := range requests {
		if ctx.Err() != nil {
			e.logger.Warnw("run budget exhausted, stopping withdrawal settlement",
				"completed", res.Completed, "failed", res.Failed)
			break
		}
		e.settle(ctx, wr, res)
	}

	e.logger.Infow("withdrawal settlement finished",
		"completed", res.Completed,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"item_failures", res.ItemFailures,
	)
	return res, nil
}

// settle drives one request through precheck, payment, finalize and debit.
// Every early exit after the lock lands the request in a terminal state; only
// a confirmed payment whose bookkeeping failed is left for the operator.
func (e *WithdrawalEngine) settle(ctx context.Context, wr *models.WithdrawalRequest, res *WithdrawalResult) {
	settled, err := e.ledger.IsWithdrawalSettled(ctx, wr.ID)
	if err != nil {
		e.logger.Errorw("failed to check withdrawal state", "withdrawal_id", wr.ID, "error", err)
		res.ItemFailures++
		return
	}
	if settled {
		e.logger.Debugw("withdrawal already settled", "withdrawal_id", wr.ID)
		res.Skipped++
		return
	}

	locked, err := e.ledger.TryLockWithdrawal(ctx, wr.ID)
	if err != nil {
		e.logger.Errorw("failed to lock withdrawal", "withdrawal_id", wr.ID, "error", err)
		res.ItemFailures++
		return
	}
	if !locked {
		e.logger.Debugw("withdrawal claimed by another run", "withdrawal_id", wr.ID)
		res.Skipped++
		return
	}

	if err := e.rail.ValidateAddress(wr.Destination); err != nil {
		e.fail(ctx, wr, fmt.Sprintf("invalid destination: %v", err), res)
		return
	}
	exists, err := e.rail.AccountExists(ctx, wr.Destination)
	if err != nil {
		e.fail(ctx, wr, fmt.Sprintf("destination lookup failed: %v", err), res)
		return
	}
	if !exists {
		e.fail(ctx, wr, "destination account does not exist", res)
		return
	}

	var balance float64
	wallet, err := e.ledger.GetWallet(ctx, wr.RecipientID)
	switch {
	case err == nil:
		balance = wallet.Balance
	case errors.Is(err, models.ErrWalletNotFound):
		// No wallet means nothing was ever earned; treated as zero.
	default:
		e.fail(ctx, wr, fmt.Sprintf("wallet lookup failed: %v", err), res)
		return
	}
	if balance < wr.Amount {
		e.fail(ctx, wr, fmt.Sprintf("insufficient balance: have %s, need %s",
			models.FormatAmount(balance), models.FormatAmount(wr.Amount)), res)
		return
	}

	funding, err := e.rail.GetBalance(ctx, e.config.FundingAddress)
	if err != nil {
		e.fail(ctx, wr, fmt.Sprintf("funding balance check failed: %v", err), res)
		return
	}
	if need := wr.Amount + e.config.FeeReserve; funding < need {
		e.fail(ctx, wr, fmt.Sprintf("funding account holds %s, payout needs %s",
			models.FormatAmount(funding), models.FormatAmount(need)), res)
		return
	}

	receipt, err := e.rail.SubmitPayment(ctx, models.Payment{
		Destination:    wr.Destination,
		Amount:         wr.Amount,
		Memo:           fmt.Sprintf("wd-%.8s", wr.ID),
		IdempotencyKey: wr.ID,
	})
	if err != nil {
		e.fail(ctx, wr, fmt.Sprintf("payment failed: %v", err), res)
		return
	}

	if err := e.ledger.FinalizeWithdrawal(ctx, wr.ID, models.WithdrawalStatusCompleted, receipt.ExternalTxID, ""); err != nil {
		e.logger.Errorw("withdrawal paid but not finalized",
			"withdrawal_id", wr.ID, "external_tx_id", receipt.ExternalTxID, "error", err)
		e.notify.AlertOperator(ctx, "withdrawal paid but not finalized",
			fmt.Sprintf("withdrawal %s was paid as %s but finalize failed: %v; reconcile manually",
				wr.ID, receipt.ExternalTxID, err))
		res.ItemFailures++
		return
	}

	if _, err := e.ledger.DebitWallet(ctx, wr.RecipientID, wr.Amount); err != nil {
		e.logger.Errorw("withdrawal paid but wallet not debited",
			"withdrawal_id", wr.ID,
			"recipient_id", wr.RecipientID,
			"amount", wr.Amount,
			"error", err,
		)
		e.notify.AlertOperator(ctx, "withdrawal paid but wallet not debited",
			fmt.Sprintf("withdrawal %s for %s was paid but the debit of %s failed: %v; reconcile manually",
				wr.ID, wr.RecipientID, models.FormatAmount(wr.Amount), err))
		res.ItemFailures++
		// The payout itself settled; fall through to the records.
	}

	if _, err := e.ledger.RecordWithdrawalTransaction(ctx, &models.WithdrawalTransaction{
		RequestID:    wr.ID,
		RecipientID:  wr.RecipientID,
		Destination:  wr.Destination,
		Amount:       wr.Amount,
		Fee:          receipt.FeeCharged,
		ExternalTxID: receipt.ExternalTxID,
		Status:       models.TransactionStatusCompleted,
	}); err != nil {
		e.logger.Errorw("failed to record withdrawal transaction", "withdrawal_id", wr.ID, "error", err)
	}

	e.notify.NotifyRecipient(ctx, &models.Notification{
		RecipientID: wr.RecipientID,
		Kind:        models.NotificationKindWithdrawalCompleted,
		Message:     fmt.Sprintf("Your withdrawal of %s was sent.", models.FormatAmount(wr.Amount)),
		Amount:      wr.Amount,
	})

	e.logger.Infow("withdrawal completed",
		"withdrawal_id", wr.ID,
		"recipient_id", wr.RecipientID,
		"amount", wr.Amount,
		"external_tx_id", receipt.ExternalTxID,
		"attempts", receipt.Attempts,
	)
	res.Completed++
}

// fail finalizes a locked request as failed with the given reason. When even
// the finalize fails, the request stays processing for the operator instead
// of being miscounted as settled.
func (e *WithdrawalEngine) fail(ctx context.Context, wr *models.WithdrawalRequest, reason string, res *WithdrawalResult) {
	e.logger.Warnw("withdrawal failed",
		"withdrawal_id", wr.ID, "recipient_id", wr.RecipientID, "reason", reason)

	if err := e.ledger.FinalizeWithdrawal(ctx, wr.ID, models.WithdrawalStatusFailed, "", reason); err != nil {
		e.logger.Errorw("failed to finalize failed withdrawal", "withdrawal_id", wr.ID, "error", err)
		res.ItemFailures++
		return
	}

	if _, err := e.ledger.RecordWithdrawalTransaction(ctx, &models.WithdrawalTransaction{
		RequestID:   wr.ID,
		RecipientID: wr.RecipientID,
		Destination: wr.Destination,
		Amount:      wr.Amount,
		Status:      models.TransactionStatusFailed,
		Reason:      reason,
	}); err != nil {
		e.logger.Errorw("failed to record withdrawal transaction", "withdrawal_id", wr.ID, "error", err)
	}

	e.notify.NotifyRecipient(ctx, &models.Notification{
		RecipientID: wr.RecipientID,
		Kind:        models.NotificationKindWithdrawalFailed,
		Message: fmt.Sprintf("Your withdrawal of %s could not be completed: %s",
			models.FormatAmount(wr.Amount), reason),
		Amount: wr.Amount,
	})
	res.Failed++
}

// SweepRejected finalizes rejected requests that have not been swept yet:
// their still-pending transaction records flip to failed and the request
// reaches its terminal state. No recipient notification is sent; the
// rejection was communicated when it was decided.
func (e *WithdrawalEngine) SweepRejected(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}

	requests, err := e.ledger.FetchRejectedWithdrawals(ctx, e.config.MaxWithdrawalsPerRun)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected withdrawals: %w", err)
	}

	for _, wr := range requests {
		if ctx.Err() != nil {
			e.logger.Warnw("run budget exhausted, stopping rejected sweep", "swept", res.Swept)
			break
		}
		if _, err := e.ledger.FailPendingWithdrawalTransactions(ctx, wr.ID, "withdrawal rejected"); err != nil {
			e.logger.Errorw("failed to fail pending transactions", "withdrawal_id", wr.ID, "error", err)
			res.ItemFailures++
			continue
		}
		if err := e.ledger.FinalizeWithdrawal(ctx, wr.ID, models.WithdrawalStatusFailed, "", "rejected by review"); err != nil {
			e.logger.Errorw("failed to sweep rejected withdrawal", "withdrawal_id", wr.ID, "error", err)
			res.ItemFailures++
			continue
		}
		res.Swept++
	}

	if res.Swept > 0 || res.ItemFailures > 0 {
		e.logger.Infow("rejected sweep finished", "swept", res.Swept, "item_failures", res.ItemFailures)
	}
	return res, nil
}
