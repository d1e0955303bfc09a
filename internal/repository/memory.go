package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
)

// Memory is an in-memory Ledger for tests. It holds one mutex across all
// collections and hands out copies, so callers can never mutate stored state
// behind its back.
type Memory struct {
	mu sync.Mutex

	events        map[string]*models.UsageEvent
	wallets       map[string]*models.Wallet
	earnings      map[string]*models.EarningTransaction
	withdrawals   map[string]*models.WithdrawalRequest
	transactions  map[string]*models.WithdrawalTransaction
	runLogs       []*models.DistributionRunLog
	notifications []*models.Notification
}

func NewMemory() *Memory {
	return &Memory{
		events:       make(map[string]*models.UsageEvent),
		wallets:      make(map[string]*models.Wallet),
		earnings:     make(map[string]*models.EarningTransaction),
		withdrawals:  make(map[string]*models.WithdrawalRequest),
		transactions: make(map[string]*models.WithdrawalTransaction),
	}
}

func (m *Memory) FetchUnpaidEvents(ctx context.Context) (map[string][]*models.UsageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grouped := make(map[string][]*models.UsageEvent)
	for _, ev := range m.events {
		if ev.PaymentStatus != models.PaymentStatusPending {
			continue
		}
		cp := *ev
		grouped[ev.RecipientID] = append(grouped[ev.RecipientID], &cp)
	}
	for _, batch := range grouped {
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
	}
	return grouped, nil
}

func (m *Memory) MarkEventsPaid(ctx context.Context, eventIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var updated int64
	for _, id := range eventIDs {
		ev, ok := m.events[id]
		if !ok || ev.PaymentStatus != models.PaymentStatusPending {
			continue
		}
		ev.PaymentStatus = models.PaymentStatusPaid
		paidAt := now
		ev.PaidAt = &paidAt
		updated++
	}
	return updated, nil
}

func (m *Memory) CreditWallet(ctx context.Context, recipientID string, amount float64, eventCount int64) (*models.Wallet, error) {
	amount = models.RoundAmount(amount)
	if amount < 0 {
		return nil, fmt.Errorf("credit amount must not be negative, got %v", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	wallet, ok := m.wallets[recipientID]
	if !ok {
		wallet = &models.Wallet{
			RecipientID:        recipientID,
			Balance:            amount,
			TotalEarned:        amount,
			TotalEventsCounted: eventCount,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		m.wallets[recipientID] = wallet
	} else {
		wallet.Balance = models.RoundAmount(wallet.Balance + amount)
		wallet.TotalEarned = models.RoundAmount(wallet.TotalEarned + amount)
		wallet.TotalEventsCounted += eventCount
		wallet.UpdatedAt = now
	}
	cp := *wallet
	return &cp, nil
}

func (m *Memory) DebitWallet(ctx context.Context, recipientID string, amount float64) (*models.Wallet, error) {
	amount = models.RoundAmount(amount)
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %v", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[recipientID]
	if !ok {
		return nil, models.ErrWalletNotFound
	}
	if wallet.Balance < amount {
		return nil, fmt.Errorf("failed to debit wallet %s by %v: %w",
			recipientID, amount, models.ErrInsufficientBalance)
	}
	wallet.Balance = models.RoundAmount(wallet.Balance - amount)
	wallet.TotalWithdrawn = models.RoundAmount(wallet.TotalWithdrawn + amount)
	wallet.UpdatedAt = time.Now().UTC()
	cp := *wallet
	return &cp, nil
}

func (m *Memory) GetWallet(ctx context.Context, recipientID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[recipientID]
	if !ok {
		return nil, models.ErrWalletNotFound
	}
	cp := *wallet
	return &cp, nil
}

func (m *Memory) RecordEarning(ctx context.Context, recipientID string, amount float64, eventCount int64, key, runDate string) (*models.EarningTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.earnings[key]; ok {
		cp := *existing
		return &cp, nil
	}
	tx := &models.EarningTransaction{
		ID:             uuid.NewString(),
		RecipientID:    recipientID,
		Amount:         models.RoundAmount(amount),
		EventCount:     eventCount,
		IdempotencyKey: key,
		RunDate:        runDate,
		CreatedAt:      time.Now().UTC(),
	}
	m.earnings[key] = tx
	cp := *tx
	return &cp, nil
}

func (m *Memory) FetchApprovedWithdrawals(ctx context.Context, limit int) ([]*models.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterWithdrawals(limit, func(wr *models.WithdrawalRequest) bool {
		return wr.Status == models.WithdrawalStatusApproved
	}), nil
}

func (m *Memory) FetchRejectedWithdrawals(ctx context.Context, limit int) ([]*models.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterWithdrawals(limit, func(wr *models.WithdrawalRequest) bool {
		return wr.Status == models.WithdrawalStatusRejected && wr.ProcessedAt == nil
	}), nil
}

// filterWithdrawals expects m.mu held.
func (m *Memory) filterWithdrawals(limit int, keep func(*models.WithdrawalRequest) bool) []*models.WithdrawalRequest {
	var out []*models.WithdrawalRequest
	for _, wr := range m.withdrawals {
		if keep(wr) {
			cp := *wr
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) TryLockWithdrawal(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wr, ok := m.withdrawals[id]
	if !ok || wr.Status != models.WithdrawalStatusApproved {
		return false, nil
	}
	wr.Status = models.WithdrawalStatusProcessing
	return true, nil
}

func (m *Memory) FinalizeWithdrawal(ctx context.Context, id string, outcome models.WithdrawalStatus, externalTxID, reason string) error {
	if !outcome.Final() {
		return fmt.Errorf("withdrawal outcome must be terminal, got %q", outcome)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wr, ok := m.withdrawals[id]
	if !ok {
		return models.ErrWithdrawalNotFound
	}
	if !wr.Status.CanTransition(outcome) {
		return fmt.Errorf("withdrawal %s is not in a finalizable state", id)
	}
	wr.Status = outcome
	if externalTxID != "" {
		wr.ExternalTxID = externalTxID
	}
	if reason != "" {
		wr.FailureReason = reason
	}
	processedAt := time.Now().UTC()
	wr.ProcessedAt = &processedAt
	return nil
}

func (m *Memory) IsWithdrawalSettled(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wr, ok := m.withdrawals[id]
	if !ok {
		return false, models.ErrWithdrawalNotFound
	}
	return wr.Status == models.WithdrawalStatusCompleted || wr.ExternalTxID != "", nil
}

func (m *Memory) RecordWithdrawalTransaction(ctx context.Context, tx *models.WithdrawalTransaction) (*models.WithdrawalTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ExternalTxID != "" {
		for _, existing := range m.transactions {
			if existing.ExternalTxID == tx.ExternalTxID {
				cp := *existing
				return &cp, nil
			}
		}
	}
	for _, existing := range m.transactions {
		if existing.RequestID == tx.RequestID && existing.Status == models.TransactionStatusPending {
			existing.Status = tx.Status
			existing.ExternalTxID = tx.ExternalTxID
			existing.Fee = tx.Fee
			existing.Reason = tx.Reason
			cp := *existing
			return &cp, nil
		}
	}
	created := *tx
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	created.Amount = models.RoundAmount(created.Amount)
	m.transactions[created.ID] = &created
	cp := created
	return &cp, nil
}

func (m *Memory) FailPendingWithdrawalTransactions(ctx context.Context, requestID, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for _, tx := range m.transactions {
		if tx.RequestID == requestID && tx.Status == models.TransactionStatusPending {
			tx.Status = models.TransactionStatusFailed
			tx.Reason = reason
			updated++
		}
	}
	return updated, nil
}

func (m *Memory) SaveRunLog(ctx context.Context, runLog *models.DistributionRunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *runLog
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.runLogs = append(m.runLogs, &cp)
	return nil
}

func (m *Memory) RecentRunLogs(ctx context.Context, limit int) ([]*models.DistributionRunLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DistributionRunLog, 0, len(m.runLogs))
	for _, l := range m.runLogs {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.notifications = append(m.notifications, &cp)
	return nil
}

// AddUsageEvent seeds an event. Zero status defaults to pending.
func (m *Memory) AddUsageEvent(ev models.UsageEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.PaymentStatus == "" {
		ev.PaymentStatus = models.PaymentStatusPending
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	m.events[ev.ID] = &ev
}

// AddWithdrawalRequest seeds a withdrawal request.
func (m *Memory) AddWithdrawalRequest(wr models.WithdrawalRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wr.ID == "" {
		wr.ID = uuid.NewString()
	}
	if wr.Status == "" {
		wr.Status = models.WithdrawalStatusPending
	}
	if wr.CreatedAt.IsZero() {
		wr.CreatedAt = time.Now().UTC()
	}
	m.withdrawals[wr.ID] = &wr
}

// PutWallet seeds a wallet, replacing any existing one.
func (m *Memory) PutWallet(w models.Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.RecipientID] = &w
}

// Event returns a copy of the stored event, or nil.
func (m *Memory) Event(id string) *models.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil
	}
	cp := *ev
	return &cp
}

// Withdrawal returns a copy of the stored request, or nil.
func (m *Memory) Withdrawal(id string) *models.WithdrawalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	wr, ok := m.withdrawals[id]
	if !ok {
		return nil
	}
	cp := *wr
	return &cp
}

// WithdrawalTransactions returns copies of the request's transaction records,
// oldest first.
func (m *Memory) WithdrawalTransactions(requestID string) []*models.WithdrawalTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.WithdrawalTransaction
	for _, tx := range m.transactions {
		if tx.RequestID == requestID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Earnings returns copies of every earning transaction, keyed order not
// guaranteed.
func (m *Memory) Earnings() []*models.EarningTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.EarningTransaction, 0, len(m.earnings))
	for _, tx := range m.earnings {
		cp := *tx
		out = append(out, &cp)
	}
	return out
}

// Notifications returns copies of every stored notification in insert order.
func (m *Memory) Notifications() []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		cp := *n
		out = append(out, &cp)
	}
	return out
}

var _ models.Ledger = (*Postgres)(nil)
var _ models.Ledger = (*Memory)(nil)
