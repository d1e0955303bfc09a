package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

const (
	// eventPageSize bounds one page of the unpaid-event scan.
	eventPageSize = 500
	// markChunkSize bounds the id list of one conditional update.
	markChunkSize = 500
	// walletUpdateRetries bounds the optimistic credit loop.
	walletUpdateRetries = 5
	// earningDedupWindow is how far back a duplicate idempotency key is
	// searched before a new earning transaction is written.
	earningDedupWindow = 48 * time.Hour
)

// Postgres is the gorm-backed Ledger used in deployments.
type Postgres struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgres(user, password, dbname, host string, port int, logger *logger.Logger) (*Postgres, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.AutoMigrate(
		&models.UsageEvent{},
		&models.Wallet{},
		&models.EarningTransaction{},
		&models.WithdrawalRequest{},
		&models.WithdrawalTransaction{},
		&models.DistributionRunLog{},
		&models.Notification{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &Postgres{Conn: db, logger: logger}, nil
}

func (db *Postgres) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// FetchUnpaidEvents scans every pending event in keyset pages so a run never
// misses recipients beyond the store's single-query limit.
func (db *Postgres) FetchUnpaidEvents(ctx context.Context) (map[string][]*models.UsageEvent, error) {
	grouped := make(map[string][]*models.UsageEvent)
	lastID := ""
	for {
		var page []*models.UsageEvent
		q := db.Conn.WithContext(ctx).
			Where("payment_status = ?", models.PaymentStatusPending).
			Order("id").
			Limit(eventPageSize)
		if lastID != "" {
			q = q.Where("id > ?", lastID)
		}
		if err := q.Find(&page).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch unpaid events: %w", err)
		}
		for _, ev := range page {
			grouped[ev.RecipientID] = append(grouped[ev.RecipientID], ev)
		}
		if len(page) < eventPageSize {
			return grouped, nil
		}
		lastID = page[len(page)-1].ID
	}
}

// MarkEventsPaid flips pending events to paid and reports how many rows the
// condition actually matched. Events a concurrent run already consumed do not
// count, which makes this the idempotency gate for crediting.
func (db *Postgres) MarkEventsPaid(ctx context.Context, eventIDs []string) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	var updated int64
	for start := 0; start < len(eventIDs); start += markChunkSize {
		end := start + markChunkSize
		if end > len(eventIDs) {
			end = len(eventIDs)
		}
		res := db.Conn.WithContext(ctx).Model(&models.UsageEvent{}).
			Where("id IN ? AND payment_status = ?", eventIDs[start:end], models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"payment_status": models.PaymentStatusPaid,
				"paid_at":        now,
			})
		if res.Error != nil {
			return updated, fmt.Errorf("failed to mark events paid: %w", res.Error)
		}
		updated += res.RowsAffected
	}
	return updated, nil
}

// CreditWallet adds amount using compare-and-swap on the balance the update
// started from, retrying when a concurrent writer moved it. The wallet is
// created lazily on first credit.
func (db *Postgres) CreditWallet(ctx context.Context, recipientID string, amount float64, eventCount int64) (*models.Wallet, error) {
	amount = models.RoundAmount(amount)
	if amount < 0 {
		return nil, fmt.Errorf("credit amount must not be negative, got %v", amount)
	}
	for attempt := 0; attempt < walletUpdateRetries; attempt++ {
		wallet, err := db.GetWallet(ctx, recipientID)
		if errors.Is(err, models.ErrWalletNotFound) {
			now := time.Now().UTC()
			wallet = &models.Wallet{
				RecipientID:        recipientID,
				Balance:            amount,
				TotalEarned:        amount,
				TotalEventsCounted: eventCount,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			err := db.Conn.WithContext(ctx).Create(wallet).Error
			if err == nil {
				return wallet, nil
			}
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the creation race; reload and swap instead.
				continue
			}
			return nil, fmt.Errorf("failed to create wallet: %w", err)
		}
		if err != nil {
			return nil, err
		}

		updated := &models.Wallet{
			RecipientID:        recipientID,
			Balance:            models.RoundAmount(wallet.Balance + amount),
			TotalEarned:        models.RoundAmount(wallet.TotalEarned + amount),
			TotalWithdrawn:     wallet.TotalWithdrawn,
			TotalEventsCounted: wallet.TotalEventsCounted + eventCount,
			CreatedAt:          wallet.CreatedAt,
			UpdatedAt:          time.Now().UTC(),
		}
		res := db.Conn.WithContext(ctx).Model(&models.Wallet{}).
			Where("recipient_id = ? AND balance = ?", recipientID, wallet.Balance).
			Updates(map[string]interface{}{
				"balance":              updated.Balance,
				"total_earned":         updated.TotalEarned,
				"total_events_counted": updated.TotalEventsCounted,
				"updated_at":           updated.UpdatedAt,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to credit wallet: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return updated, nil
		}
		// Balance moved between the read and the write; retry on fresh state.
	}
	return nil, fmt.Errorf("failed to credit wallet %s after %d attempts: %w",
		recipientID, walletUpdateRetries, models.ErrConcurrentUpdate)
}

// DebitWallet subtracts amount with the sufficiency condition enforced in the
// update itself, so a balance read moments earlier can never authorize an
// overdraft.
func (db *Postgres) DebitWallet(ctx context.Context, recipientID string, amount float64) (*models.Wallet, error) {
	amount = models.RoundAmount(amount)
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %v", amount)
	}
	res := db.Conn.WithContext(ctx).Model(&models.Wallet{}).
		Where("recipient_id = ? AND balance >= ?", recipientID, amount).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance - ?", amount),
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", amount),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to debit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := db.GetWallet(ctx, recipientID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit wallet %s by %v: %w",
			recipientID, amount, models.ErrInsufficientBalance)
	}
	return db.GetWallet(ctx, recipientID)
}

func (db *Postgres) GetWallet(ctx context.Context, recipientID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := db.Conn.WithContext(ctx).Where("recipient_id = ?", recipientID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// RecordEarning returns the existing transaction when the idempotency key was
// already written within the dedup window, so a retried run cannot credit the
// audit trail twice.
func (db *Postgres) RecordEarning(ctx context.Context, recipientID string, amount float64, eventCount int64, key, runDate string) (*models.EarningTransaction, error) {
	now := time.Now().UTC()
	var existing models.EarningTransaction
	err := db.Conn.WithContext(ctx).
		Where("idempotency_key = ? AND created_at >= ?", key, now.Add(-earningDedupWindow)).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up earning transaction: %w", err)
	}

	tx := &models.EarningTransaction{
		ID:             uuid.NewString(),
		RecipientID:    recipientID,
		Amount:         models.RoundAmount(amount),
		EventCount:     eventCount,
		IdempotencyKey: key,
		RunDate:        runDate,
		CreatedAt:      now,
	}
	if err := db.Conn.WithContext(ctx).Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent run won the insert; return its record.
			var winner models.EarningTransaction
			if gerr := db.Conn.WithContext(ctx).Where("idempotency_key = ?", key).First(&winner).Error; gerr == nil {
				return &winner, nil
			}
		}
		return nil, fmt.Errorf("failed to record earning transaction: %w", err)
	}
	return tx, nil
}

func (db *Postgres) FetchApprovedWithdrawals(ctx context.Context, limit int) ([]*models.WithdrawalRequest, error) {
	var requests []*models.WithdrawalRequest
	if err := db.Conn.WithContext(ctx).
		Where("status = ?", models.WithdrawalStatusApproved).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch approved withdrawals: %w", err)
	}
	return requests, nil
}

func (db *Postgres) FetchRejectedWithdrawals(ctx context.Context, limit int) ([]*models.WithdrawalRequest, error) {
	var requests []*models.WithdrawalRequest
	if err := db.Conn.WithContext(ctx).
		Where("status = ? AND processed_at IS NULL", models.WithdrawalStatusRejected).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch rejected withdrawals: %w", err)
	}
	return requests, nil
}

// TryLockWithdrawal claims a request for this run. The conditional update is
// the lock: at most one caller observes a row flip.
func (db *Postgres) TryLockWithdrawal(ctx context.Context, id string) (bool, error) {
	res := db.Conn.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, models.WithdrawalStatusApproved).
		Update("status", models.WithdrawalStatusProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("failed to lock withdrawal: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *Postgres) FinalizeWithdrawal(ctx context.Context, id string, outcome models.WithdrawalStatus, externalTxID, reason string) error {
	if !outcome.Final() {
		return fmt.Errorf("withdrawal outcome must be terminal, got %q", outcome)
	}
	updates := map[string]interface{}{
		"status":       outcome,
		"processed_at": time.Now().UTC(),
	}
	if externalTxID != "" {
		updates["external_tx_id"] = externalTxID
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	allowedFrom := []models.WithdrawalStatus{models.WithdrawalStatusProcessing}
	if outcome == models.WithdrawalStatusFailed {
		allowedFrom = append(allowedFrom, models.WithdrawalStatusRejected)
	}
	res := db.Conn.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finalize withdrawal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Conn.WithContext(ctx).Model(&models.WithdrawalRequest{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to finalize withdrawal: %w", err)
		}
		if count == 0 {
			return models.ErrWithdrawalNotFound
		}
		return fmt.Errorf("withdrawal %s is not in a finalizable state", id)
	}
	return nil
}

func (db *Postgres) IsWithdrawalSettled(ctx context.Context, id string) (bool, error) {
	var request models.WithdrawalRequest
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, models.ErrWithdrawalNotFound
		}
		return false, fmt.Errorf("failed to load withdrawal: %w", err)
	}
	return request.Status == models.WithdrawalStatusCompleted || request.ExternalTxID != "", nil
}

// RecordWithdrawalTransaction settles the transaction record for a request.
// A record carrying the same rail transaction id is returned as-is; a
// still-pending record for the request is updated in place; otherwise a new
// record is created.
func (db *Postgres) RecordWithdrawalTransaction(ctx context.Context, tx *models.WithdrawalTransaction) (*models.WithdrawalTransaction, error) {
	if tx.ExternalTxID != "" {
		var existing models.WithdrawalTransaction
		err := db.Conn.WithContext(ctx).Where("external_tx_id = ?", tx.ExternalTxID).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up withdrawal transaction: %w", err)
		}
	}

	var pending models.WithdrawalTransaction
	err := db.Conn.WithContext(ctx).
		Where("request_id = ? AND status = ?", tx.RequestID, models.TransactionStatusPending).
		First(&pending).Error
	if err == nil {
		res := db.Conn.WithContext(ctx).Model(&models.WithdrawalTransaction{}).
			Where("id = ? AND status = ?", pending.ID, models.TransactionStatusPending).
			Updates(map[string]interface{}{
				"status":         tx.Status,
				"external_tx_id": tx.ExternalTxID,
				"fee":            tx.Fee,
				"reason":         tx.Reason,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to settle withdrawal transaction: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			pending.Status = tx.Status
			pending.ExternalTxID = tx.ExternalTxID
			pending.Fee = tx.Fee
			pending.Reason = tx.Reason
			return &pending, nil
		}
		// The pending record settled under us; fall through and create.
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up withdrawal transaction: %w", err)
	}

	created := *tx
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	created.Amount = models.RoundAmount(created.Amount)
	if err := db.Conn.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, fmt.Errorf("failed to record withdrawal transaction: %w", err)
	}
	return &created, nil
}

func (db *Postgres) FailPendingWithdrawalTransactions(ctx context.Context, requestID, reason string) (int64, error) {
	res := db.Conn.WithContext(ctx).Model(&models.WithdrawalTransaction{}).
		Where("request_id = ? AND status = ?", requestID, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status": models.TransactionStatusFailed,
			"reason": reason,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to fail pending withdrawal transactions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *Postgres) SaveRunLog(ctx context.Context, runLog *models.DistributionRunLog) error {
	if runLog.ID == "" {
		runLog.ID = uuid.NewString()
	}
	if runLog.CreatedAt.IsZero() {
		runLog.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.WithContext(ctx).Create(runLog).Error; err != nil {
		return fmt.Errorf("failed to save distribution run log: %w", err)
	}
	return nil
}

func (db *Postgres) RecentRunLogs(ctx context.Context, limit int) ([]*models.DistributionRunLog, error) {
	var logs []*models.DistributionRunLog
	if err := db.Conn.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list distribution run logs: %w", err)
	}
	return logs, nil
}

func (db *Postgres) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
