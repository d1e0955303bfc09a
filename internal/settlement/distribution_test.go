package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/config"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/repository"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/validation"
)

var runBase = time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)

func testAddr(t *testing.T, body string) string {
	t.Helper()
	addr, err := validation.FormatAddress(validation.PrefixTest, strings.Repeat(body, 20))
	if err != nil {
		t.Fatalf("FormatAddress: %v", err)
	}
	return addr
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RailNetwork:          config.NetworkTest,
		FundingAddress:       testAddr(t, "aa"),
		MaxRecipientsPerRun:  500,
		MaxWithdrawalsPerRun: 100,
		RunInterval:          time.Minute,
		RunTimeBudget:        time.Minute,
	}
}

// paymentOutcome scripts one SubmitPayment call.
type paymentOutcome struct {
	receipt *models.PaymentReceipt
	err     error
}

// stubRail is a scripted models.Rail. With an empty script every payment
// succeeds with a generated transaction id.
type stubRail struct {
	balance    float64
	balanceErr error
	missing    map[string]bool
	script     []paymentOutcome
	payments   []models.Payment
}

func (r *stubRail) ValidateAddress(addr string) error {
	return validation.ValidateAddress(addr)
}

func (r *stubRail) AccountExists(ctx context.Context, addr string) (bool, error) {
	if r.missing[validation.NormalizeAddress(addr)] {
		return false, nil
	}
	return true, nil
}

func (r *stubRail) GetBalance(ctx context.Context, addr string) (float64, error) {
	if r.balanceErr != nil {
		return 0, r.balanceErr
	}
	return r.balance, nil
}

func (r *stubRail) SubmitPayment(ctx context.Context, p models.Payment) (*models.PaymentReceipt, error) {
	r.payments = append(r.payments, p)
	if len(r.script) > 0 {
		next := r.script[0]
		r.script = r.script[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.receipt, nil
	}
	return &models.PaymentReceipt{
		ExternalTxID: fmt.Sprintf("tx-%d", len(r.payments)),
		FeeCharged:   0.001,
		Attempts:     1,
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// recordingNotifier captures recipient notifications and operator alerts.
type recordingNotifier struct {
	notifications []*models.Notification
	alerts        []string
}

func (n *recordingNotifier) NotifyRecipient(ctx context.Context, notification *models.Notification) {
	n.notifications = append(n.notifications, notification)
}

func (n *recordingNotifier) AlertOperator(ctx context.Context, subject, message string) {
	n.alerts = append(n.alerts, subject)
}

func (n *recordingNotifier) hasAlert(subject string) bool {
	for _, a := range n.alerts {
		if a == subject {
			return true
		}
	}
	return false
}

func seedEvents(store *repository.Memory, recipientID string, n int, at time.Time) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-ev-%03d", recipientID, i)
		ids[i] = id
		store.AddUsageEvent(models.UsageEvent{
			ID:          id,
			RecipientID: recipientID,
			ContentID:   "content-1",
			CreatedAt:   at.Add(time.Duration(i) * time.Second),
		})
	}
	return ids
}

// staleFetchLedger serves a fixed snapshot of pending events, the way a run
// sees the world while a concurrent run is claiming the same events.
type staleFetchLedger struct {
	models.Ledger
	snapshot map[string][]*models.UsageEvent
}

func (l *staleFetchLedger) FetchUnpaidEvents(ctx context.Context) (map[string][]*models.UsageEvent, error) {
	return l.snapshot, nil
}

type failingCreditLedger struct {
	models.Ledger
}

func (l *failingCreditLedger) CreditWallet(ctx context.Context, recipientID string, amount float64, eventCount int64) (*models.Wallet, error) {
	return nil, errors.New("store offline")
}

func newTestDistribution(store models.Ledger, r models.Rail, notify models.NotificationService, cfg *config.Config) *Distribution {
	d := NewDistribution(store, r, notify, logger.NewNop(), cfg)
	d.now = func() time.Time { return runBase }
	return d
}

func TestDistributionSplitsPoolAcrossRecipients(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedEvents(store, "alice", 30, runBase.Add(-2*time.Hour))
	seedEvents(store, "bob", 70, runBase.Add(-time.Hour))
	railStub := &stubRail{balance: 100}
	notify := &recordingNotifier{}
	d := newTestDistribution(store, railStub, notify, testConfig(t))

	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalEvents != 100 || res.Rate != 1 || res.Pool != 100 {
		t.Fatalf("unexpected run parameters: %+v", res)
	}
	if res.RecipientsPaid != 2 || res.RecipientFailures != 0 || res.TotalDistributed != 100 {
		t.Fatalf("unexpected run outcome: %+v", res)
	}

	alice, err := store.GetWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("GetWallet(alice): %v", err)
	}
	if alice.Balance != 30 || alice.TotalEarned != 30 || alice.TotalEventsCounted != 30 {
		t.Fatalf("unexpected alice wallet: %+v", alice)
	}
	bob, err := store.GetWallet(ctx, "bob")
	if err != nil {
		t.Fatalf("GetWallet(bob): %v", err)
	}
	if bob.Balance != 70 {
		t.Fatalf("expected bob balance 70, got %v", bob.Balance)
	}

	grouped, err := store.FetchUnpaidEvents(ctx)
	if err != nil {
		t.Fatalf("FetchUnpaidEvents: %v", err)
	}
	if len(grouped) != 0 {
		t.Fatalf("expected no pending events left, got %d recipients", len(grouped))
	}

	earnings := store.Earnings()
	if len(earnings) != 2 {
		t.Fatalf("expected 2 earning transactions, got %d", len(earnings))
	}
	for _, tx := range earnings {
		if tx.IdempotencyKey != models.EarningKey("2026-08-20", tx.RecipientID) {
			t.Fatalf("unexpected idempotency key %q", tx.IdempotencyKey)
		}
	}

	logs, err := store.RecentRunLogs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRunLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 run log, got %d", len(logs))
	}
	if logs[0].Rate != 1 || logs[0].TotalEvents != 100 || logs[0].RecipientsPaid != 2 || logs[0].TotalDistributed != 100 {
		t.Fatalf("unexpected run log: %+v", logs[0])
	}

	if len(notify.notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notify.notifications))
	}
	for _, n := range notify.notifications {
		if n.Kind != models.NotificationKindEarning {
			t.Fatalf("expected earning notification, got %s", n.Kind)
		}
	}
}

func TestDistributionPoolAtFloorLeavesEventsPending(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedEvents(store, "alice", 10, runBase.Add(-time.Hour))
	cfg := testConfig(t)
	cfg.ReserveFloor = 100
	d := newTestDistribution(store, &stubRail{balance: 100}, &recordingNotifier{}, cfg)

	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Pool != 0 || res.Rate != 0 || res.RecipientsPaid != 0 {
		t.Fatalf("expected a zero run, got %+v", res)
	}

	grouped, _ := store.FetchUnpaidEvents(ctx)
	if len(grouped["alice"]) != 10 {
		t.Fatalf("expected all events to stay pending, got %d", len(grouped["alice"]))
	}
	if _, err := store.GetWallet(ctx, "alice"); !errors.Is(err, models.ErrWalletNotFound) {
		t.Fatalf("expected no wallet to be created, got %v", err)
	}
	if logs, _ := store.RecentRunLogs(ctx, 10); len(logs) != 0 {
		t.Fatalf("expected no run log for a zero run, got %d", len(logs))
	}
}

func TestDistributionRerunCreditsNothing(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedEvents(store, "alice", 30, runBase.Add(-2*time.Hour))
	seedEvents(store, "bob", 70, runBase.Add(-time.Hour))
	d := newTestDistribution(store, &stubRail{balance: 100}, &recordingNotifier{}, testConfig(t))

	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.TotalEvents != 0 || res.RecipientsPaid != 0 || res.TotalDistributed != 0 {
		t.Fatalf("expected a zero second run, got %+v", res)
	}

	alice, _ := store.GetWallet(ctx, "alice")
	bob, _ := store.GetWallet(ctx, "bob")
	if alice.Balance != 30 || bob.Balance != 70 {
		t.Fatalf("expected balances unchanged, got %v and %v", alice.Balance, bob.Balance)
	}
	if len(store.Earnings()) != 2 {
		t.Fatalf("expected 2 earning transactions after rerun, got %d", len(store.Earnings()))
	}
	if logs, _ := store.RecentRunLogs(ctx, 10); len(logs) != 1 {
		t.Fatalf("expected 1 run log after rerun, got %d", len(logs))
	}
}

func TestDistributionSkipsBatchClaimedByConcurrentRun(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	aliceIDs := seedEvents(store, "alice", 30, runBase.Add(-2*time.Hour))
	seedEvents(store, "bob", 70, runBase.Add(-time.Hour))

	snapshot, err := store.FetchUnpaidEvents(ctx)
	if err != nil {
		t.Fatalf("FetchUnpaidEvents: %v", err)
	}
	// Another run claims alice's whole batch between the fetch and the mark.
	if _, err := store.MarkEventsPaid(ctx, aliceIDs); err != nil {
		t.Fatalf("MarkEventsPaid: %v", err)
	}

	d := newTestDistribution(&staleFetchLedger{Ledger: store, snapshot: snapshot},
		&stubRail{balance: 100}, &recordingNotifier{}, testConfig(t))
	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rate != 1 {
		t.Fatalf("expected rate from the global snapshot, got %v", res.Rate)
	}
	if res.RecipientsPaid != 1 || res.RecipientsSkipped != 1 || res.TotalDistributed != 70 {
		t.Fatalf("unexpected outcome: %+v", res)
	}
	if _, err := store.GetWallet(ctx, "alice"); !errors.Is(err, models.ErrWalletNotFound) {
		t.Fatalf("expected alice to not be credited here, got %v", err)
	}
	bob, _ := store.GetWallet(ctx, "bob")
	if bob.Balance != 70 {
		t.Fatalf("expected bob balance 70, got %v", bob.Balance)
	}
}

func TestDistributionCreditsOnlyEventsItClaimed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	ids := seedEvents(store, "alice", 10, runBase.Add(-time.Hour))

	snapshot, err := store.FetchUnpaidEvents(ctx)
	if err != nil {
		t.Fatalf("FetchUnpaidEvents: %v", err)
	}
	// Another run claims 4 of the 10 events first.
	if _, err := store.MarkEventsPaid(ctx, ids[:4]); err != nil {
		t.Fatalf("MarkEventsPaid: %v", err)
	}

	d := newTestDistribution(&staleFetchLedger{Ledger: store, snapshot: snapshot},
		&stubRail{balance: 10}, &recordingNotifier{}, testConfig(t))
	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rate != 1 || res.RecipientsPaid != 1 || res.TotalDistributed != 6 {
		t.Fatalf("expected 6 credited at rate 1, got %+v", res)
	}
	alice, _ := store.GetWallet(ctx, "alice")
	if alice.Balance != 6 || alice.TotalEventsCounted != 6 {
		t.Fatalf("expected credit for the 6 claimed events only, got %+v", alice)
	}
}

func TestDistributionCreditFailureRaisesAlert(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	ids := seedEvents(store, "alice", 10, runBase.Add(-time.Hour))
	notify := &recordingNotifier{}
	d := newTestDistribution(&failingCreditLedger{Ledger: store},
		&stubRail{balance: 10}, notify, testConfig(t))

	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RecipientFailures != 1 || res.RecipientsPaid != 0 {
		t.Fatalf("expected one recipient failure, got %+v", res)
	}
	if !notify.hasAlert("distribution credit failed") {
		t.Fatalf("expected an operator alert, got %v", notify.alerts)
	}
	// The claim is never rolled back; the hazard is reconciled manually.
	if got := store.Event(ids[0]).PaymentStatus; got != models.PaymentStatusPaid {
		t.Fatalf("expected claimed events to stay paid, got %s", got)
	}
	if len(store.Earnings()) != 0 {
		t.Fatal("expected no earning transaction for a failed credit")
	}
	if logs, _ := store.RecentRunLogs(ctx, 10); len(logs) != 0 {
		t.Fatal("expected no run log when nothing was paid")
	}
}

func TestDistributionRecipientCapKeepsGlobalRate(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedEvents(store, "alice", 10, runBase.Add(-3*time.Hour))
	seedEvents(store, "bob", 10, runBase.Add(-2*time.Hour))
	seedEvents(store, "carol", 10, runBase.Add(-time.Hour))
	cfg := testConfig(t)
	cfg.MaxRecipientsPerRun = 2
	d := newTestDistribution(store, &stubRail{balance: 30}, &recordingNotifier{}, cfg)

	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The rate divides by all 30 pending events even though only 20 get paid
	// this run; carol's batch keeps its value for the next one.
	if res.Rate != 1 || res.RecipientsSelected != 2 || res.RecipientsPaid != 2 {
		t.Fatalf("unexpected outcome: %+v", res)
	}
	alice, _ := store.GetWallet(ctx, "alice")
	bob, _ := store.GetWallet(ctx, "bob")
	if alice.Balance != 10 || bob.Balance != 10 {
		t.Fatalf("expected 10 each at the global rate, got %v and %v", alice.Balance, bob.Balance)
	}
	if _, err := store.GetWallet(ctx, "carol"); !errors.Is(err, models.ErrWalletNotFound) {
		t.Fatalf("expected carol deferred to the next run, got %v", err)
	}
	grouped, _ := store.FetchUnpaidEvents(ctx)
	if len(grouped["carol"]) != 10 {
		t.Fatalf("expected carol's events to stay pending, got %d", len(grouped["carol"]))
	}
}

func TestDistributionStopsWhenBudgetExpired(t *testing.T) {
	store := repository.NewMemory()
	seedEvents(store, "alice", 10, runBase.Add(-time.Hour))
	d := newTestDistribution(store, &stubRail{balance: 10}, &recordingNotifier{}, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RecipientsPaid != 0 {
		t.Fatalf("expected no recipients started after expiry, got %+v", res)
	}
	grouped, _ := store.FetchUnpaidEvents(context.Background())
	if len(grouped["alice"]) != 10 {
		t.Fatalf("expected events untouched, got %d pending", len(grouped["alice"]))
	}
}

func TestDistributionAbortsWhenFundingUnreadable(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedEvents(store, "alice", 10, runBase.Add(-time.Hour))
	d := newTestDistribution(store,
		&stubRail{balanceErr: errors.New("gateway down")}, &recordingNotifier{}, testConfig(t))

	if _, err := d.Run(ctx); err == nil {
		t.Fatal("expected run to abort when the funding balance is unreadable")
	}
	grouped, _ := store.FetchUnpaidEvents(ctx)
	if len(grouped["alice"]) != 10 {
		t.Fatalf("expected events untouched, got %d pending", len(grouped["alice"]))
	}
}
