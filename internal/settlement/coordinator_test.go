package settlement

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/repository"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

type panickyLedger struct {
	models.Ledger
}

func (l *panickyLedger) FetchUnpaidEvents(ctx context.Context) (map[string][]*models.UsageEvent, error) {
	panic("boom")
}

func newTestCoordinator(t *testing.T, store models.Ledger, r models.Rail, notify models.NotificationService) *Coordinator {
	t.Helper()
	cfg := testConfig(t)
	d := NewDistribution(store, r, notify, logger.NewNop(), cfg)
	d.now = func() time.Time { return runBase }
	e := NewWithdrawalEngine(store, r, notify, logger.NewNop(), cfg)
	return NewCoordinator(d, e, store, logger.NewNop())
}

func seedFullWorkload(t *testing.T, store *repository.Memory) {
	t.Helper()
	seedEvents(store, "alice", 10, runBase.Add(-2*time.Hour))
	store.PutWallet(models.Wallet{RecipientID: "bob", Balance: 50})
	seedApproved(store, "wd-app", "bob", testAddr(t, "bb"), 50, runBase.Add(-time.Hour))
	store.AddWithdrawalRequest(models.WithdrawalRequest{
		ID:          "wd-rej",
		RecipientID: "carol",
		Destination: testAddr(t, "cc"),
		Amount:      5,
		Status:      models.WithdrawalStatusRejected,
		CreatedAt:   runBase.Add(-time.Hour),
	})
}

func TestCoordinatorRunsAllTasksInOrder(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedFullWorkload(t, store)
	c := newTestCoordinator(t, store, &stubRail{balance: 100}, &recordingNotifier{})

	report := c.Run(ctx)
	if report.Succeeded != 3 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	want := models.AllTasks()
	if len(report.Tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(report.Tasks))
	}
	for i, task := range report.Tasks {
		if task.Name != want[i] {
			t.Fatalf("task %d: expected %s, got %s", i, want[i], task.Name)
		}
		if !task.Success || task.Affected != 1 || task.ItemFailures != 0 {
			t.Fatalf("unexpected task report: %+v", task)
		}
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Fatalf("report times out of order: %+v", report)
	}
}

func TestCoordinatorSelectsRequestedTasks(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedFullWorkload(t, store)
	c := newTestCoordinator(t, store, &stubRail{balance: 100}, &recordingNotifier{})

	report := c.Run(ctx, models.TaskRejectedSweep)
	if len(report.Tasks) != 1 || report.Tasks[0].Name != models.TaskRejectedSweep {
		t.Fatalf("unexpected tasks: %+v", report.Tasks)
	}
	if !report.Tasks[0].Success || report.Tasks[0].Affected != 1 {
		t.Fatalf("unexpected task report: %+v", report.Tasks[0])
	}
	// The unrequested tasks did not run.
	grouped, _ := store.FetchUnpaidEvents(ctx)
	if len(grouped["alice"]) != 10 {
		t.Fatalf("expected events untouched, got %d pending", len(grouped["alice"]))
	}
	if got := store.Withdrawal("wd-app").Status; got != models.WithdrawalStatusApproved {
		t.Fatalf("expected the approved request untouched, got %s", got)
	}
}

func TestCoordinatorReportsUnknownTask(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	c := newTestCoordinator(t, store, &stubRail{balance: 100}, &recordingNotifier{})

	report := c.Run(ctx, "bogus")
	if report.Failed != 1 || report.Succeeded != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !strings.Contains(report.Tasks[0].Error, "unknown task") {
		t.Fatalf("unexpected task error: %q", report.Tasks[0].Error)
	}
}

func TestCoordinatorContainsPanics(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedFullWorkload(t, store)
	c := newTestCoordinator(t, &panickyLedger{Ledger: store}, &stubRail{balance: 100}, &recordingNotifier{})

	report := c.Run(ctx)
	if report.Failed != 1 || report.Succeeded != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	dist := report.Tasks[0]
	if dist.Name != models.TaskEarningsDistribution || dist.Success {
		t.Fatalf("unexpected distribution report: %+v", dist)
	}
	if !strings.Contains(dist.Error, "panic: boom") {
		t.Fatalf("unexpected task error: %q", dist.Error)
	}
	// The panic stayed inside its task; the queue still settled.
	if got := store.Withdrawal("wd-app").Status; got != models.WithdrawalStatusCompleted {
		t.Fatalf("expected the withdrawal settled despite the panic, got %s", got)
	}
}

func TestCoordinatorRerunMakesNoNewChanges(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedFullWorkload(t, store)
	c := newTestCoordinator(t, store, &stubRail{balance: 100}, &recordingNotifier{})

	if report := c.Run(ctx); report.Failed != 0 {
		t.Fatalf("first run failed: %+v", report)
	}
	alice, err := store.GetWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	firstBalance := alice.Balance

	report := c.Run(ctx)
	if report.Failed != 0 {
		t.Fatalf("second run failed: %+v", report)
	}
	for _, task := range report.Tasks {
		if task.Affected != 0 {
			t.Fatalf("expected an idle second run, got %+v", task)
		}
	}
	alice, _ = store.GetWallet(ctx, "alice")
	if alice.Balance != firstBalance {
		t.Fatalf("expected balance unchanged, got %v then %v", firstBalance, alice.Balance)
	}
	if len(store.Earnings()) != 1 {
		t.Fatalf("expected 1 earning transaction, got %d", len(store.Earnings()))
	}
	if logs, _ := store.RecentRunLogs(ctx, 10); len(logs) != 1 {
		t.Fatalf("expected 1 run log, got %d", len(logs))
	}
}

func TestCoordinatorRecentRuns(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	seedEvents(store, "alice", 10, runBase.Add(-time.Hour))
	c := newTestCoordinator(t, store, &stubRail{balance: 100}, &recordingNotifier{})

	if _, err := c.RecentRuns(ctx, 10); err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	c.Run(ctx, models.TaskEarningsDistribution)
	logs, err := c.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(logs) != 1 || logs[0].RecipientsPaid != 1 {
		t.Fatalf("unexpected run logs: %+v", logs)
	}
}
