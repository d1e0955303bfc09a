package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/repository"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

type stubChannel struct {
	name   string
	err    error
	panics bool
	sent   []string
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(ctx context.Context, subject, message string) error {
	if c.panics {
		panic("channel exploded")
	}
	c.sent = append(c.sent, subject)
	return c.err
}

type failingNotificationLedger struct {
	models.Ledger
}

func (l *failingNotificationLedger) CreateNotification(ctx context.Context, n *models.Notification) error {
	return errors.New("store offline")
}

func TestNotifyRecipientFillsIdentity(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	n := NewNotifier(store, logger.NewNop())

	n.NotifyRecipient(ctx, &models.Notification{
		RecipientID: "alice",
		Kind:        models.NotificationKindEarning,
		Message:     "You earned 1.0000000 for 10 ad views.",
		Amount:      1,
	})

	stored := store.Notifications()
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(stored))
	}
	got := stored[0]
	if got.ID == "" {
		t.Fatal("expected a generated notification id")
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
	if got.RecipientID != "alice" || got.Kind != models.NotificationKindEarning {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func TestNotifyRecipientKeepsCallerIdentity(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	n := NewNotifier(store, logger.NewNop())

	n.NotifyRecipient(ctx, &models.Notification{
		ID:          "note-1",
		RecipientID: "alice",
		Kind:        models.NotificationKindWithdrawalFailed,
	})

	stored := store.Notifications()
	if len(stored) != 1 || stored[0].ID != "note-1" {
		t.Fatalf("expected the caller's id to survive, got %+v", stored)
	}
}

func TestNotifyRecipientSwallowsStoreErrors(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier(&failingNotificationLedger{Ledger: repository.NewMemory()}, logger.NewNop())

	// Must not panic or propagate; settlement never fails on notifications.
	n.NotifyRecipient(ctx, &models.Notification{RecipientID: "alice"})
}

func TestAlertOperatorFansOutToAllChannels(t *testing.T) {
	ctx := context.Background()
	first := &stubChannel{name: "first"}
	second := &stubChannel{name: "second"}
	n := NewNotifier(repository.NewMemory(), logger.NewNop(), first, second)

	n.AlertOperator(ctx, "credit failed", "reconcile manually")

	if len(first.sent) != 1 || first.sent[0] != "credit failed" {
		t.Fatalf("expected the first channel to receive the alert, got %v", first.sent)
	}
	if len(second.sent) != 1 {
		t.Fatalf("expected the second channel to receive the alert, got %v", second.sent)
	}
}

func TestAlertOperatorSurvivesBrokenChannel(t *testing.T) {
	ctx := context.Background()
	panicking := &stubChannel{name: "panicking", panics: true}
	failing := &stubChannel{name: "failing", err: errors.New("smtp down")}
	healthy := &stubChannel{name: "healthy"}
	n := NewNotifier(repository.NewMemory(), logger.NewNop(), panicking, failing, healthy)

	n.AlertOperator(ctx, "credit failed", "reconcile manually")

	if len(healthy.sent) != 1 {
		t.Fatalf("expected the healthy channel to still receive the alert, got %v", healthy.sent)
	}
	if len(failing.sent) != 1 {
		t.Fatalf("expected the failing channel to have been attempted, got %v", failing.sent)
	}
}
