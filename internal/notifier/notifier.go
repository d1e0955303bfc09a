package notifier

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

// Channel pushes an operator alert to one external destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, message string) error
}

// Notifier persists recipient notifications in the ledger and fans operator
// alerts out to the configured channels. Notification failures are logged
// and swallowed; a broken channel must never fail a settlement run.
type Notifier struct {
	logger *logger.Logger
	ledger models.Ledger

	channels []Channel
}

func NewNotifier(ledger models.Ledger, logger *logger.Logger, channels ...Channel) *Notifier {
	return &Notifier{logger: logger, ledger: ledger, channels: channels}
}

// NotifyRecipient stores the notification for the recipient's app to pick up.
func (n *Notifier) NotifyRecipient(ctx context.Context, notification *models.Notification) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	if err := n.ledger.CreateNotification(ctx, notification); err != nil {
		n.logger.Errorw("failed to store notification",
			"recipient_id", notification.RecipientID,
			"kind", notification.Kind,
			"error", err,
		)
	}
}

// AlertOperator pushes the alert to every channel. The alert is also logged,
// so it survives even when no channel is configured.
func (n *Notifier) AlertOperator(ctx context.Context, subject, message string) {
	n.logger.Warnw("operator alert", "subject", subject, "message", message)

	for _, ch := range n.channels {
		n.safeSend(ctx, ch, subject, message)
	}
}

// safeSend delivers through one channel with panic recovery (synchronous, no
// goroutine spawning).
func (n *Notifier) safeSend(ctx context.Context, ch Channel, subject, message string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("alert channel panicked",
				"channel", ch.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	if err := ch.Send(ctx, subject, message); err != nil {
		n.logger.Errorw("failed to send operator alert", "channel", ch.Name(), "error", err)
	}
}

var _ models.NotificationService = (*Notifier)(nil)
