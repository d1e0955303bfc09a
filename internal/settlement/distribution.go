package settlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/config"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

// payOutcome classifies what happened to one recipient batch within a run.
type payOutcome int

const (
	outcomePaid payOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// DistributionResult summarizes one distribution pass.
type DistributionResult struct {
	RunDate            string
	Pool               float64
	Rate               float64
	TotalEvents        int64
	RecipientsSelected int
	RecipientsPaid     int64
	RecipientsSkipped  int64
	RecipientFailures  int64
	TotalDistributed   float64
}

// Distribution converts pending usage events into wallet credits at a uniform
// per-event rate. Crediting strictly follows claiming the events, so two
// overlapping runs can race freely: the store's conditional mark decides who
// pays a batch and the loser walks away.
type Distribution struct {
	logger *logger.Logger
	config *config.Config

	ledger models.Ledger
	rail   models.Rail
	notify models.NotificationService

	now func() time.Time
}

// NewDistribution creates a new Distribution instance.
func NewDistribution(
	ledger models.Ledger,
	rail models.Rail,
	notify models.NotificationService,
	logger *logger.Logger,
	config *config.Config,
) *Distribution {
	return &Distribution{
		ledger: ledger,
		rail:   rail,
		notify: notify,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// batch is one recipient's pending events within a run.
type batch struct {
	recipientID string
	events      []*models.UsageEvent
}

// orderBatches flattens grouped events into a deterministic order: recipients
// whose oldest event has waited longest go first.
func orderBatches(grouped map[string][]*models.UsageEvent) []batch {
	batches := make([]batch, 0, len(grouped))
	for recipientID, events := range grouped {
		batches = append(batches, batch{recipientID: recipientID, events: events})
	}
	sort.Slice(batches, func(i, j int) bool {
		ei, ej := earliestEvent(batches[i].events), earliestEvent(batches[j].events)
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return batches[i].recipientID < batches[j].recipientID
	})
	return batches
}

func earliestEvent(events []*models.UsageEvent) time.Time {
	min := events[0].CreatedAt
	for _, ev := range events[1:] {
		if ev.CreatedAt.Before(min) {
			min = ev.CreatedAt
		}
	}
	return min
}

// Run executes one distribution pass. A failure on one recipient never aborts
// the others; only failing to list pending work or read the funding balance
// aborts the whole pass.
func (d *Distribution) Run(ctx context.Context) (*DistributionResult, error) {
	runDate := d.now().UTC().Format("2006-01-02")
	res := &DistributionResult{RunDate: runDate}

	grouped, err := d.ledger.FetchUnpaidEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	if len(grouped) == 0 {
		d.logger.Infow("no pending usage events", "run_date", runDate)
		return res, nil
	}

	var totalEvents int64
	for _, events := range grouped {
		totalEvents += int64(len(events))
	}
	res.TotalEvents = totalEvents

	funding, err := d.rail.GetBalance(ctx, d.config.FundingAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to read funding balance: %w", err)
	}
	pool := models.RoundAmount(funding - d.config.ReserveFloor)
	if pool <= 0 {
		d.logger.Infow("distribution pool empty, leaving events pending",
			"run_date", runDate,
			"funding_balance", funding,
			"reserve_floor", d.config.ReserveFloor,
			"pending_events", totalEvents,
		)
		return res, nil
	}
	res.Pool = pool

	rate := PerEventRate(pool, totalEvents)
	if rate <= 0 {
		d.logger.Infow("per-event rate rounds to zero, leaving events pending",
			"run_date", runDate, "pool", pool, "pending_events", totalEvents)
		return res, nil
	}
	res.Rate = rate

	batches := orderBatches(grouped)
	if len(batches) > d.config.MaxRecipientsPerRun {
		batches = batches[:d.config.MaxRecipientsPerRun]
	}
	res.RecipientsSelected = len(batches)

	for _, b := range batches {
		if ctx.Err() != nil {
			d.logger.Warnw("run budget exhausted, stopping distribution",
				"run_date", runDate, "recipients_paid", res.RecipientsPaid)
			break
		}
		switch d.payRecipient(ctx, runDate, rate, b, res) {
		case outcomePaid:
			res.RecipientsPaid++
		case outcomeSkipped:
			res.RecipientsSkipped++
		case outcomeFailed:
			res.RecipientFailures++
		}
	}

	if res.RecipientsPaid > 0 {
		runLog := &models.DistributionRunLog{
			RunDate:          runDate,
			Pool:             pool,
			Rate:             rate,
			TotalEvents:      totalEvents,
			RecipientsPaid:   res.RecipientsPaid,
			TotalDistributed: res.TotalDistributed,
			CreatedAt:        d.now().UTC(),
		}
		if err := d.ledger.SaveRunLog(ctx, runLog); err != nil {
			d.logger.Errorw("failed to save distribution run log", "run_date", runDate, "error", err)
		}
	}

	d.logger.Infow("distribution finished",
		"run_date", runDate,
		"rate", rate,
		"recipients_paid", res.RecipientsPaid,
		"recipients_skipped", res.RecipientsSkipped,
		"recipient_failures", res.RecipientFailures,
		"total_distributed", res.TotalDistributed,
	)
	return res, nil
}

// payRecipient settles one recipient batch: claim the events, credit the
// share of whatever was actually claimed, then write the audit record and the
// notification. A batch whose events were all claimed elsewhere is skipped.
// A batch that was claimed but could not be credited is never re-marked; it
// is flagged for manual reconciliation instead of risking a double pay.
func (d *Distribution) payRecipient(ctx context.Context, runDate string, rate float64, b batch, res *DistributionResult) payOutcome {
	eventIDs := make([]string, len(b.events))
	for i, ev := range b.events {
		eventIDs[i] = ev.ID
	}

	marked, err := d.ledger.MarkEventsPaid(ctx, eventIDs)
	if err != nil {
		d.logger.Errorw("failed to claim events", "recipient_id", b.recipientID, "error", err)
		return outcomeFailed
	}
	if marked == 0 {
		d.logger.Debugw("batch already claimed by another run", "recipient_id", b.recipientID)
		return outcomeSkipped
	}

	amount := RecipientShare(rate, marked)
	wallet, err := d.ledger.CreditWallet(ctx, b.recipientID, amount, marked)
	if err != nil {
		d.logger.Errorw("events claimed but wallet not credited",
			"recipient_id", b.recipientID,
			"event_ids", eventIDs,
			"amount", amount,
			"error", err,
		)
		d.notify.AlertOperator(ctx, "distribution credit failed",
			fmt.Sprintf("recipient %s: %d events claimed but credit of %s failed: %v; reconcile manually",
				b.recipientID, marked, models.FormatAmount(amount), err))
		return outcomeFailed
	}
	res.TotalDistributed = models.RoundAmount(res.TotalDistributed + amount)

	key := models.EarningKey(runDate, b.recipientID)
	if _, err := d.ledger.RecordEarning(ctx, b.recipientID, amount, marked, key, runDate); err != nil {
		d.logger.Errorw("failed to record earning transaction",
			"recipient_id", b.recipientID, "idempotency_key", key, "error", err)
		d.notify.AlertOperator(ctx, "earning record failed",
			fmt.Sprintf("recipient %s was credited %s but the earning record failed: %v",
				b.recipientID, models.FormatAmount(amount), err))
	}

	d.notify.NotifyRecipient(ctx, &models.Notification{
		RecipientID: b.recipientID,
		Kind:        models.NotificationKindEarning,
		Message:     fmt.Sprintf("You earned %s for %d ad views.", models.FormatAmount(amount), marked),
		Amount:      amount,
	})

	d.logger.Debugw("recipient credited",
		"recipient_id", b.recipientID,
		"amount", amount,
		"events", marked,
		"balance", wallet.Balance,
	)
	return outcomePaid
}
