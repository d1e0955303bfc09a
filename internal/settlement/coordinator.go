package settlement

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

// Coordinator sequences the settlement tasks. The HTTP API and the scheduler
// both drive it through the models.Settler interface.
type Coordinator struct {
	logger *logger.Logger
	ledger models.Ledger

	distribution *Distribution
	withdrawals  *WithdrawalEngine

	now func() time.Time
}

// NewCoordinator creates a new Coordinator instance.
func NewCoordinator(
	distribution *Distribution,
	withdrawals *WithdrawalEngine,
	ledger models.Ledger,
	logger *logger.Logger,
) *Coordinator {
	return &Coordinator{
		distribution: distribution,
		withdrawals:  withdrawals,
		ledger:       ledger,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes the named tasks in the order given, or every task in canonical
// order when none are named. A panic or error in one task is contained to its
// report; the remaining tasks still run.
func (c *Coordinator) Run(ctx context.Context, tasks ...string) *models.RunReport {
	if len(tasks) == 0 {
		tasks = models.AllTasks()
	}

	report := &models.RunReport{StartedAt: c.now().UTC()}
	for _, name := range tasks {
		report.Add(c.runTask(ctx, name))
	}
	report.FinishedAt = c.now().UTC()

	c.logger.Infow("settlement run finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"item_failures", report.ItemFailures(),
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	return report
}

// runTask runs one task with panic recovery, so a bug in one task can never
// take down the scheduler loop or skip the tasks after it.
func (c *Coordinator) runTask(ctx context.Context, name string) (report models.TaskReport) {
	report.Name = name
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("settlement task panicked",
				"task", name, "panic", r, "stack", string(debug.Stack()))
			report.Success = false
			report.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	switch name {
	case models.TaskEarningsDistribution:
		res, err := c.distribution.Run(ctx)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		report.Success = true
		report.Affected = res.RecipientsPaid
		report.ItemFailures = res.RecipientFailures

	case models.TaskWithdrawalSettlement:
		res, err := c.withdrawals.Run(ctx)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		report.Success = true
		report.Affected = res.Completed + res.Failed
		report.ItemFailures = res.ItemFailures

	case models.TaskRejectedSweep:
		res, err := c.withdrawals.SweepRejected(ctx)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		report.Success = true
		report.Affected = res.Swept
		report.ItemFailures = res.ItemFailures

	default:
		report.Error = fmt.Sprintf("unknown task %q", name)
	}
	return report
}

// RecentRuns lists the newest distribution run logs.
func (c *Coordinator) RecentRuns(ctx context.Context, limit int) ([]*models.DistributionRunLog, error) {
	return c.ledger.RecentRunLogs(ctx, limit)
}

var _ models.Settler = (*Coordinator)(nil)
