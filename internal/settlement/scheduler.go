package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

// Scheduler triggers settlement runs on a fixed interval. A slot mutex keeps
// ticks from stacking runs when one overruns the interval; correctness under
// overlap comes from the store's conditional writes, the slot only saves the
// wasted work.
type Scheduler struct {
	logger  *logger.Logger
	settler models.Settler

	interval time.Duration
	budget   time.Duration

	slot sync.Mutex
}

// NewScheduler creates a new Scheduler instance.
func NewScheduler(settler models.Settler, interval, budget time.Duration, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		settler:  settler,
		interval: interval,
		budget:   budget,
		logger:   logger,
	}
}

// Start runs once immediately, then on every tick until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Infow("scheduler started",
		"interval", s.interval.String(), "budget", s.budget.String())

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// RunOnce triggers one run under the slot and the run time budget. It reports
// false when a previous run still holds the slot.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.slot.TryLock() {
		s.logger.Warnw("previous run still active, skipping this tick")
		return false
	}
	defer s.slot.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()
	s.settler.Run(runCtx)
	return true
}
