package models

import (
	"context"
	"time"
)

// Task names executed by a settlement run, in execution order.
const (
	TaskEarningsDistribution = "earnings_distribution"
	TaskWithdrawalSettlement = "withdrawal_settlement"
	TaskRejectedSweep        = "rejected_sweep"
)

// AllTasks returns every task name in execution order.
func AllTasks() []string {
	return []string{TaskEarningsDistribution, TaskWithdrawalSettlement, TaskRejectedSweep}
}

// TaskReport is the outcome of one task within a run.
type TaskReport struct {
	// Name is the task name.
	Name string `json:"name"`
	// Success is false when the task could not run at all.
	Success bool `json:"success"`
	// Affected counts the items the task settled or credited.
	Affected int64 `json:"affected"`
	// ItemFailures counts items that failed without aborting the task.
	ItemFailures int64 `json:"item_failures"`
	// Error carries the task-level failure, empty on success.
	Error string `json:"error,omitempty"`
}

// RunReport aggregates one settlement invocation.
type RunReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Tasks      []TaskReport `json:"tasks"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
}

// Add appends a task report and updates the counters.
func (r *RunReport) Add(t TaskReport) {
	r.Tasks = append(r.Tasks, t)
	if t.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// ItemFailures sums per-item failures across all tasks.
func (r *RunReport) ItemFailures() int64 {
	var n int64
	for _, t := range r.Tasks {
		n += t.ItemFailures
	}
	return n
}

// Settler runs settlement tasks on demand. The HTTP API and the scheduler
// both drive it.
type Settler interface {
	// Run executes the named tasks, or every task when none are given. One
	// task's failure never aborts another; the report carries each outcome.
	Run(ctx context.Context, tasks ...string) *RunReport
	// RecentRuns lists the newest distribution run logs.
	RecentRuns(ctx context.Context, limit int) ([]*DistributionRunLog, error)
}
