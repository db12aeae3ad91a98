package orchestrator

import (
	"context"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/infra/metrics"
)

// MaintenanceSummary reports what one sweep did.
type MaintenanceSummary struct {
	Checked           int `json:"checked"`
	Retried           int `json:"retried"`
	TimedOut          int `json:"timedOut"`
	TransportFailures int `json:"transportFailures"`
}

// RunMaintenance advances every open task against the given clock: due
// retries are re-sent, and dispatched tasks past their deadline either
// retry or time out. awaiting_approval and terminal tasks are untouched.
// Persistence errors abort the sweep and propagate.
func (o *Orchestrator) RunMaintenance(ctx context.Context, nowMs int64) (MaintenanceSummary, error) {
	var sum MaintenanceSummary

	o.mu.Lock()
	due := make([]*domain.TaskRecord, 0)
	expired := make([]*domain.TaskRecord, 0)
	for _, rec := range o.tasks {
		if !rec.Status.Open() {
			continue
		}
		sum.Checked++
		switch rec.Status {
		case domain.StatusRetryScheduled:
			if rec.NextRetryAt > 0 && nowMs >= rec.NextRetryAt {
				due = append(due, rec)
			}
		case domain.StatusDispatched:
			if rec.DeadlineAt > 0 && nowMs > rec.DeadlineAt {
				expired = append(expired, rec)
			}
		}
	}
	o.mu.Unlock()

	for _, rec := range due {
		if err := o.sendTask(ctx, rec); err != nil {
			return sum, err
		}
		sum.Retried++
		o.mu.Lock()
		failed := rec.Status == domain.StatusFailed || rec.Status == domain.StatusRetryScheduled
		o.mu.Unlock()
		if failed {
			sum.TransportFailures++
		}
	}

	for _, rec := range expired {
		o.mu.Lock()
		exhausted := rec.Attempts > rec.MaxRetries
		if !exhausted {
			rec.Status = domain.StatusRetryScheduled
			rec.NextRetryAt = nowMs
			rec.UpdatedAt = nowMs
			rec.AppendHistory(nowMs, "deadline_expired", rec.Attempts, "")
		}
		o.mu.Unlock()

		if exhausted {
			sum.TimedOut++
			o.close(rec, domain.StatusTimedOut, nowMs, "no result before deadline")
			o.recordAudit("task_timed_out", nowMs, map[string]any{
				"taskId": rec.TaskID, "target": rec.Target, "attempts": rec.Attempts,
			})
			if err := o.persist(rec); err != nil {
				return sum, err
			}
			continue
		}

		// Deadline passed with retry budget left: re-send immediately.
		if err := o.sendTask(ctx, rec); err != nil {
			return sum, err
		}
		sum.Retried++
	}

	o.updateOpenGauge()
	return sum, nil
}

func (o *Orchestrator) updateOpenGauge() {
	o.mu.Lock()
	open := 0
	for _, rec := range o.tasks {
		if rec.Status.Open() {
			open++
		}
	}
	o.mu.Unlock()
	metrics.TasksOpen.Set(float64(open))
}
