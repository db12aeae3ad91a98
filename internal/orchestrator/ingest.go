package orchestrator

import (
	"context"
	"log"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/infra/metrics"
)

// IngestReceipt applies a worker's acknowledgement to its task. Receipts
// for unknown tasks are logged and dropped; receipts for terminal tasks
// are recorded as informational history only. An accepted receipt with a
// positive etaMs extends the task's deadline.
func (o *Orchestrator) IngestReceipt(receipt domain.TaskReceipt) error {
	if err := receipt.Validate(); err != nil {
		return err
	}
	now := o.now()

	o.mu.Lock()
	rec, ok := o.tasks[receipt.TaskID]
	if !ok {
		o.mu.Unlock()
		log.Printf("[orchestrator] receipt for unknown task %s from %s", receipt.TaskID, receipt.From)
		return nil
	}

	if rec.Status.Terminal() {
		rec.AppendHistory(now, "late_receipt", rec.Attempts, receipt.From)
		o.mu.Unlock()
		return o.persist(rec)
	}

	rec.Receipts = append(rec.Receipts, receipt)
	rec.UpdatedAt = now

	if receipt.Accepted {
		rec.AppendHistory(now, "acknowledged", rec.Attempts, receipt.From)
		if receipt.EtaMs > 0 {
			rec.DeadlineAt = now + receipt.EtaMs
		}
		o.mu.Unlock()
		return o.persist(rec)
	}

	// Rejected: the worker will not run this attempt.
	rec.AppendHistory(now, "rejected", rec.Attempts, receipt.Reason)
	exhausted := rec.Attempts > rec.MaxRetries
	if !exhausted {
		rec.Status = domain.StatusRetryScheduled
		rec.NextRetryAt = now + o.cfg.RetryDelayMs
	}
	o.mu.Unlock()

	if exhausted {
		o.close(rec, domain.StatusFailed, now, "rejected by "+receipt.From+": "+receipt.Reason)
		o.recordAudit("task_failed", now, map[string]any{
			"taskId": rec.TaskID, "target": rec.Target, "reason": receipt.Reason,
		})
	} else {
		metrics.TaskRetries.Inc()
		o.recordAudit("task_retry_scheduled", now, map[string]any{
			"taskId": rec.TaskID, "target": rec.Target, "reason": receipt.Reason,
		})
	}
	return o.persist(rec)
}

// IngestResult applies a worker's terminal report. Success completes the
// task; failure retries until attempts exceed the retry budget.
func (o *Orchestrator) IngestResult(ctx context.Context, result domain.TaskResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	now := o.now()

	o.mu.Lock()
	rec, ok := o.tasks[result.TaskID]
	if !ok {
		o.mu.Unlock()
		log.Printf("[orchestrator] result for unknown task %s from %s", result.TaskID, result.From)
		return nil
	}

	if rec.Status.Terminal() {
		rec.AppendHistory(now, "late_result", rec.Attempts, result.From)
		o.mu.Unlock()
		return o.persist(rec)
	}

	rec.Result = &result
	rec.UpdatedAt = now

	if result.Status == domain.ResultSuccess {
		o.mu.Unlock()
		o.close(rec, domain.StatusCompleted, now, "")
		o.recordAudit("task_completed", now, map[string]any{
			"taskId": rec.TaskID, "target": rec.Target, "attempts": rec.Attempts,
		})
		return o.persist(rec)
	}

	rec.AppendHistory(now, "result_failure", rec.Attempts, result.Output)
	exhausted := rec.Attempts > rec.MaxRetries
	if !exhausted {
		rec.Status = domain.StatusRetryScheduled
		rec.NextRetryAt = now + o.cfg.RetryDelayMs
		rec.LastError = result.Output
	}
	o.mu.Unlock()

	if exhausted {
		o.close(rec, domain.StatusFailed, now, "worker reported failure: "+result.Output)
		o.recordAudit("task_failed", now, map[string]any{
			"taskId": rec.TaskID, "target": rec.Target, "attempts": rec.Attempts,
		})
	} else {
		metrics.TaskRetries.Inc()
		o.recordAudit("task_retry_scheduled", now, map[string]any{
			"taskId": rec.TaskID, "target": rec.Target, "reason": "worker failure",
		})
	}
	return o.persist(rec)
}
