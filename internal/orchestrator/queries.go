package orchestrator

import (
	"fmt"

	"github.com/swarmlab/swarm/internal/domain"
)

// TaskFilter narrows ListTasks. Zero fields match everything.
type TaskFilter struct {
	Status   domain.TaskStatus
	Target   string
	OpenOnly bool
}

// GetTask returns a copy of one task record.
func (o *Orchestrator) GetTask(taskID string) (domain.TaskRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.tasks[taskID]
	if !ok {
		return domain.TaskRecord{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	return *rec, nil
}

// ListTasks returns matching records, newest first.
func (o *Orchestrator) ListTasks(filter TaskFilter) []domain.TaskRecord {
	o.mu.Lock()
	out := make([]domain.TaskRecord, 0, len(o.tasks))
	for _, rec := range o.tasks {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Target != "" && rec.Target != filter.Target {
			continue
		}
		if filter.OpenOnly && rec.Status.Terminal() {
			continue
		}
		out = append(out, *rec)
	}
	o.mu.Unlock()

	sortRecords(out)
	return out
}

// PendingApprovals returns every task still waiting on a reviewer,
// newest first.
func (o *Orchestrator) PendingApprovals() []domain.TaskRecord {
	return o.ListTasks(TaskFilter{Status: domain.StatusAwaitingApproval})
}

// Stats is an aggregate view over all tracked tasks.
type Stats struct {
	Total       int            `json:"total"`
	Open        int            `json:"open"`
	Terminal    int            `json:"terminal"`
	ByStatus    map[string]int `json:"byStatus"`
	AvgAttempts float64        `json:"avgAttempts"`
}

// Metrics summarizes tracked tasks.
func (o *Orchestrator) Metrics() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Stats{ByStatus: make(map[string]int)}
	attempts := 0
	for _, rec := range o.tasks {
		s.Total++
		s.ByStatus[string(rec.Status)]++
		attempts += rec.Attempts
		switch {
		case rec.Status.Terminal():
			s.Terminal++
		case rec.Status.Open():
			s.Open++
		}
	}
	if s.Total > 0 {
		s.AvgAttempts = float64(attempts) / float64(s.Total)
	}
	return s
}

// Compact rewrites the store to the current live record set. A no-op
// without a store.
func (o *Orchestrator) Compact() error {
	if o.store == nil {
		return nil
	}
	o.mu.Lock()
	recs := make([]domain.TaskRecord, 0, len(o.tasks))
	for _, rec := range o.tasks {
		recs = append(recs, *rec)
	}
	o.mu.Unlock()
	return o.store.Compact(recs)
}
