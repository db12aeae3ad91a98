package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers. Infrastructure
// implements them; the orchestrator depends only on the contracts.

// Transport delivers a task request to a target agent. The orchestration
// core never implements a wire protocol itself; deployments inject one.
// Send returning an error is a recoverable condition — the orchestrator
// schedules a retry rather than failing the task outright.
type Transport interface {
	Send(ctx context.Context, target string, req TaskRequest) error
}

// TaskStore persists task records so orchestrator state survives restart.
// Implementations are single-writer: exactly one store instance owns a
// journal path per process.
type TaskStore interface {
	SaveRecord(rec TaskRecord) error
	DeleteRecord(taskID string) error
	LoadRecords() ([]TaskRecord, error)

	// Compact rewrites the journal to exactly the given records,
	// discarding prior history. The only way to bound journal growth.
	Compact(recs []TaskRecord) error
}

// AuditEvent is one lifecycle event destined for the signed audit log.
type AuditEvent struct {
	EventType string
	Actor     string
	At        int64
	Payload   map[string]any
}

// AuditSink receives lifecycle events. Implemented by audit.Log.
type AuditSink interface {
	Record(ev AuditEvent) error
}
