// Package metrics provides Prometheus metrics for the swarm orchestrator:
// task lifecycle counters, fleet gauges, and audit chain growth.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksDispatched counts tasks sent out, by priority.
var TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swarm",
	Name:      "tasks_dispatched_total",
	Help:      "Total task dispatch attempts.",
}, []string{"priority"})

// TasksTerminal counts tasks reaching a terminal state.
var TasksTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swarm",
	Name:      "tasks_terminal_total",
	Help:      "Total tasks reaching a terminal state.",
}, []string{"status"})

// TaskRetries counts scheduled retries.
var TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarm",
	Name:      "task_retries_total",
	Help:      "Total retries scheduled after failed or rejected sends.",
})

// TasksOpen tracks tasks the maintenance sweep is still watching.
var TasksOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "swarm",
	Name:      "tasks_open",
	Help:      "Tasks currently in a non-terminal, non-gated state.",
})

// TasksAwaitingApproval tracks tasks held for human review.
var TasksAwaitingApproval = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "swarm",
	Name:      "tasks_awaiting_approval",
	Help:      "Tasks held pending human approval.",
})

// PolicyDenials counts dispatch requests refused by policy.
var PolicyDenials = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarm",
	Name:      "policy_denials_total",
	Help:      "Total dispatch requests denied by the dispatch policy.",
})

// ─── Fleet ──────────────────────────────────────────────────────────────────

// AgentsKnown tracks registry size.
var AgentsKnown = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "swarm",
	Name:      "agents_known",
	Help:      "Agents currently present in the registry.",
})

// AgentsPruned counts stale agent evictions.
var AgentsPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarm",
	Name:      "agents_pruned_total",
	Help:      "Total stale agents evicted from the registry.",
})

// ─── Audit ──────────────────────────────────────────────────────────────────

// AuditEntries counts entries appended to the signed audit log.
var AuditEntries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarm",
	Name:      "audit_entries_total",
	Help:      "Total entries appended to the audit chain.",
})
