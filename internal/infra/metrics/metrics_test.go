package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatherNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestTaskMetrics_Registered(t *testing.T) {
	TasksDispatched.WithLabelValues("high").Inc()
	TasksTerminal.WithLabelValues("completed").Inc()
	TaskRetries.Inc()
	TasksOpen.Set(3)
	TasksAwaitingApproval.Set(1)

	names := gatherNames(t)
	expected := []string{
		"swarm_tasks_dispatched_total",
		"swarm_tasks_terminal_total",
		"swarm_task_retries_total",
		"swarm_tasks_open",
		"swarm_tasks_awaiting_approval",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestPolicyAndFleetMetrics_Registered(t *testing.T) {
	PolicyDenials.Inc()
	AgentsKnown.Set(2)
	AgentsPruned.Add(1)
	AuditEntries.Inc()

	names := gatherNames(t)
	expected := []string{
		"swarm_policy_denials_total",
		"swarm_agents_known",
		"swarm_agents_pruned_total",
		"swarm_audit_entries_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
