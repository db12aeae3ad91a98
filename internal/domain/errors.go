package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Message contract errors
	ErrInvalidMessage = errors.New("invalid message")

	// Orchestrator errors
	ErrTaskNotFound        = errors.New("task not found")
	ErrMissingTarget       = errors.New("task target is required")
	ErrNotAwaitingApproval = errors.New("task is not awaiting approval")
	ErrTerminalTask        = errors.New("task already reached a terminal state")

	// Policy errors
	ErrPolicyDenied = errors.New("task denied by dispatch policy")
	ErrFailClosed   = errors.New("risk metadata rejected (fail-closed)")

	// Planner errors
	ErrCycleDetected           = errors.New("dependency cycle detected")
	ErrDuplicateRecommendation = errors.New("duplicate recommendation id")
	ErrUnknownDependency       = errors.New("unknown dependency")
	ErrInvalidDag              = errors.New("invalid task dag")

	// Audit errors
	ErrMissingSecret = errors.New("audit log requires a non-empty secret")
	ErrChainBroken   = errors.New("audit chain verification failed")

	// Store errors
	ErrMissingTaskID = errors.New("record is missing taskId")
)
