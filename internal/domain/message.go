// Package domain defines the swarm message contracts and task lifecycle
// types. A task flows through the network as:
// request → receipt → result, tracked by the orchestrator to a terminal
// state. All message types validate structurally at trust boundaries —
// a malformed message from a misbehaving agent is rejected before it can
// touch orchestrator state.
package domain

import (
	"fmt"
)

// Message kinds on the wire.
const (
	KindTaskRequest       = "task_request"
	KindTaskReceipt       = "task_receipt"
	KindTaskResult        = "task_result"
	KindHeartbeat         = "signal_heartbeat"
	KindHandshakeRequest  = "handshake_request"
	KindHandshakeResponse = "handshake_response"
)

// Priority orders task urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the sort rank for a priority: critical < high < normal < low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// AgentStatus is the availability state an agent reports in heartbeats.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentError   AgentStatus = "error"
	AgentOffline AgentStatus = "offline"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentIdle, AgentBusy, AgentError, AgentOffline:
		return true
	}
	return false
}

// ResultStatus is the terminal outcome an agent reports for a task.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
)

// PolicyGate carries the approval gate computed for a planned task. It is
// attached to the request context so the receiving side can see why a task
// was (or was not) held for human review.
type PolicyGate struct {
	RiskTier              string            `json:"riskTier"`
	RequiresHumanApproval bool              `json:"requiresHumanApproval"`
	ApprovalStatus        string            `json:"approvalStatus,omitempty"`
	ApprovalMarkerPresent bool              `json:"approvalMarkerPresent"`
	GatePassed            bool              `json:"gatePassed"`
	Passthrough           map[string]string `json:"passthrough,omitempty"`
}

// TaskContext is the structured, schema-validated context attached to a
// TaskRequest. Free-form values go in Extra; everything the orchestrator or
// policies act on is a named field.
type TaskContext struct {
	RequiredCapabilities        []string          `json:"requiredCapabilities,omitempty"`
	RiskTags                    []string          `json:"riskTags,omitempty"`
	RequiresHumanApproval       bool              `json:"requiresHumanApproval,omitempty"`
	RecommendationID            string            `json:"recommendationId,omitempty"`
	Dependencies                []string          `json:"dependencies,omitempty"`
	DependencyRecommendationIDs []string          `json:"dependencyRecommendationIds,omitempty"`
	Actions                     []string          `json:"actions,omitempty"`
	SuccessCriteria             []string          `json:"successCriteria,omitempty"`
	PolicyGate                  *PolicyGate       `json:"policyGate,omitempty"`
	Extra                       map[string]string `json:"extra,omitempty"`
}

// TaskRequest asks an agent to perform a unit of work. Immutable once
// created; ID is a UUID-shaped string unique across the swarm.
type TaskRequest struct {
	Kind        string      `json:"kind"`
	ID          string      `json:"id"`
	From        string      `json:"from"`
	Target      string      `json:"target,omitempty"`
	Priority    Priority    `json:"priority"`
	Task        string      `json:"task"`
	Context     TaskContext `json:"context,omitempty"`
	Constraints []string    `json:"constraints,omitempty"`
	CreatedAt   int64       `json:"createdAt"`
}

// Validate checks the request's structural shape. It never coerces: a bad
// field is reported, not repaired.
func (r TaskRequest) Validate() error {
	if r.Kind != KindTaskRequest {
		return fmt.Errorf("%w: task request kind %q", ErrInvalidMessage, r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: task request missing id", ErrInvalidMessage)
	}
	if r.From == "" {
		return fmt.Errorf("%w: task request %s missing from", ErrInvalidMessage, r.ID)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: task request %s priority %q", ErrInvalidMessage, r.ID, r.Priority)
	}
	if r.Task == "" {
		return fmt.Errorf("%w: task request %s missing task text", ErrInvalidMessage, r.ID)
	}
	if r.CreatedAt < 0 {
		return fmt.Errorf("%w: task request %s negative createdAt", ErrInvalidMessage, r.ID)
	}
	return nil
}

// TaskReceipt acknowledges that a worker accepted (or rejected) a request.
// EtaMs, when positive, extends the orchestrator's deadline for the task.
type TaskReceipt struct {
	Kind      string `json:"kind"`
	TaskID    string `json:"taskId"`
	From      string `json:"from"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
	EtaMs     int64  `json:"etaMs,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Validate checks the receipt's structural shape.
func (r TaskReceipt) Validate() error {
	if r.Kind != KindTaskReceipt {
		return fmt.Errorf("%w: task receipt kind %q", ErrInvalidMessage, r.Kind)
	}
	if r.TaskID == "" {
		return fmt.Errorf("%w: task receipt missing taskId", ErrInvalidMessage)
	}
	if r.From == "" {
		return fmt.Errorf("%w: task receipt %s missing from", ErrInvalidMessage, r.TaskID)
	}
	if r.EtaMs < 0 {
		return fmt.Errorf("%w: task receipt %s negative etaMs", ErrInvalidMessage, r.TaskID)
	}
	if r.Timestamp < 0 {
		return fmt.Errorf("%w: task receipt %s negative timestamp", ErrInvalidMessage, r.TaskID)
	}
	return nil
}

// Artifact describes a file an agent created or modified while executing
// a task.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type,omitempty"`
}

// TaskResult is a worker's terminal outcome report for a task.
type TaskResult struct {
	Kind        string       `json:"kind"`
	TaskID      string       `json:"taskId"`
	From        string       `json:"from"`
	Status      ResultStatus `json:"status"`
	Output      string       `json:"output"`
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	CompletedAt int64        `json:"completedAt"`
}

// Validate checks the result's structural shape.
func (r TaskResult) Validate() error {
	if r.Kind != KindTaskResult {
		return fmt.Errorf("%w: task result kind %q", ErrInvalidMessage, r.Kind)
	}
	if r.TaskID == "" {
		return fmt.Errorf("%w: task result missing taskId", ErrInvalidMessage)
	}
	if r.From == "" {
		return fmt.Errorf("%w: task result %s missing from", ErrInvalidMessage, r.TaskID)
	}
	if r.Status != ResultSuccess && r.Status != ResultFailure {
		return fmt.Errorf("%w: task result %s status %q", ErrInvalidMessage, r.TaskID, r.Status)
	}
	if r.CompletedAt < 0 {
		return fmt.Errorf("%w: task result %s negative completedAt", ErrInvalidMessage, r.TaskID)
	}
	for i, a := range r.Artifacts {
		if a.Name == "" || a.Path == "" {
			return fmt.Errorf("%w: task result %s artifact %d missing name or path", ErrInvalidMessage, r.TaskID, i)
		}
	}
	return nil
}

// HeartbeatSignal is an agent's periodic presence announcement. A nil
// Capabilities slice means "unchanged since my last heartbeat".
type HeartbeatSignal struct {
	Kind         string      `json:"kind"`
	From         string      `json:"from"`
	Status       AgentStatus `json:"status"`
	Load         float64     `json:"load,omitempty"`
	Capabilities []string    `json:"capabilities,omitempty"`
	Timestamp    int64       `json:"timestamp"`
}

// Validate checks the heartbeat's structural shape.
func (h HeartbeatSignal) Validate() error {
	if h.Kind != KindHeartbeat {
		return fmt.Errorf("%w: heartbeat kind %q", ErrInvalidMessage, h.Kind)
	}
	if h.From == "" {
		return fmt.Errorf("%w: heartbeat missing from", ErrInvalidMessage)
	}
	if !h.Status.Valid() {
		return fmt.Errorf("%w: heartbeat from %s status %q", ErrInvalidMessage, h.From, h.Status)
	}
	if h.Load < 0 || h.Load > 1 {
		return fmt.Errorf("%w: heartbeat from %s load %v outside [0,1]", ErrInvalidMessage, h.From, h.Load)
	}
	if h.Timestamp < 0 {
		return fmt.Errorf("%w: heartbeat from %s negative timestamp", ErrInvalidMessage, h.From)
	}
	return nil
}

// HandshakeRequest opens a protocol negotiation between two agents.
type HandshakeRequest struct {
	Kind               string   `json:"kind"`
	ID                 string   `json:"id"`
	From               string   `json:"from"`
	SupportedProtocols []string `json:"supportedProtocols"`
	Capabilities       []string `json:"capabilities,omitempty"`
	Timestamp          int64    `json:"timestamp"`
}

// Validate checks the handshake request's structural shape.
func (h HandshakeRequest) Validate() error {
	if h.Kind != KindHandshakeRequest {
		return fmt.Errorf("%w: handshake request kind %q", ErrInvalidMessage, h.Kind)
	}
	if h.ID == "" {
		return fmt.Errorf("%w: handshake request missing id", ErrInvalidMessage)
	}
	if h.From == "" {
		return fmt.Errorf("%w: handshake request %s missing from", ErrInvalidMessage, h.ID)
	}
	if len(h.SupportedProtocols) == 0 {
		return fmt.Errorf("%w: handshake request %s lists no protocols", ErrInvalidMessage, h.ID)
	}
	if h.Timestamp < 0 {
		return fmt.Errorf("%w: handshake request %s negative timestamp", ErrInvalidMessage, h.ID)
	}
	return nil
}

// HandshakeResponse answers a HandshakeRequest.
type HandshakeResponse struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	From      string `json:"from"`
	Accepted  bool   `json:"accepted"`
	Protocol  string `json:"protocol,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Validate checks the handshake response's structural shape.
func (h HandshakeResponse) Validate() error {
	if h.Kind != KindHandshakeResponse {
		return fmt.Errorf("%w: handshake response kind %q", ErrInvalidMessage, h.Kind)
	}
	if h.RequestID == "" {
		return fmt.Errorf("%w: handshake response missing requestId", ErrInvalidMessage)
	}
	if h.From == "" {
		return fmt.Errorf("%w: handshake response %s missing from", ErrInvalidMessage, h.RequestID)
	}
	if h.Accepted && h.Protocol == "" {
		return fmt.Errorf("%w: handshake response %s accepted without protocol", ErrInvalidMessage, h.RequestID)
	}
	if h.Timestamp < 0 {
		return fmt.Errorf("%w: handshake response %s negative timestamp", ErrInvalidMessage, h.RequestID)
	}
	return nil
}
