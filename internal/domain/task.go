package domain

// TaskStatus tracks a task's position in the orchestration lifecycle:
// dispatched → {retry_scheduled ⇄ dispatched} → {completed | failed | timed_out},
// with awaiting_approval as the alternate initial state for gated tasks.
type TaskStatus string

const (
	StatusDispatched       TaskStatus = "dispatched"
	StatusRetryScheduled   TaskStatus = "retry_scheduled"
	StatusAwaitingApproval TaskStatus = "awaiting_approval"
	StatusTimedOut         TaskStatus = "timed_out"
	StatusCompleted        TaskStatus = "completed"
	StatusFailed           TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// Open reports whether the orchestrator's maintenance sweep still watches
// the task. awaiting_approval tasks are not open: they move only on an
// explicit review.
func (s TaskStatus) Open() bool {
	return s == StatusDispatched || s == StatusRetryScheduled
}

// HistoryEntry is one line in a task's append-only event log. History is
// never mutated, only appended.
type HistoryEntry struct {
	At      int64  `json:"at"`
	Event   string `json:"event"`
	Attempt int    `json:"attempt,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ApprovalStatus values for Approval.Status.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// Approval records the human-review state of a gated task.
type Approval struct {
	Status        string   `json:"status"`
	ReviewerGroup string   `json:"reviewerGroup,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	MatchedRules  []string `json:"matchedRules,omitempty"`
	RequestedAt   int64    `json:"requestedAt"`
	ReviewedAt    int64    `json:"reviewedAt,omitempty"`
	Reviewer      string   `json:"reviewer,omitempty"`
	ReviewReason  string   `json:"reviewReason,omitempty"`
}

// PolicyReason explains one dispatch-policy denial cause.
type PolicyReason struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Redaction records one sensitive-data replacement made by the dispatch
// policy, by location.
type Redaction struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// PolicyDecision is the dispatch policy's structured verdict on a request.
// Denial and redaction are orthogonal: a denied request is still returned
// sanitized so it can be recorded and audited without leaking secrets.
type PolicyDecision struct {
	Allowed    bool           `json:"allowed"`
	Reasons    []PolicyReason `json:"reasons,omitempty"`
	Redactions []Redaction    `json:"redactions,omitempty"`
	Request    TaskRequest    `json:"taskRequest"`
}

// ApprovalDecision is the approval policy's verdict on a request.
type ApprovalDecision struct {
	Required      bool     `json:"required"`
	ReviewerGroup string   `json:"reviewerGroup,omitempty"`
	MatchedRules  []string `json:"matchedRules,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// TaskRecord is the orchestrator's persisted view of one task. Exactly one
// record exists per taskId; attempts only increases; terminal statuses never
// transition further.
type TaskRecord struct {
	TaskID      string          `json:"taskId"`
	Target      string          `json:"target"`
	Request     TaskRequest     `json:"request"`
	Status      TaskStatus      `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxRetries  int             `json:"maxRetries"`
	TimeoutMs   int64           `json:"timeoutMs,omitempty"`
	Approval    *Approval       `json:"approval,omitempty"`
	Policy      *PolicyDecision `json:"policy,omitempty"`
	Receipts    []TaskReceipt   `json:"receipts,omitempty"`
	Result      *TaskResult     `json:"result,omitempty"`
	History     []HistoryEntry  `json:"history"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	UpdatedAt   int64           `json:"updatedAt"`
	DeadlineAt  int64           `json:"deadlineAt,omitempty"`
	NextRetryAt int64           `json:"nextRetryAt,omitempty"`
	ClosedAt    int64           `json:"closedAt,omitempty"`
}

// AppendHistory adds an event to the record's history log.
func (r *TaskRecord) AppendHistory(at int64, event string, attempt int, detail string) {
	r.History = append(r.History, HistoryEntry{At: at, Event: event, Attempt: attempt, Detail: detail})
}

// AgentPresence is the registry's view of one agent, derived entirely from
// its most recent heartbeat. Ephemeral: stale entries are evictable.
type AgentPresence struct {
	ID              string      `json:"id"`
	Status          AgentStatus `json:"status"`
	Load            float64     `json:"load"`
	Capabilities    []string    `json:"capabilities"`
	LastHeartbeatAt int64       `json:"lastHeartbeatAt"`
}
