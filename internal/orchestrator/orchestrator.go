// Package orchestrator tracks every task this node has dispatched from
// creation to a terminal state. It owns the lifecycle state machine:
//
//	dispatched → retry_scheduled → dispatched → … → completed | failed | timed_out
//
// with awaiting_approval as the alternate entry point for tasks a human
// must clear first. Timeouts and retries are driven entirely by the
// maintenance sweep; there are no per-task timers.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/infra/metrics"
	"github.com/swarmlab/swarm/internal/registry"
)

// Config tunes dispatch behavior.
type Config struct {
	// LocalAgentID stamps the from field of outgoing requests.
	LocalAgentID string
	// DefaultTimeoutMs bounds how long a dispatched task may sit without
	// a result before the sweep acts on it.
	DefaultTimeoutMs int64
	// RetryDelayMs is the fixed delay before a scheduled retry fires.
	RetryDelayMs int64
	// MaxRetries caps re-sends after the first attempt.
	MaxRetries int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		LocalAgentID:     "agent:main",
		DefaultTimeoutMs: 5 * 60 * 1000,
		RetryDelayMs:     30 * 1000,
		MaxRetries:       2,
	}
}

// DispatchPolicy screens outgoing requests.
type DispatchPolicy interface {
	Evaluate(req domain.TaskRequest) domain.PolicyDecision
}

// ApprovalPolicy decides whether a request needs a human sign-off.
type ApprovalPolicy interface {
	Evaluate(req domain.TaskRequest) domain.ApprovalDecision
}

// Router selects a target agent for requests that do not name one.
type Router interface {
	RouteTask(req domain.TaskRequest) registry.RouteResult
}

// Orchestrator is the task lifecycle engine. Construct with New, then
// attach optional collaborators before the first Dispatch.
type Orchestrator struct {
	cfg       Config
	transport domain.Transport
	now       func() int64

	store    domain.TaskStore
	audit    domain.AuditSink
	router   Router
	dispatch DispatchPolicy
	approval ApprovalPolicy

	mu    sync.Mutex
	tasks map[string]*domain.TaskRecord
}

// New creates an orchestrator. transport is required; now supplies unix
// millis and defaults to the wall clock when nil.
func New(cfg Config, transport domain.Transport, now func() int64) *Orchestrator {
	def := DefaultConfig()
	if cfg.LocalAgentID == "" {
		cfg.LocalAgentID = def.LocalAgentID
	}
	if cfg.DefaultTimeoutMs <= 0 {
		cfg.DefaultTimeoutMs = def.DefaultTimeoutMs
	}
	if cfg.RetryDelayMs <= 0 {
		cfg.RetryDelayMs = def.RetryDelayMs
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Orchestrator{
		cfg:       cfg,
		transport: transport,
		now:       now,
		tasks:     make(map[string]*domain.TaskRecord),
	}
}

// SetStore attaches persistence. Without a store the orchestrator runs
// memory-only.
func (o *Orchestrator) SetStore(s domain.TaskStore) { o.store = s }

// SetAudit attaches the signed audit sink.
func (o *Orchestrator) SetAudit(a domain.AuditSink) { o.audit = a }

// SetRouter attaches capability-based routing for untargeted requests.
func (o *Orchestrator) SetRouter(r Router) { o.router = r }

// SetDispatchPolicy attaches the content screen.
func (o *Orchestrator) SetDispatchPolicy(p DispatchPolicy) { o.dispatch = p }

// SetApprovalPolicy attaches the human-review gate.
func (o *Orchestrator) SetApprovalPolicy(p ApprovalPolicy) { o.approval = p }

// Hydrate loads persisted task records into memory. Call once at startup,
// before serving traffic.
func (o *Orchestrator) Hydrate() error {
	if o.store == nil {
		return nil
	}
	recs, err := o.store.LoadRecords()
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range recs {
		rec := recs[i]
		o.tasks[rec.TaskID] = &rec
	}
	log.Printf("[orchestrator] hydrated %d task record(s)", len(recs))
	return nil
}

// PolicyDeniedError carries the structured policy verdict for a refused
// dispatch. The embedded request is already redacted.
type PolicyDeniedError struct {
	Decision domain.PolicyDecision
}

func (e *PolicyDeniedError) Error() string {
	reasons := make([]string, len(e.Decision.Reasons))
	for i, r := range e.Decision.Reasons {
		reasons[i] = r.Reason
	}
	return fmt.Sprintf("%v: %s", domain.ErrPolicyDenied, strings.Join(reasons, "; "))
}

func (e *PolicyDeniedError) Unwrap() error { return domain.ErrPolicyDenied }

// RouteFailedError reports that no agent was eligible for an untargeted
// request, with the full per-agent explanation.
type RouteFailedError struct {
	Result registry.RouteResult
}

func (e *RouteFailedError) Error() string {
	return fmt.Sprintf("%v: no eligible agent among %d candidate(s)",
		domain.ErrMissingTarget, len(e.Result.Ranked))
}

func (e *RouteFailedError) Unwrap() error { return domain.ErrMissingTarget }

// DispatchInput describes one task to send.
type DispatchInput struct {
	Target      string
	Task        string
	Priority    domain.Priority
	Context     domain.TaskContext
	Constraints []string
	// MaxRetries < 0 means use the orchestrator default.
	MaxRetries int
	// TimeoutMs <= 0 means use the orchestrator default.
	TimeoutMs int64
}

// Dispatch creates, screens, and sends one task. The returned record
// reflects the state after the first send attempt (or the approval hold).
// Policy denial is a typed error; the denied, redacted request is audited
// but never persisted as a task.
func (o *Orchestrator) Dispatch(ctx context.Context, in DispatchInput) (domain.TaskRecord, error) {
	now := o.now()
	if in.Priority == "" {
		in.Priority = domain.PriorityNormal
	}
	req := domain.TaskRequest{
		Kind:        domain.KindTaskRequest,
		ID:          uuid.NewString(),
		From:        o.cfg.LocalAgentID,
		Target:      in.Target,
		Priority:    in.Priority,
		Task:        in.Task,
		Context:     in.Context,
		Constraints: in.Constraints,
		CreatedAt:   now,
	}
	if err := req.Validate(); err != nil {
		return domain.TaskRecord{}, err
	}

	if req.Target == "" {
		if o.router == nil {
			return domain.TaskRecord{}, domain.ErrMissingTarget
		}
		route := o.router.RouteTask(req)
		if !route.Routed {
			return domain.TaskRecord{}, &RouteFailedError{Result: route}
		}
		req.Target = route.SelectedAgentID
	}

	var policy *domain.PolicyDecision
	if o.dispatch != nil {
		dec := o.dispatch.Evaluate(req)
		policy = &dec
		req = dec.Request
		if !dec.Allowed {
			metrics.PolicyDenials.Inc()
			o.recordAudit("task_denied_by_policy", now, map[string]any{
				"taskId":  req.ID,
				"target":  req.Target,
				"reasons": dec.Reasons,
				"task":    req.Task,
			})
			return domain.TaskRecord{}, &PolicyDeniedError{Decision: dec}
		}
	}

	maxRetries := in.MaxRetries
	if maxRetries < 0 {
		maxRetries = o.cfg.MaxRetries
	}
	timeout := in.TimeoutMs
	if timeout <= 0 {
		timeout = o.cfg.DefaultTimeoutMs
	}
	rec := &domain.TaskRecord{
		TaskID:     req.ID,
		Target:     req.Target,
		Request:    req,
		Attempts:   0,
		MaxRetries: maxRetries,
		TimeoutMs:  timeout,
		Policy:     policy,
		CreatedAt:  now,
		UpdatedAt:  now,
		DeadlineAt: now + timeout,
	}

	if o.approval != nil {
		if dec := o.approval.Evaluate(req); dec.Required {
			rec.Status = domain.StatusAwaitingApproval
			rec.Approval = &domain.Approval{
				Status:        domain.ApprovalPending,
				ReviewerGroup: dec.ReviewerGroup,
				Reason:        dec.Reason,
				MatchedRules:  dec.MatchedRules,
				RequestedAt:   now,
			}
			rec.AppendHistory(now, "awaiting_approval", 0, dec.Reason)

			o.mu.Lock()
			o.tasks[rec.TaskID] = rec
			o.mu.Unlock()

			if err := o.persist(rec); err != nil {
				return *rec, err
			}
			metrics.TasksAwaitingApproval.Inc()
			o.recordAudit("task_awaiting_approval", now, map[string]any{
				"taskId":        rec.TaskID,
				"target":        rec.Target,
				"reviewerGroup": dec.ReviewerGroup,
				"matchedRules":  dec.MatchedRules,
			})
			return *rec, nil
		}
	}

	o.mu.Lock()
	o.tasks[rec.TaskID] = rec
	o.mu.Unlock()

	if err := o.sendTask(ctx, rec); err != nil {
		return *rec, err
	}
	return *rec, nil
}

// Review resolves an awaiting_approval task. Approval sends it out on its
// first attempt; denial is terminal.
func (o *Orchestrator) Review(ctx context.Context, taskID string, approved bool, reviewer, reason string) (domain.TaskRecord, error) {
	now := o.now()

	o.mu.Lock()
	rec, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return domain.TaskRecord{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if rec.Status != domain.StatusAwaitingApproval || rec.Approval == nil {
		o.mu.Unlock()
		return *rec, fmt.Errorf("%w: %s is %s", domain.ErrNotAwaitingApproval, taskID, rec.Status)
	}
	rec.Approval.ReviewedAt = now
	rec.Approval.Reviewer = reviewer
	rec.Approval.ReviewReason = reason
	o.mu.Unlock()

	metrics.TasksAwaitingApproval.Dec()

	if !approved {
		rec.Approval.Status = domain.ApprovalDenied
		o.close(rec, domain.StatusFailed, now, "approval denied: "+reason)
		o.recordAudit("task_approval_denied", now, map[string]any{
			"taskId": taskID, "reviewer": reviewer, "reason": reason,
		})
		return *rec, o.persist(rec)
	}

	rec.Approval.Status = domain.ApprovalApproved
	rec.AppendHistory(now, "approved", 0, reviewer)
	o.recordAudit("task_approved", now, map[string]any{
		"taskId": taskID, "reviewer": reviewer, "reason": reason,
	})
	if err := o.sendTask(ctx, rec); err != nil {
		return *rec, err
	}
	return *rec, nil
}

// sendTask performs one transport attempt and applies the outcome to the
// record. Attempts only ever increases, and crossing maxRetries is the
// only path into failed here. The transport call runs unlocked, so a
// result may land and close the task mid-send; the terminal state wins
// and the send outcome is recorded as history only.
func (o *Orchestrator) sendTask(ctx context.Context, rec *domain.TaskRecord) error {
	now := o.now()

	o.mu.Lock()
	if rec.Status.Terminal() {
		o.mu.Unlock()
		return nil
	}
	rec.Attempts++
	attempt := rec.Attempts
	timeout := rec.TimeoutMs
	o.mu.Unlock()
	if timeout <= 0 {
		timeout = o.cfg.DefaultTimeoutMs
	}

	err := o.transport.Send(ctx, rec.Target, rec.Request)

	o.mu.Lock()
	if rec.Status.Terminal() {
		detail := "send resolved after terminal state"
		if err != nil {
			detail = "send failed after terminal state: " + err.Error()
		}
		rec.AppendHistory(now, "late_send", attempt, detail)
		o.mu.Unlock()
		return o.persist(rec)
	}
	rec.UpdatedAt = now
	if err == nil {
		rec.Status = domain.StatusDispatched
		rec.NextRetryAt = 0
		rec.DeadlineAt = now + timeout
		rec.AppendHistory(now, "dispatched", attempt, "")
		o.mu.Unlock()

		metrics.TasksDispatched.WithLabelValues(string(rec.Request.Priority)).Inc()
		o.recordAudit("task_dispatched", now, map[string]any{
			"taskId": rec.TaskID, "target": rec.Target, "attempt": attempt,
		})
		return o.persist(rec)
	}

	rec.LastError = err.Error()
	if attempt > rec.MaxRetries {
		o.mu.Unlock()
		o.close(rec, domain.StatusFailed, now, fmt.Sprintf("transport failed after %d attempt(s): %v", attempt, err))
		o.recordAudit("task_failed", now, map[string]any{
			"taskId": rec.TaskID, "target": rec.Target, "attempts": attempt, "error": err.Error(),
		})
		return o.persist(rec)
	}

	rec.Status = domain.StatusRetryScheduled
	rec.NextRetryAt = now + o.cfg.RetryDelayMs
	rec.AppendHistory(now, "retry_scheduled", attempt, err.Error())
	o.mu.Unlock()

	metrics.TaskRetries.Inc()
	o.recordAudit("task_retry_scheduled", now, map[string]any{
		"taskId": rec.TaskID, "target": rec.Target, "attempt": attempt, "error": err.Error(),
	})
	return o.persist(rec)
}

// close moves a record into a terminal state. Callers hold no lock.
func (o *Orchestrator) close(rec *domain.TaskRecord, status domain.TaskStatus, now int64, detail string) {
	o.mu.Lock()
	rec.Status = status
	rec.UpdatedAt = now
	rec.ClosedAt = now
	rec.NextRetryAt = 0
	if detail != "" && status != domain.StatusCompleted {
		rec.LastError = detail
	}
	rec.AppendHistory(now, string(status), rec.Attempts, detail)
	o.mu.Unlock()

	metrics.TasksTerminal.WithLabelValues(string(status)).Inc()
}

func (o *Orchestrator) persist(rec *domain.TaskRecord) error {
	if o.store == nil {
		return nil
	}
	o.mu.Lock()
	snapshot := *rec
	o.mu.Unlock()
	if err := o.store.SaveRecord(snapshot); err != nil {
		return fmt.Errorf("persist task %s: %w", rec.TaskID, err)
	}
	return nil
}

func (o *Orchestrator) recordAudit(eventType string, at int64, payload map[string]any) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(domain.AuditEvent{
		EventType: eventType,
		Actor:     o.cfg.LocalAgentID,
		At:        at,
		Payload:   payload,
	}); err != nil {
		log.Printf("[orchestrator] audit %s: %v", eventType, err)
		return
	}
	metrics.AuditEntries.Inc()
}

// sortRecords orders records newest first for listings.
func sortRecords(recs []domain.TaskRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt > recs[j].CreatedAt
		}
		return recs[i].TaskID < recs[j].TaskID
	})
}
