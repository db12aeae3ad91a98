package planner

import (
	"fmt"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/policy"
)

// Constraint marker attached to requests whose approval is still pending.
const ConstraintHumanApproval = "human-approval-required"

// Block reason codes.
const (
	BlockApprovalPending = "approval_pending"
	BlockApprovalDenied  = "approval_denied"
	BlockGateUnresolved  = "approval_gate_unresolved"
)

// PackageOptions controls how a DAG becomes task requests.
type PackageOptions struct {
	// FromAgentID stamps the from field of every request.
	FromAgentID string
	// DefaultTarget receives tasks with no risk- or owner-specific route.
	DefaultTarget string
	// TargetByRisk routes by the recommendation's risk tier.
	TargetByRisk map[string]string
	// TargetByOwner routes by the recommendation's owner.
	TargetByOwner map[string]string
	// IncludeApprovalPending emits pending-approval tasks as requests
	// carrying the human-approval constraint instead of blocking them.
	IncludeApprovalPending bool
	// CreatedAtBase is the timestamp of the first request; each later
	// request gets base plus its position, keeping creation order total.
	CreatedAtBase int64
	// Constraints are appended to every request.
	Constraints []string
}

// BlockedTask is a DAG node the packager refused to emit.
type BlockedTask struct {
	Task   Task   `json:"task"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// PackageStats aggregates one packaging run.
type PackageStats struct {
	Requested int `json:"requested"`
	Blocked   int `json:"blocked"`
}

// Packaged is the packager's output.
type Packaged struct {
	Requests []domain.TaskRequest `json:"requests"`
	Blocked  []BlockedTask        `json:"blocked"`
	Stats    PackageStats         `json:"stats"`
}

// Package converts a compiled DAG into dispatchable task requests in
// dispatch order. Each request carries a policy gate describing how the
// approval decision was resolved; tasks whose gate cannot pass are
// returned as blocked rather than silently dropped.
func Package(dag *Dag, opts PackageOptions) (Packaged, error) {
	if err := dag.Validate(); err != nil {
		return Packaged{}, err
	}
	if opts.FromAgentID == "" {
		opts.FromAgentID = "agent:planner"
	}

	var out Packaged
	for _, task := range dag.TasksInDispatchOrder() {
		rec := task.Recommendation

		gate := domain.PolicyGate{
			RiskTier:              rec.RiskTier,
			RequiresHumanApproval: rec.RequiresHumanApproval,
			ApprovalStatus:        rec.ApprovalStatus,
			ApprovalMarkerPresent: rec.ApprovalStatus != "",
		}

		if rec.RequiresHumanApproval {
			switch rec.ApprovalStatus {
			case "approved":
				gate.GatePassed = true
			case "denied":
				out.Blocked = append(out.Blocked, BlockedTask{
					Task: task, Reason: BlockApprovalDenied,
					Detail: fmt.Sprintf("recommendation %s was denied", rec.ID),
				})
				continue
			case "pending", "":
				if !opts.IncludeApprovalPending {
					reason := BlockApprovalPending
					if rec.ApprovalStatus == "" {
						reason = BlockGateUnresolved
					}
					out.Blocked = append(out.Blocked, BlockedTask{
						Task: task, Reason: reason,
						Detail: fmt.Sprintf("recommendation %s awaits approval", rec.ID),
					})
					continue
				}
			default:
				return Packaged{}, fmt.Errorf("%w: recommendation %s approval status %q",
					domain.ErrInvalidDag, rec.ID, rec.ApprovalStatus)
			}
		} else {
			gate.GatePassed = true
		}

		req := domain.TaskRequest{
			Kind:     domain.KindTaskRequest,
			ID:       task.TaskID,
			From:     opts.FromAgentID,
			Target:   targetFor(rec, opts),
			Priority: task.Priority,
			Task:     taskText(task),
			Context: domain.TaskContext{
				RequiredCapabilities:        rec.RequiredCapabilities,
				RiskTags:                    rec.RiskTags,
				RequiresHumanApproval:       rec.RequiresHumanApproval,
				RecommendationID:            rec.ID,
				Dependencies:                task.Dependencies,
				DependencyRecommendationIDs: task.DependencyRecommendationIDs,
				Actions:                     task.Actions,
				SuccessCriteria:             task.SuccessCriteria,
				PolicyGate:                  &gate,
			},
			Constraints: append([]string(nil), opts.Constraints...),
			CreatedAt:   opts.CreatedAtBase + int64(len(out.Requests)),
		}
		if rec.RequiresHumanApproval && !gate.GatePassed {
			req.Constraints = append(req.Constraints, ConstraintHumanApproval)
		}
		out.Requests = append(out.Requests, req)
	}

	out.Stats = PackageStats{Requested: len(out.Requests), Blocked: len(out.Blocked)}
	return out, nil
}

// targetFor resolves routing precedence: owner route, then risk route,
// then the default target. An empty result leaves target selection to
// the orchestrator's router.
func targetFor(rec Recommendation, opts PackageOptions) string {
	if rec.Owner != "" {
		if t, ok := opts.TargetByOwner[rec.Owner]; ok {
			return t
		}
	}
	if rec.RiskTier != "" {
		if t, ok := opts.TargetByRisk[rec.RiskTier]; ok {
			return t
		}
	}
	return opts.DefaultTarget
}

func taskText(task Task) string {
	if task.Title != "" {
		return task.Title + ": " + task.Description
	}
	return task.Description
}

// GateFromRisk derives a policy gate for a recommendation directly from
// validated risk metadata, for callers that plan outside a compiled DAG.
func GateFromRisk(meta policy.RiskMetadata, hasRollback bool, approvalStatus string) (domain.PolicyGate, error) {
	if err := policy.ValidateRiskMetadata(meta); err != nil {
		return domain.PolicyGate{}, err
	}
	res := policy.DetermineApprovalRequirement(meta.RiskTier, *meta.Confidence, hasRollback)
	gate := domain.PolicyGate{
		RiskTier:              meta.RiskTier,
		RequiresHumanApproval: res.Required,
		ApprovalStatus:        approvalStatus,
		ApprovalMarkerPresent: approvalStatus != "",
	}
	gate.GatePassed = !gate.RequiresHumanApproval || approvalStatus == "approved"
	return gate, nil
}
