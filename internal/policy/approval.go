package policy

import (
	"fmt"
	"strings"

	"github.com/swarmlab/swarm/internal/domain"
)

// Reviewer groups, ordered by authority.
const (
	LevelNone      = "none"
	LevelTeamLead  = "team-lead"
	LevelSecurity  = "security"
	LevelExecutive = "executive"
)

var levelRank = map[string]int{
	LevelNone:      0,
	LevelTeamLead:  1,
	LevelSecurity:  2,
	LevelExecutive: 3,
}

// IsApprovalSatisfied reports whether the approvals granted so far cover
// the required level. A requirement of none is always satisfied; unknown
// granted levels are ignored rather than counted; an unknown required
// level is never satisfied.
func IsApprovalSatisfied(required string, granted ...string) bool {
	if required == LevelNone {
		return true
	}
	r, ok := levelRank[required]
	if !ok {
		return false
	}
	maxGranted := levelRank[LevelNone]
	for _, g := range granted {
		if rank, known := levelRank[g]; known && rank > maxGranted {
			maxGranted = rank
		}
	}
	return maxGranted >= r
}

// RiskMetadata is the planner-supplied risk assessment for a change.
type RiskMetadata struct {
	RiskTier   string   `json:"riskTier"`
	Confidence *float64 `json:"confidence,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
}

// ValidateRiskMetadata rejects malformed risk metadata. Fail-closed:
// anything missing or out of range is an error, never downgraded to a
// permissive default.
func ValidateRiskMetadata(m RiskMetadata) error {
	switch m.RiskTier {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("%w: unknown risk tier %q", domain.ErrFailClosed, m.RiskTier)
	}
	if m.Confidence == nil {
		return fmt.Errorf("%w: risk tier %s has no confidence", domain.ErrFailClosed, m.RiskTier)
	}
	if *m.Confidence < 0 || *m.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", domain.ErrFailClosed, *m.Confidence)
	}
	if len(m.Evidence) == 0 {
		return fmt.Errorf("%w: %s-tier assessment lists no evidence", domain.ErrFailClosed, m.RiskTier)
	}
	return nil
}

// ApprovalGateResult is the reviewer requirement derived from a risk
// assessment.
type ApprovalGateResult struct {
	Required bool   `json:"required"`
	Level    string `json:"level"`
	Reason   string `json:"reason"`
}

// DetermineApprovalRequirement maps a validated risk assessment to the
// reviewer group that must sign off:
//
//	critical                               → executive
//	high                                   → security
//	medium, low confidence or no rollback  → team-lead
//	otherwise                              → none
func DetermineApprovalRequirement(tier string, confidence float64, hasRollback bool) ApprovalGateResult {
	switch tier {
	case "critical":
		return ApprovalGateResult{
			Required: true,
			Level:    LevelExecutive,
			Reason:   "critical-risk changes require executive approval",
		}
	case "high":
		return ApprovalGateResult{
			Required: true,
			Level:    LevelSecurity,
			Reason:   "high-risk changes require security approval",
		}
	case "medium":
		if confidence < 0.6 || !hasRollback {
			return ApprovalGateResult{
				Required: true,
				Level:    LevelTeamLead,
				Reason:   "medium-risk changes require team-lead approval when confidence is low or rollback is missing",
			}
		}
	}
	return ApprovalGateResult{
		Required: false,
		Level:    LevelNone,
		Reason:   "no approval gate required",
	}
}

// ApprovalConfig tunes the dispatch-time approval policy.
type ApprovalConfig struct {
	// ApprovalRiskTags force a security review when present on a request.
	ApprovalRiskTags []string
}

// DefaultApprovalConfig returns the built-in review-triggering tags.
func DefaultApprovalConfig() ApprovalConfig {
	return ApprovalConfig{
		ApprovalRiskTags: []string{"production", "data_deletion", "financial", "external_comms"},
	}
}

// ApprovalPolicy decides at dispatch time whether a request must wait for
// a human.
type ApprovalPolicy struct {
	riskTags map[string]struct{}
}

// NewApprovalPolicy builds a policy from config. A nil tag list falls
// back to the defaults.
func NewApprovalPolicy(cfg ApprovalConfig) *ApprovalPolicy {
	if cfg.ApprovalRiskTags == nil {
		cfg.ApprovalRiskTags = DefaultApprovalConfig().ApprovalRiskTags
	}
	return &ApprovalPolicy{riskTags: toSet(cfg.ApprovalRiskTags)}
}

// Evaluate returns the approval verdict for a request. Each matched rule
// proposes a reviewer group; the strictest one wins.
func (p *ApprovalPolicy) Evaluate(req domain.TaskRequest) domain.ApprovalDecision {
	dec := domain.ApprovalDecision{ReviewerGroup: LevelNone}
	escalate := func(rule, level string) {
		dec.Required = true
		dec.MatchedRules = append(dec.MatchedRules, rule)
		if levelRank[level] > levelRank[dec.ReviewerGroup] {
			dec.ReviewerGroup = level
		}
	}

	if req.Priority == domain.PriorityCritical {
		escalate("critical_priority", LevelExecutive)
	}
	for _, tag := range req.Context.RiskTags {
		if _, hit := p.riskTags[strings.ToLower(tag)]; hit {
			escalate("risk_tag:"+strings.ToLower(tag), LevelSecurity)
		}
	}
	if req.Context.RequiresHumanApproval {
		escalate("explicit_flag", LevelTeamLead)
	}

	if dec.Required {
		dec.Reason = fmt.Sprintf("requires %s approval (%s)",
			dec.ReviewerGroup, strings.Join(dec.MatchedRules, ", "))
	}
	return dec
}
