// Package policy evaluates task requests before dispatch: the dispatch
// policy blocks and redacts, the approval policy decides which human
// reviewer group must sign off. Both return structured decisions instead
// of panicking or throwing; the orchestrator decides what to do with a
// denial.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/swarmlab/swarm/internal/domain"
)

// Denial reason codes.
const (
	CodeBlockedRiskTag     = "blocked_risk_tag"
	CodeBlockedCapability  = "blocked_capability"
	CodeBlockedTaskPattern = "blocked_task_pattern"
	CodeCustomRule         = "custom_rule"
)

// Rule is a caller-supplied dispatch check. Deny returns true to block
// the request, with a human-readable reason.
type Rule struct {
	Name string
	Deny func(req domain.TaskRequest) (bool, string)
}

// redactionPattern pairs a compiled matcher with its replacement marker.
type redactionPattern struct {
	name    string
	re      *regexp.Regexp
	replace string
}

// DispatchConfig holds the blocklists and custom rules for a dispatch
// policy. Zero-value slices fall back to the built-in defaults; pass an
// explicit empty non-nil slice to disable a list.
type DispatchConfig struct {
	BlockedRiskTags     []string
	BlockedCapabilities []string
	BlockedTaskPatterns []string
	Rules               []Rule
}

// DefaultDispatchConfig returns the built-in blocklists.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BlockedRiskTags: []string{
			"malware", "credential_theft", "data_exfiltration", "self_harm",
		},
		BlockedCapabilities: []string{
			"destructive_shell", "credential_access", "mass_messaging",
		},
		BlockedTaskPatterns: []string{
			`(?i)\brm\s+-rf\s+/`,
			`(?i)\bdrop\s+(table|database)\b`,
			`(?i)exfiltrat`,
		},
	}
}

// DispatchPolicy screens task requests for blocked content and redacts
// secrets. Construct with NewDispatchPolicy; the zero value is unusable.
type DispatchPolicy struct {
	blockedTags map[string]struct{}
	blockedCaps map[string]struct{}
	patterns    []*regexp.Regexp
	rules       []Rule
	redactions  []redactionPattern
}

// NewDispatchPolicy compiles the config's patterns. An invalid regex is a
// configuration error, reported rather than ignored.
func NewDispatchPolicy(cfg DispatchConfig) (*DispatchPolicy, error) {
	def := DefaultDispatchConfig()
	if cfg.BlockedRiskTags == nil {
		cfg.BlockedRiskTags = def.BlockedRiskTags
	}
	if cfg.BlockedCapabilities == nil {
		cfg.BlockedCapabilities = def.BlockedCapabilities
	}
	if cfg.BlockedTaskPatterns == nil {
		cfg.BlockedTaskPatterns = def.BlockedTaskPatterns
	}

	p := &DispatchPolicy{
		blockedTags: toSet(cfg.BlockedRiskTags),
		blockedCaps: toSet(cfg.BlockedCapabilities),
		rules:       cfg.Rules,
		redactions:  builtinRedactions(),
	}
	for _, pat := range cfg.BlockedTaskPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("dispatch policy: bad task pattern %q: %w", pat, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// builtinRedactions covers the credential shapes we expect to see pasted
// into task text. Order matters: assignment-style patterns run after the
// concrete key shapes so a sk- key inside "token=..." is already gone.
func builtinRedactions() []redactionPattern {
	return []redactionPattern{
		{"openai_api_key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED:API_KEY]"},
		{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED:AWS_KEY]"},
		{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{8,}`), "[REDACTED:BEARER_TOKEN]"},
		{"key_assignment", regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password|passwd)\b(\s*[=:]\s*)\S+`), "${1}${2}[REDACTED]"},
		{"email_address", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[REDACTED:EMAIL]"},
	}
}

// Evaluate returns the structured verdict for a request. The returned
// decision always carries the redacted request, allowed or not, so the
// caller can persist and audit it without leaking secrets.
func (p *DispatchPolicy) Evaluate(req domain.TaskRequest) domain.PolicyDecision {
	dec := domain.PolicyDecision{Allowed: true}

	for _, tag := range req.Context.RiskTags {
		if _, blocked := p.blockedTags[strings.ToLower(tag)]; blocked {
			dec.Reasons = append(dec.Reasons, domain.PolicyReason{
				Code:   CodeBlockedRiskTag,
				Reason: fmt.Sprintf("risk tag %q is blocked", tag),
			})
		}
	}
	for _, c := range req.Context.RequiredCapabilities {
		if _, blocked := p.blockedCaps[strings.ToLower(c)]; blocked {
			dec.Reasons = append(dec.Reasons, domain.PolicyReason{
				Code:   CodeBlockedCapability,
				Reason: fmt.Sprintf("capability %q is blocked", c),
			})
		}
	}
	for _, re := range p.patterns {
		if re.MatchString(req.Task) {
			dec.Reasons = append(dec.Reasons, domain.PolicyReason{
				Code:   CodeBlockedTaskPattern,
				Reason: fmt.Sprintf("task text matches blocked pattern %q", re.String()),
			})
		}
	}
	for _, rule := range p.rules {
		if deny, why := rule.Deny(req); deny {
			dec.Reasons = append(dec.Reasons, domain.PolicyReason{
				Code:   CodeCustomRule,
				Reason: fmt.Sprintf("%s: %s", rule.Name, why),
			})
		}
	}
	dec.Allowed = len(dec.Reasons) == 0

	// Redaction happens regardless of the verdict.
	dec.Request, dec.Redactions = p.redact(req)
	return dec
}

// redact returns a sanitized copy of the request plus a record of every
// replacement made, by location.
func (p *DispatchPolicy) redact(req domain.TaskRequest) (domain.TaskRequest, []domain.Redaction) {
	var out []domain.Redaction

	req.Task = p.redactString(req.Task, "task", &out)

	if len(req.Constraints) > 0 {
		cs := make([]string, len(req.Constraints))
		for i, c := range req.Constraints {
			cs[i] = p.redactString(c, fmt.Sprintf("constraints[%d]", i), &out)
		}
		req.Constraints = cs
	}

	if len(req.Context.Extra) > 0 {
		extra := make(map[string]string, len(req.Context.Extra))
		for k, v := range req.Context.Extra {
			extra[k] = p.redactString(v, "context.extra."+k, &out)
		}
		req.Context.Extra = extra
	}
	return req, out
}

func (p *DispatchPolicy) redactString(s, path string, out *[]domain.Redaction) string {
	for _, rp := range p.redactions {
		matches := rp.re.FindAllStringIndex(s, -1)
		if len(matches) == 0 {
			continue
		}
		s = rp.re.ReplaceAllString(s, rp.replace)
		*out = append(*out, domain.Redaction{Path: path, Pattern: rp.name, Count: len(matches)})
	}
	return s
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = struct{}{}
	}
	return set
}
