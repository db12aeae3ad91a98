package policy

import (
	"strings"
	"testing"

	"github.com/swarmlab/swarm/internal/domain"
)

func newDefaultDispatch(t *testing.T) *DispatchPolicy {
	t.Helper()
	p, err := NewDispatchPolicy(DispatchConfig{})
	if err != nil {
		t.Fatalf("NewDispatchPolicy: %v", err)
	}
	return p
}

func req(task string) domain.TaskRequest {
	return domain.TaskRequest{
		Kind: domain.KindTaskRequest, ID: "t-1", From: "agent:main",
		Priority: domain.PriorityNormal, Task: task, CreatedAt: 1,
	}
}

// ─── Dispatch policy ────────────────────────────────────────────────────────

func TestEvaluate_AllowsBenignRequest(t *testing.T) {
	p := newDefaultDispatch(t)
	dec := p.Evaluate(req("Summarize yesterday's deployment logs"))
	if !dec.Allowed {
		t.Fatalf("benign request denied: %+v", dec.Reasons)
	}
	if len(dec.Redactions) != 0 {
		t.Errorf("unexpected redactions: %+v", dec.Redactions)
	}
}

func TestEvaluate_DenialReasons(t *testing.T) {
	p := newDefaultDispatch(t)

	tests := []struct {
		name string
		req  domain.TaskRequest
		code string
	}{
		{
			"blocked risk tag",
			func() domain.TaskRequest {
				r := req("audit the binary")
				r.Context.RiskTags = []string{"Malware"}
				return r
			}(),
			CodeBlockedRiskTag,
		},
		{
			"blocked capability",
			func() domain.TaskRequest {
				r := req("clean up old hosts")
				r.Context.RequiredCapabilities = []string{"destructive_shell"}
				return r
			}(),
			CodeBlockedCapability,
		},
		{
			"blocked task pattern",
			req("run rm -rf / on the staging box"),
			CodeBlockedTaskPattern,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := p.Evaluate(tt.req)
			if dec.Allowed {
				t.Fatal("request allowed, want denial")
			}
			found := false
			for _, r := range dec.Reasons {
				if r.Code == tt.code {
					found = true
				}
			}
			if !found {
				t.Errorf("reasons %+v missing code %s", dec.Reasons, tt.code)
			}
		})
	}
}

func TestEvaluate_CustomRule(t *testing.T) {
	p, err := NewDispatchPolicy(DispatchConfig{
		Rules: []Rule{{
			Name: "no_weekend_deploys",
			Deny: func(r domain.TaskRequest) (bool, string) {
				return strings.Contains(r.Task, "deploy"), "deploys are frozen"
			},
		}},
	})
	if err != nil {
		t.Fatalf("NewDispatchPolicy: %v", err)
	}

	dec := p.Evaluate(req("deploy the billing service"))
	if dec.Allowed {
		t.Fatal("custom rule did not deny")
	}
	if dec.Reasons[0].Code != CodeCustomRule {
		t.Errorf("reason code = %s, want %s", dec.Reasons[0].Code, CodeCustomRule)
	}
}

func TestEvaluate_RedactsSecrets(t *testing.T) {
	p := newDefaultDispatch(t)
	r := req("Use key sk-abcdefghijklmnopqrstuvwxyz123456 and email ops@example.com")
	r.Context.Extra = map[string]string{"credentials": "password=hunter2secret"}
	r.Constraints = []string{"auth with Bearer eyJhbGciOiJIUzI1NiJ9.payload"}

	dec := p.Evaluate(r)
	if !dec.Allowed {
		t.Fatalf("request denied: %+v", dec.Reasons)
	}
	if strings.Contains(dec.Request.Task, "sk-abc") {
		t.Error("api key survived redaction")
	}
	if !strings.Contains(dec.Request.Task, "[REDACTED:API_KEY]") {
		t.Errorf("task = %q, missing api key marker", dec.Request.Task)
	}
	if !strings.Contains(dec.Request.Task, "[REDACTED:EMAIL]") {
		t.Errorf("task = %q, missing email marker", dec.Request.Task)
	}
	if strings.Contains(dec.Request.Context.Extra["credentials"], "hunter2") {
		t.Errorf("extra = %q, password survived", dec.Request.Context.Extra["credentials"])
	}
	if strings.Contains(dec.Request.Constraints[0], "eyJ") {
		t.Errorf("constraint = %q, bearer token survived", dec.Request.Constraints[0])
	}
	// Original request is untouched.
	if !strings.Contains(r.Task, "sk-abc") {
		t.Error("input request was mutated")
	}

	paths := map[string]bool{}
	for _, red := range dec.Redactions {
		paths[red.Path] = true
	}
	for _, want := range []string{"task", "context.extra.credentials", "constraints[0]"} {
		if !paths[want] {
			t.Errorf("no redaction recorded at path %s (got %+v)", want, dec.Redactions)
		}
	}
}

func TestEvaluate_DeniedRequestStillRedacted(t *testing.T) {
	p := newDefaultDispatch(t)
	r := req("exfiltrate the dump with token=sk-abcdefghijklmnopqrstuvwxyz")

	dec := p.Evaluate(r)
	if dec.Allowed {
		t.Fatal("request allowed, want denial")
	}
	if strings.Contains(dec.Request.Task, "sk-abc") {
		t.Error("denied request returned unredacted")
	}
}

func TestNewDispatchPolicy_BadPattern(t *testing.T) {
	_, err := NewDispatchPolicy(DispatchConfig{BlockedTaskPatterns: []string{"("}})
	if err == nil {
		t.Fatal("invalid regex accepted")
	}
}

// ─── Approval policy ────────────────────────────────────────────────────────

func TestDetermineApprovalRequirement(t *testing.T) {
	tests := []struct {
		tier         string
		confidence   float64
		rollback     bool
		wantLevel    string
		wantRequired bool
	}{
		{"critical", 0.99, true, LevelExecutive, true},
		{"high", 0.99, true, LevelSecurity, true},
		{"medium", 0.5, true, LevelTeamLead, true},
		{"medium", 0.9, false, LevelTeamLead, true},
		{"medium", 0.9, true, LevelNone, false},
		{"low", 0.1, false, LevelNone, false},
	}
	for _, tt := range tests {
		got := DetermineApprovalRequirement(tt.tier, tt.confidence, tt.rollback)
		if got.Level != tt.wantLevel || got.Required != tt.wantRequired {
			t.Errorf("DetermineApprovalRequirement(%s, %v, %v) = {%v %s}, want {%v %s}",
				tt.tier, tt.confidence, tt.rollback,
				got.Required, got.Level, tt.wantRequired, tt.wantLevel)
		}
		if got.Reason == "" {
			t.Errorf("DetermineApprovalRequirement(%s, ...) has no reason", tt.tier)
		}
		if got.Required != (got.Level != LevelNone) {
			t.Errorf("gate %+v: required disagrees with level", got)
		}
	}
}

func TestIsApprovalSatisfied(t *testing.T) {
	tests := []struct {
		name     string
		required string
		granted  []string
		want     bool
	}{
		{"higher level covers", LevelTeamLead, []string{LevelExecutive}, true},
		{"exact level covers", LevelSecurity, []string{LevelSecurity}, true},
		{"lower level does not", LevelExecutive, []string{LevelSecurity}, false},
		{"none needs nothing", LevelNone, nil, true},
		{"none with empty grant", LevelNone, []string{""}, true},
		{"max of grants wins", LevelSecurity, []string{LevelTeamLead, LevelExecutive}, true},
		{"unknown grants ignored", LevelTeamLead, []string{"manager"}, false},
		{"unknown grant among known", LevelTeamLead, []string{"manager", LevelSecurity}, true},
		{"unknown requirement", "unknown", []string{LevelExecutive}, false},
		{"no grants at all", LevelTeamLead, nil, false},
	}
	for _, tt := range tests {
		if got := IsApprovalSatisfied(tt.required, tt.granted...); got != tt.want {
			t.Errorf("%s: IsApprovalSatisfied(%s, %v) = %v, want %v",
				tt.name, tt.required, tt.granted, got, tt.want)
		}
	}
}

func TestValidateRiskMetadata_FailClosed(t *testing.T) {
	conf := func(v float64) *float64 { return &v }

	valid := RiskMetadata{RiskTier: "high", Confidence: conf(0.8), Evidence: []string{"scan report"}}
	if err := ValidateRiskMetadata(valid); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}

	lowValid := RiskMetadata{RiskTier: "low", Confidence: conf(0.9), Evidence: []string{"lint output"}}
	if err := ValidateRiskMetadata(lowValid); err != nil {
		t.Fatalf("valid low-tier metadata rejected: %v", err)
	}

	bad := []RiskMetadata{
		{RiskTier: "extreme", Confidence: conf(0.5)},
		{RiskTier: "medium"},
		{RiskTier: "medium", Confidence: conf(1.2)},
		{RiskTier: "medium", Confidence: conf(-0.1)},
		{RiskTier: "critical", Confidence: conf(0.9)}, // no evidence
		{RiskTier: "low", Confidence: conf(0.9)},      // evidence required at every tier
		{RiskTier: "medium", Confidence: conf(0.7), Evidence: []string{}},
	}
	for i, m := range bad {
		if err := ValidateRiskMetadata(m); err == nil {
			t.Errorf("case %d: metadata %+v accepted, want fail-closed rejection", i, m)
		}
	}
}

func TestApprovalPolicy_Evaluate(t *testing.T) {
	p := NewApprovalPolicy(ApprovalConfig{})

	r := req("rotate the signing keys")
	dec := p.Evaluate(r)
	if dec.Required {
		t.Fatalf("plain request requires approval: %+v", dec)
	}
	if dec.ReviewerGroup != LevelNone {
		t.Errorf("reviewerGroup = %s, want none", dec.ReviewerGroup)
	}

	r.Priority = domain.PriorityCritical
	r.Context.RiskTags = []string{"production"}
	r.Context.RequiresHumanApproval = true
	dec = p.Evaluate(r)
	if !dec.Required {
		t.Fatal("escalated request does not require approval")
	}
	// Strictest matched rule wins.
	if dec.ReviewerGroup != LevelExecutive {
		t.Errorf("reviewerGroup = %s, want executive", dec.ReviewerGroup)
	}
	if len(dec.MatchedRules) != 3 {
		t.Errorf("matchedRules = %v, want all three rules", dec.MatchedRules)
	}
}
