package planner

import (
	"errors"
	"strings"
	"testing"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/policy"
)

func rec(id string, deps ...string) Recommendation {
	return Recommendation{
		ID:          id,
		Description: "work for " + id,
		Priority:    domain.PriorityNormal,
		DependsOn:   deps,
	}
}

func mustCompile(t *testing.T, recs ...Recommendation) *Dag {
	t.Helper()
	dag, err := Compile(recs)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return dag
}

// ─── Compile ────────────────────────────────────────────────────────────────

func TestCompile_LinearChain(t *testing.T) {
	dag := mustCompile(t, rec("rec-001"), rec("rec-002", "rec-001"))

	if dag.Summary.TaskCount != 2 || dag.Summary.EdgeCount != 1 || dag.Summary.MaxDepth != 1 {
		t.Errorf("summary = %+v, want 2 tasks, 1 edge, maxDepth 1", dag.Summary)
	}
	if dag.Tasks[0].Depth != 0 || dag.Tasks[1].Depth != 1 {
		t.Errorf("depths = %d,%d, want 0,1", dag.Tasks[0].Depth, dag.Tasks[1].Depth)
	}
	if dag.Edges[0].From != dag.Tasks[0].TaskID || dag.Edges[0].To != dag.Tasks[1].TaskID {
		t.Error("edge does not point from prerequisite to dependent")
	}
	if dag.Tasks[1].DependencyRecommendationIDs[0] != "rec-001" {
		t.Error("dependency recommendation ids not carried")
	}
}

func TestCompile_DeterministicTaskIDs(t *testing.T) {
	a := mustCompile(t, rec("rec-001"))
	b := mustCompile(t, rec("rec-001"))
	if a.Tasks[0].TaskID != b.Tasks[0].TaskID {
		t.Error("same recommendation compiled to different task ids")
	}
	if a.Tasks[0].TaskID == "" {
		t.Error("empty task id")
	}
}

func TestCompile_DiamondDepth(t *testing.T) {
	dag := mustCompile(t,
		rec("a"),
		rec("b", "a"),
		rec("c", "a"),
		rec("d", "b", "c"),
	)
	if dag.Summary.MaxDepth != 2 {
		t.Errorf("maxDepth = %d, want 2", dag.Summary.MaxDepth)
	}
	if dag.Summary.RootCount != 1 {
		t.Errorf("rootCount = %d, want 1", dag.Summary.RootCount)
	}
	if dag.Summary.EdgeCount != 4 {
		t.Errorf("edgeCount = %d, want 4", dag.Summary.EdgeCount)
	}
}

func TestCompile_Rejections(t *testing.T) {
	tests := []struct {
		name string
		recs []Recommendation
		want error
	}{
		{"duplicate id", []Recommendation{rec("a"), rec("a")}, domain.ErrDuplicateRecommendation},
		{"unknown dependency", []Recommendation{rec("a", "ghost")}, domain.ErrUnknownDependency},
		{"self dependency", []Recommendation{rec("a", "a")}, domain.ErrCycleDetected},
		{"cycle", []Recommendation{rec("a", "b"), rec("b", "c"), rec("c", "a")}, domain.ErrCycleDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.recs)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Compile error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompile_CycleErrorNamesRecommendations(t *testing.T) {
	_, err := Compile([]Recommendation{rec("a", "b"), rec("b", "a")})
	if err == nil {
		t.Fatal("cycle accepted")
	}
	for _, id := range []string{"a", "b"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("cycle error %q does not name %s", err, id)
		}
	}
}

func TestCompile_VerificationChecksWin(t *testing.T) {
	r := rec("a")
	r.SuccessCriteria = []string{"looks done"}
	r.VerificationPlan = &VerificationPlan{Checks: []string{"smoke test passes", "error rate flat"}}
	dag := mustCompile(t, r)
	if len(dag.Tasks[0].SuccessCriteria) != 2 || dag.Tasks[0].SuccessCriteria[0] != "smoke test passes" {
		t.Errorf("successCriteria = %v, want verification checks", dag.Tasks[0].SuccessCriteria)
	}

	r.VerificationPlan = nil
	dag = mustCompile(t, r)
	if len(dag.Tasks[0].SuccessCriteria) != 1 || dag.Tasks[0].SuccessCriteria[0] != "looks done" {
		t.Errorf("successCriteria = %v, want recommendation criteria", dag.Tasks[0].SuccessCriteria)
	}
}

func TestValidate_CatchesCorruptedDag(t *testing.T) {
	dag := mustCompile(t, rec("a"), rec("b", "a"))
	if err := dag.Validate(); err != nil {
		t.Fatalf("valid dag rejected: %v", err)
	}

	bad := *dag
	bad.Edges = append(bad.Edges, Edge{From: "missing", To: dag.Tasks[0].TaskID})
	if err := bad.Validate(); err == nil {
		t.Error("edge to unknown task accepted")
	}
}

// ─── Package ────────────────────────────────────────────────────────────────

func TestPackage_OrderAndCreatedAt(t *testing.T) {
	critical := rec("late-critical")
	critical.Priority = domain.PriorityCritical
	dag := mustCompile(t, rec("root"), critical, rec("child", "root"))

	out, err := Package(dag, PackageOptions{
		FromAgentID:   "agent:planner",
		DefaultTarget: "agent:worker-1",
		CreatedAtBase: 10_000,
	})
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if len(out.Requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(out.Requests))
	}

	// Depth first, then priority within a depth.
	ids := []string{
		out.Requests[0].Context.RecommendationID,
		out.Requests[1].Context.RecommendationID,
		out.Requests[2].Context.RecommendationID,
	}
	want := []string{"late-critical", "root", "child"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", ids, want)
		}
	}

	for i, req := range out.Requests {
		if req.CreatedAt != 10_000+int64(i) {
			t.Errorf("request %d createdAt = %d, want base+index", i, req.CreatedAt)
		}
		if err := req.Validate(); err != nil {
			t.Errorf("request %d invalid: %v", i, err)
		}
		if req.Target != "agent:worker-1" {
			t.Errorf("request %d target = %s", i, req.Target)
		}
		if req.Context.PolicyGate == nil || !req.Context.PolicyGate.GatePassed {
			t.Errorf("request %d gate = %+v, want passed", i, req.Context.PolicyGate)
		}
	}
}

func TestPackage_ApprovalPendingBlocks(t *testing.T) {
	gated := rec("gated")
	gated.RequiresHumanApproval = true
	gated.ApprovalStatus = "pending"
	dag := mustCompile(t, rec("free"), gated)

	out, err := Package(dag, PackageOptions{DefaultTarget: "agent:w"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Requests) != 1 || len(out.Blocked) != 1 {
		t.Fatalf("requests %d blocked %d, want 1/1", len(out.Requests), len(out.Blocked))
	}
	if out.Blocked[0].Reason != BlockApprovalPending {
		t.Errorf("block reason = %s", out.Blocked[0].Reason)
	}
	if out.Stats.Requested != 1 || out.Stats.Blocked != 1 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestPackage_IncludeApprovalPending(t *testing.T) {
	gated := rec("gated")
	gated.RequiresHumanApproval = true
	gated.ApprovalStatus = "pending"
	dag := mustCompile(t, gated)

	out, err := Package(dag, PackageOptions{
		DefaultTarget:          "agent:w",
		IncludeApprovalPending: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Requests) != 1 || len(out.Blocked) != 0 {
		t.Fatalf("requests %d blocked %d, want 1/0", len(out.Requests), len(out.Blocked))
	}
	req := out.Requests[0]
	found := false
	for _, c := range req.Constraints {
		if c == ConstraintHumanApproval {
			found = true
		}
	}
	if !found {
		t.Errorf("constraints = %v, missing %s", req.Constraints, ConstraintHumanApproval)
	}
	if req.Context.PolicyGate.GatePassed {
		t.Error("pending gate reported as passed")
	}
}

func TestPackage_ApprovedAndDenied(t *testing.T) {
	approved := rec("ok")
	approved.RequiresHumanApproval = true
	approved.ApprovalStatus = "approved"
	denied := rec("no")
	denied.RequiresHumanApproval = true
	denied.ApprovalStatus = "denied"
	dag := mustCompile(t, approved, denied)

	out, err := Package(dag, PackageOptions{DefaultTarget: "agent:w", IncludeApprovalPending: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Requests) != 1 || out.Requests[0].Context.RecommendationID != "ok" {
		t.Fatalf("requests = %+v", out.Requests)
	}
	if !out.Requests[0].Context.PolicyGate.GatePassed {
		t.Error("approved gate not passed")
	}
	if len(out.Blocked) != 1 || out.Blocked[0].Reason != BlockApprovalDenied {
		t.Errorf("blocked = %+v", out.Blocked)
	}
}

func TestPackage_TargetRouting(t *testing.T) {
	owned := rec("owned")
	owned.Owner = "platform"
	risky := rec("risky")
	risky.RiskTier = "high"
	plain := rec("plain")
	dag := mustCompile(t, owned, risky, plain)

	out, err := Package(dag, PackageOptions{
		DefaultTarget: "agent:default",
		TargetByRisk:  map[string]string{"high": "agent:security"},
		TargetByOwner: map[string]string{"platform": "agent:platform"},
	})
	if err != nil {
		t.Fatal(err)
	}
	targets := map[string]string{}
	for _, req := range out.Requests {
		targets[req.Context.RecommendationID] = req.Target
	}
	want := map[string]string{
		"owned": "agent:platform",
		"risky": "agent:security",
		"plain": "agent:default",
	}
	for id, target := range want {
		if targets[id] != target {
			t.Errorf("%s routed to %s, want %s", id, targets[id], target)
		}
	}
}

func TestGateFromRisk(t *testing.T) {
	conf := func(v float64) *float64 { return &v }

	gate, err := GateFromRisk(policy.RiskMetadata{
		RiskTier: "high", Confidence: conf(0.9), Evidence: []string{"scan report"},
	}, true, "approved")
	if err != nil {
		t.Fatalf("GateFromRisk: %v", err)
	}
	if !gate.RequiresHumanApproval || !gate.GatePassed || !gate.ApprovalMarkerPresent {
		t.Errorf("approved high-risk gate = %+v", gate)
	}

	gate, err = GateFromRisk(policy.RiskMetadata{
		RiskTier: "low", Confidence: conf(0.9), Evidence: []string{"lint output"},
	}, true, "")
	if err != nil {
		t.Fatalf("GateFromRisk: %v", err)
	}
	if gate.RequiresHumanApproval || !gate.GatePassed {
		t.Errorf("low-risk gate = %+v", gate)
	}

	// Metadata without evidence fails closed at any tier.
	if _, err := GateFromRisk(policy.RiskMetadata{
		RiskTier: "low", Confidence: conf(0.9),
	}, true, ""); !errors.Is(err, domain.ErrFailClosed) {
		t.Errorf("evidence-free metadata: err = %v, want fail-closed", err)
	}
}
