// Package planner compiles advisor recommendations into a dependency-
// ordered task DAG and packages that DAG into dispatchable task requests.
// Compilation is pure: no clock, no I/O, deterministic task ids.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/swarmlab/swarm/internal/domain"
)

// VerificationPlan lists the checks that prove a recommendation worked.
type VerificationPlan struct {
	Checks []string `json:"checks"`
}

// Recommendation is one advisor-proposed unit of work, before planning.
type Recommendation struct {
	ID                    string            `json:"id"`
	Title                 string            `json:"title,omitempty"`
	Description           string            `json:"description"`
	Priority              domain.Priority   `json:"priority"`
	Owner                 string            `json:"owner,omitempty"`
	RiskTier              string            `json:"riskTier,omitempty"`
	RiskTags              []string          `json:"riskTags,omitempty"`
	RequiredCapabilities  []string          `json:"requiredCapabilities,omitempty"`
	RequiresHumanApproval bool              `json:"requiresHumanApproval,omitempty"`
	ApprovalStatus        string            `json:"approvalStatus,omitempty"`
	DependsOn             []string          `json:"dependsOn,omitempty"`
	Actions               []string          `json:"actions,omitempty"`
	SuccessCriteria       []string          `json:"successCriteria,omitempty"`
	VerificationPlan      *VerificationPlan `json:"verificationPlan,omitempty"`
	RollbackPlan          string            `json:"rollbackPlan,omitempty"`
}

// Task is one compiled DAG node.
type Task struct {
	TaskID                      string          `json:"taskId"`
	RecommendationID            string          `json:"recommendationId"`
	Title                       string          `json:"title,omitempty"`
	Description                 string          `json:"description"`
	Priority                    domain.Priority `json:"priority"`
	Depth                       int             `json:"depth"`
	Dependencies                []string        `json:"dependencies,omitempty"`
	DependencyRecommendationIDs []string        `json:"dependencyRecommendationIds,omitempty"`
	Actions                     []string        `json:"actions,omitempty"`
	SuccessCriteria             []string        `json:"successCriteria,omitempty"`

	// Recommendation retains the source so the packager can apply risk
	// and approval handling without a second lookup.
	Recommendation Recommendation `json:"-"`
}

// Edge points from a prerequisite task to its dependent.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Summary aggregates DAG shape.
type Summary struct {
	TaskCount int `json:"taskCount"`
	EdgeCount int `json:"edgeCount"`
	RootCount int `json:"rootCount"`
	MaxDepth  int `json:"maxDepth"`
}

// Dag is a compiled, validated task graph.
type Dag struct {
	Tasks   []Task  `json:"tasks"`
	Edges   []Edge  `json:"edges"`
	Summary Summary `json:"summary"`
}

// taskNamespace seeds deterministic task ids: compiling the same
// recommendation twice yields the same taskId.
var taskNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("swarm-planner"))

func taskIDFor(recommendationID string) string {
	return uuid.NewSHA1(taskNamespace, []byte(recommendationID)).String()
}

// Compile turns recommendations into a task DAG. It rejects duplicate
// ids, dependencies on unknown recommendations, and cycles (including
// self-dependencies), naming the offending recommendation ids.
func Compile(recs []Recommendation) (*Dag, error) {
	byID := make(map[string]Recommendation, len(recs))
	order := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: recommendation without id", domain.ErrInvalidDag)
		}
		if rec.Description == "" {
			return nil, fmt.Errorf("%w: recommendation %s has no description", domain.ErrInvalidDag, rec.ID)
		}
		if !rec.Priority.Valid() {
			return nil, fmt.Errorf("%w: recommendation %s priority %q", domain.ErrInvalidDag, rec.ID, rec.Priority)
		}
		if _, dup := byID[rec.ID]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateRecommendation, rec.ID)
		}
		byID[rec.ID] = rec
		order = append(order, rec.ID)
	}

	for _, rec := range recs {
		for _, dep := range rec.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", domain.ErrUnknownDependency, rec.ID, dep)
			}
		}
	}
	if cycle := findCycle(order, byID); cycle != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCycleDetected, strings.Join(cycle, " → "))
	}

	depths := make(map[string]int, len(recs))
	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depths[id]; ok {
			return d
		}
		d := 0
		for _, dep := range byID[id].DependsOn {
			if pd := depthOf(dep) + 1; pd > d {
				d = pd
			}
		}
		depths[id] = d
		return d
	}

	dag := &Dag{}
	for _, id := range order {
		rec := byID[id]
		task := Task{
			TaskID:           taskIDFor(id),
			RecommendationID: id,
			Title:            rec.Title,
			Description:      rec.Description,
			Priority:         rec.Priority,
			Depth:            depthOf(id),
			Actions:          rec.Actions,
			SuccessCriteria:  successCriteria(rec),
			Recommendation:   rec,
		}
		for _, dep := range rec.DependsOn {
			task.Dependencies = append(task.Dependencies, taskIDFor(dep))
			task.DependencyRecommendationIDs = append(task.DependencyRecommendationIDs, dep)
			dag.Edges = append(dag.Edges, Edge{From: taskIDFor(dep), To: task.TaskID})
		}
		dag.Tasks = append(dag.Tasks, task)
		if task.Depth == 0 {
			dag.Summary.RootCount++
		}
		if task.Depth > dag.Summary.MaxDepth {
			dag.Summary.MaxDepth = task.Depth
		}
	}
	dag.Summary.TaskCount = len(dag.Tasks)
	dag.Summary.EdgeCount = len(dag.Edges)
	return dag, nil
}

// successCriteria prefers the verification plan's checks over the
// recommendation's own criteria.
func successCriteria(rec Recommendation) []string {
	if rec.VerificationPlan != nil && len(rec.VerificationPlan.Checks) > 0 {
		return rec.VerificationPlan.Checks
	}
	return rec.SuccessCriteria
}

// findCycle runs a colored DFS over dependency edges, returning the
// recommendation ids along the first cycle found.
func findCycle(order []string, byID map[string]Recommendation) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case gray:
				// Slice the stack from the cycle entry point.
				for i, s := range stack {
					if s == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
				return []string{dep, id, dep}
			case white:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range order {
		if color[id] == white {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return nil
}

// Validate re-checks a DAG's structural invariants: unique task ids,
// edges referencing known tasks, and parent depths strictly below child
// depths.
func (d *Dag) Validate() error {
	seen := make(map[string]Task, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.TaskID == "" {
			return fmt.Errorf("%w: task for %s has no id", domain.ErrInvalidDag, t.RecommendationID)
		}
		if _, dup := seen[t.TaskID]; dup {
			return fmt.Errorf("%w: duplicate task id %s", domain.ErrInvalidDag, t.TaskID)
		}
		seen[t.TaskID] = t
	}
	for _, e := range d.Edges {
		from, okF := seen[e.From]
		to, okT := seen[e.To]
		if !okF || !okT {
			return fmt.Errorf("%w: edge %s→%s references unknown task", domain.ErrInvalidDag, e.From, e.To)
		}
		if from.Depth >= to.Depth {
			return fmt.Errorf("%w: edge %s→%s does not increase depth", domain.ErrInvalidDag, e.From, e.To)
		}
	}
	return nil
}

// TasksInDispatchOrder returns tasks sorted by depth, then priority,
// then recommendation id. Prerequisites always come before dependents.
func (d *Dag) TasksInDispatchOrder() []Task {
	out := make([]Task, len(d.Tasks))
	copy(out, d.Tasks)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].RecommendationID < out[j].RecommendationID
	})
	return out
}
