package registry

import (
	"sort"

	"github.com/swarmlab/swarm/internal/domain"
)

// Ineligibility reason codes surfaced in routing explanations.
const (
	ReasonStaleHeartbeat    = "stale_heartbeat"
	ReasonMissingCapability = "missing_capability"
	ReasonUnavailable       = "unavailable"
)

// RankedAgent is one agent's routing evaluation for a specific request,
// eligible or not. Ineligible agents carry a reason so operators can see
// why nothing was routed.
type RankedAgent struct {
	AgentID             string   `json:"agentId"`
	Status              string   `json:"status"`
	Load                float64  `json:"load"`
	Capabilities        []string `json:"capabilities,omitempty"`
	Eligible            bool     `json:"eligible"`
	Score               float64  `json:"score"`
	Reason              string   `json:"reason,omitempty"`
	MissingCapabilities []string `json:"missingCapabilities,omitempty"`
}

// RouteResult explains one routing attempt. Routed=false is a normal
// outcome, not an error: the fleet may simply have no eligible agent.
type RouteResult struct {
	Routed          bool          `json:"routed"`
	SelectedAgentID string        `json:"selectedAgentId,omitempty"`
	Ranked          []RankedAgent `json:"ranked"`
}

// RouteTask selects the best agent for a request. An agent is eligible
// when its heartbeat is fresh, its announced capabilities cover every
// required capability, and it is not in error or offline. Among eligible
// agents, idle beats busy and lower load wins.
func (r *Registry) RouteTask(req domain.TaskRequest) RouteResult {
	now := r.now()
	required := req.Context.RequiredCapabilities

	r.mu.Lock()
	defer r.mu.Unlock()

	ranked := make([]RankedAgent, 0, len(r.agents))
	for _, p := range r.agents {
		ra := RankedAgent{
			AgentID:      p.ID,
			Status:       string(p.Status),
			Load:         p.Load,
			Capabilities: p.Capabilities,
		}
		switch {
		case now-p.LastHeartbeatAt > r.cfg.MaxStalenessMs:
			ra.Reason = ReasonStaleHeartbeat
		case p.Status == domain.AgentError || p.Status == domain.AgentOffline:
			ra.Reason = ReasonUnavailable
		default:
			if missing := missingCapabilities(required, p.Capabilities); len(missing) > 0 {
				ra.Reason = ReasonMissingCapability
				ra.MissingCapabilities = missing
			} else {
				ra.Eligible = true
				ra.Score = score(p, required)
			}
		}
		ranked = append(ranked, ra)
	}

	// Eligible first by descending score, then ineligible, ties by id
	// so results are deterministic.
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Eligible != b.Eligible {
			return a.Eligible
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.AgentID < b.AgentID
	})

	res := RouteResult{Ranked: ranked}
	if len(ranked) > 0 && ranked[0].Eligible {
		res.Routed = true
		res.SelectedAgentID = ranked[0].AgentID
	}
	return res
}

// score grades an eligible agent. Higher is better. Load dominates the
// status bonus so a lightly loaded busy agent can outrank a saturated
// idle one.
func score(p domain.AgentPresence, required []string) float64 {
	s := 100.0
	s -= p.Load * 60
	switch p.Status {
	case domain.AgentIdle:
		s += 15
	case domain.AgentBusy:
		s -= 5
	}
	s += float64(len(required)) * 20
	return s
}

func missingCapabilities(required, have []string) []string {
	if len(required) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	var missing []string
	for _, c := range required {
		if _, ok := set[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
