// Package registry tracks agent presence from heartbeats and routes tasks
// to capable agents. Presence is entirely heartbeat-derived: an agent that
// stops reporting goes stale and is eventually pruned.
package registry

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/swarmlab/swarm/internal/domain"
)

func wallClockMs() int64 { return time.Now().UnixMilli() }

// Config controls staleness behavior.
type Config struct {
	// MaxStalenessMs is how long after its last heartbeat an agent is
	// still considered routable.
	MaxStalenessMs int64
}

// DefaultConfig returns the registry defaults.
func DefaultConfig() Config {
	return Config{MaxStalenessMs: 30_000}
}

// Registry is an in-memory agent presence table keyed by agent id.
// Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	cfg    Config
	now    func() int64
	agents map[string]domain.AgentPresence
}

// New creates a registry. now supplies the current time in unix millis;
// pass nil outside tests to use the wall clock.
func New(cfg Config, now func() int64) *Registry {
	if cfg.MaxStalenessMs <= 0 {
		cfg.MaxStalenessMs = DefaultConfig().MaxStalenessMs
	}
	if now == nil {
		now = wallClockMs
	}
	return &Registry{
		cfg:    cfg,
		now:    now,
		agents: make(map[string]domain.AgentPresence),
	}
}

// IngestHeartbeat upserts the sender's presence from a heartbeat signal.
// A heartbeat that carries capabilities replaces the stored set; a heartbeat
// without capabilities keeps whatever was previously announced.
func (r *Registry) IngestHeartbeat(hb domain.HeartbeatSignal) error {
	if err := hb.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, known := r.agents[hb.From]
	caps := hb.Capabilities
	if caps == nil && known {
		caps = prev.Capabilities
	}
	r.agents[hb.From] = domain.AgentPresence{
		ID:              hb.From,
		Status:          hb.Status,
		Load:            hb.Load,
		Capabilities:    caps,
		LastHeartbeatAt: hb.Timestamp,
	}
	return nil
}

// Get returns the presence entry for an agent id.
func (r *Registry) Get(id string) (domain.AgentPresence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.agents[id]
	return p, ok
}

// List returns all known agents, fresh and stale, sorted by id.
func (r *Registry) List() []domain.AgentPresence {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.AgentPresence, 0, len(r.agents))
	for _, p := range r.agents {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PruneStale evicts every agent whose last heartbeat is older than the
// staleness window and returns how many were removed.
func (r *Registry) PruneStale() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for id, p := range r.agents {
		if now-p.LastHeartbeatAt > r.cfg.MaxStalenessMs {
			delete(r.agents, id)
			pruned++
		}
	}
	if pruned > 0 {
		log.Printf("[registry] pruned %d stale agent(s), %d remain", pruned, len(r.agents))
	}
	return pruned
}

// HealthSummary aggregates presence into a fleet-level view.
type HealthSummary struct {
	Total    int            `json:"total"`
	Healthy  int            `json:"healthy"`
	Stale    int            `json:"stale"`
	ByStatus map[string]int `json:"byStatus"`
}

// Health summarizes the fleet without evicting anyone.
func (r *Registry) Health() HealthSummary {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sum := HealthSummary{ByStatus: make(map[string]int)}
	for _, p := range r.agents {
		sum.Total++
		sum.ByStatus[string(p.Status)]++
		if now-p.LastHeartbeatAt > r.cfg.MaxStalenessMs {
			sum.Stale++
		} else {
			sum.Healthy++
		}
	}
	return sum
}
