// Package daemon manages the swarm node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Node         NodeConfig         `toml:"node"`
	API          APIConfig          `toml:"api"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Registry     RegistryConfig     `toml:"registry"`
	Policy       PolicyConfig       `toml:"policy"`
	Transport    TransportConfig    `toml:"transport"`
	Storage      StorageConfig      `toml:"storage"`
	Audit        AuditConfig        `toml:"audit"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
}

// NodeConfig identifies this node on the swarm.
type NodeConfig struct {
	AgentID string `toml:"agent_id"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// OrchestratorConfig tunes the task lifecycle engine.
type OrchestratorConfig struct {
	DefaultTimeoutMs      int64 `toml:"default_timeout_ms"`
	RetryDelayMs          int64 `toml:"retry_delay_ms"`
	MaxRetries            int   `toml:"max_retries"`
	MaintenanceIntervalMs int64 `toml:"maintenance_interval_ms"`
}

// RegistryConfig tunes agent presence tracking.
type RegistryConfig struct {
	MaxStalenessMs  int64 `toml:"max_staleness_ms"`
	PruneIntervalMs int64 `toml:"prune_interval_ms"`
}

// PolicyConfig overrides the built-in policy lists. Empty lists keep the
// defaults.
type PolicyConfig struct {
	BlockedRiskTags     []string `toml:"blocked_risk_tags"`
	BlockedCapabilities []string `toml:"blocked_capabilities"`
	BlockedTaskPatterns []string `toml:"blocked_task_patterns"`
	ApprovalRiskTags    []string `toml:"approval_risk_tags"`
}

// TransportConfig selects how task requests leave this node.
type TransportConfig struct {
	// Mode is "loopback" or "http".
	Mode string `toml:"mode"`
	// Endpoints maps agent ids to base URLs for the http mode.
	Endpoints map[string]string `toml:"endpoints"`
	TimeoutMs int64             `toml:"timeout_ms"`
}

// StorageConfig selects the task store backend.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// AuditConfig controls the signed audit log.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	KeyID   string `toml:"key_id"`
}

// TelemetryConfig controls observability surfaces.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := swarmHome()
	return Config{
		Node: NodeConfig{
			AgentID: "agent:main",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7077,
		},
		Orchestrator: OrchestratorConfig{
			DefaultTimeoutMs:      5 * 60 * 1000,
			RetryDelayMs:          30 * 1000,
			MaxRetries:            2,
			MaintenanceIntervalMs: 5 * 1000,
		},
		Registry: RegistryConfig{
			MaxStalenessMs:  30 * 1000,
			PruneIntervalMs: 60 * 1000,
		},
		Transport: TransportConfig{
			Mode:      "loopback",
			TimeoutMs: 10 * 1000,
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     filepath.Join(homeDir, "data"),
		},
		Audit: AuditConfig{
			Enabled: true,
			KeyID:   "audit-key-1",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from $SWARM_HOME/config.toml, falling back to
// defaults when the file does not exist.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(swarmHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to $SWARM_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(swarmHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// swarmHome returns the swarm data directory.
func swarmHome() string {
	if env := os.Getenv("SWARM_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".swarm")
}

// SwarmHome is exported for use by other packages.
func SwarmHome() string {
	return swarmHome()
}
