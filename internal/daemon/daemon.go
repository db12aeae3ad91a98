package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/swarmlab/swarm/internal/api"
	"github.com/swarmlab/swarm/internal/audit"
	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/infra/metrics"
	"github.com/swarmlab/swarm/internal/orchestrator"
	"github.com/swarmlab/swarm/internal/policy"
	"github.com/swarmlab/swarm/internal/registry"
	"github.com/swarmlab/swarm/internal/store"
	"github.com/swarmlab/swarm/internal/transport"
)

// Daemon is the swarm node runtime. It wires the orchestrator, registry,
// policies, storage, audit log, and HTTP API together.
type Daemon struct {
	Config       Config
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Audit        *audit.Log
	Server       *api.Server

	closeStore func() error
	cancel     context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk config.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	reg := registry.New(registry.Config{
		MaxStalenessMs: cfg.Registry.MaxStalenessMs,
	}, nil)

	var tr domain.Transport
	switch cfg.Transport.Mode {
	case "", "loopback":
		tr = transport.NewLoopback()
	case "http":
		tr = transport.NewHTTPSender(cfg.Transport.Endpoints,
			time.Duration(cfg.Transport.TimeoutMs)*time.Millisecond)
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}

	orch := orchestrator.New(orchestrator.Config{
		LocalAgentID:     cfg.Node.AgentID,
		DefaultTimeoutMs: cfg.Orchestrator.DefaultTimeoutMs,
		RetryDelayMs:     cfg.Orchestrator.RetryDelayMs,
		MaxRetries:       cfg.Orchestrator.MaxRetries,
	}, tr, nil)
	orch.SetRouter(reg)

	dispatchPolicy, err := policy.NewDispatchPolicy(policy.DispatchConfig{
		BlockedRiskTags:     nilIfEmpty(cfg.Policy.BlockedRiskTags),
		BlockedCapabilities: nilIfEmpty(cfg.Policy.BlockedCapabilities),
		BlockedTaskPatterns: nilIfEmpty(cfg.Policy.BlockedTaskPatterns),
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch policy: %w", err)
	}
	orch.SetDispatchPolicy(dispatchPolicy)
	orch.SetApprovalPolicy(policy.NewApprovalPolicy(policy.ApprovalConfig{
		ApprovalRiskTags: nilIfEmpty(cfg.Policy.ApprovalRiskTags),
	}))

	d := &Daemon{Config: cfg, Orchestrator: orch, Registry: reg}

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = filepath.Join(swarmHome(), "data")
	}
	switch cfg.Storage.Backend {
	case "", "file":
		fs, err := store.NewFileStore(filepath.Join(dataDir, "tasks.jsonl"), nil)
		if err != nil {
			return nil, fmt.Errorf("open task journal: %w", err)
		}
		orch.SetStore(fs)
	case "sqlite":
		db, err := store.OpenSQLite(dataDir)
		if err != nil {
			return nil, fmt.Errorf("open task database: %w", err)
		}
		orch.SetStore(db)
		d.closeStore = db.Close
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Audit.Enabled {
		secret, err := audit.LoadOrCreateSecret(swarmHome())
		if err != nil {
			return nil, fmt.Errorf("audit secret: %w", err)
		}
		auditLog, err := audit.New(filepath.Join(dataDir, "audit.jsonl"), secret, cfg.Audit.KeyID, nil)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		d.Audit = auditLog
		orch.SetAudit(auditLog)
	}

	if err := orch.Hydrate(); err != nil {
		return nil, err
	}

	srv := api.NewServer(orch, reg)
	if d.Audit != nil {
		srv.SetAuditLog(d.Audit)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Serve starts the HTTP server and background sweeps, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.maintenanceLoop(ctx)
	go d.pruneLoop(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[daemon] shutdown: %v", err)
		}
	}()

	log.Printf("[daemon] %s listening on %s", d.Config.Node.AgentID, addr)
	err := httpServer.ListenAndServe()

	if d.closeStore != nil {
		if cerr := d.closeStore(); cerr != nil {
			log.Printf("[daemon] close store: %v", cerr)
		}
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop triggers a graceful shutdown.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	interval := time.Duration(d.Config.Orchestrator.MaintenanceIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			sum, err := d.Orchestrator.RunMaintenance(ctx, t.UnixMilli())
			if err != nil {
				log.Printf("[daemon] maintenance: %v", err)
				continue
			}
			if sum.Retried > 0 || sum.TimedOut > 0 {
				log.Printf("[daemon] maintenance: retried=%d timedOut=%d", sum.Retried, sum.TimedOut)
			}
		}
	}
}

func (d *Daemon) pruneLoop(ctx context.Context) {
	interval := time.Duration(d.Config.Registry.PruneIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := d.Registry.PruneStale()
			metrics.AgentsPruned.Add(float64(pruned))
			metrics.AgentsKnown.Set(float64(d.Registry.Health().Total))
		}
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
