// Package api exposes the swarm orchestrator over HTTP: dispatch and
// task queries, inbound receipts and results, heartbeats, the approval
// queue, and audit chain verification.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swarmlab/swarm/internal/audit"
	"github.com/swarmlab/swarm/internal/orchestrator"
	"github.com/swarmlab/swarm/internal/registry"
)

// Server is the swarm HTTP API server.
type Server struct {
	orch           *orchestrator.Orchestrator
	registry       *registry.Registry
	auditLog       *audit.Log
	metricsEnabled bool
	now            func() int64
}

// NewServer creates an API server over the orchestration core.
func NewServer(orch *orchestrator.Orchestrator, reg *registry.Registry) *Server {
	return &Server{
		orch:     orch,
		registry: reg,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetAuditLog wires the signed audit log for /api/audit endpoints.
func (s *Server) SetAuditLog(l *audit.Log) { s.auditLog = l }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", s.handleDispatch)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/tasks/stats", s.handleTaskStats)

		r.Post("/receipts", s.handleReceipt)
		r.Post("/results", s.handleResult)
		r.Post("/heartbeats", s.handleHeartbeat)

		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/health", s.handleAgentHealth)

		r.Get("/approvals", s.handleApprovalQueue)
		r.Post("/approvals/{id}/review", s.handleReview)

		r.Get("/audit/verify", s.handleAuditVerify)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
