package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/orchestrator"
	"github.com/swarmlab/swarm/internal/report"
)

type dispatchRequest struct {
	Target      string             `json:"target,omitempty"`
	Task        string             `json:"task"`
	Priority    domain.Priority    `json:"priority,omitempty"`
	Context     domain.TaskContext `json:"context,omitempty"`
	Constraints []string           `json:"constraints,omitempty"`
	MaxRetries  *int               `json:"maxRetries,omitempty"`
	TimeoutMs   int64              `json:"timeoutMs,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	in := orchestrator.DispatchInput{
		Target:      body.Target,
		Task:        body.Task,
		Priority:    body.Priority,
		Context:     body.Context,
		Constraints: body.Constraints,
		MaxRetries:  -1,
		TimeoutMs:   body.TimeoutMs,
	}
	if body.MaxRetries != nil {
		in.MaxRetries = *body.MaxRetries
	}

	rec, err := s.orch.Dispatch(r.Context(), in)
	if err != nil {
		var denied *orchestrator.PolicyDeniedError
		if errors.As(err, &denied) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":    "denied by dispatch policy",
				"decision": denied.Decision,
			})
			return
		}
		var unrouted *orchestrator.RouteFailedError
		if errors.As(err, &unrouted) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   "no eligible agent",
				"routing": unrouted.Result,
			})
			return
		}
		if errors.Is(err, domain.ErrInvalidMessage) || errors.Is(err, domain.ErrMissingTarget) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := orchestrator.TaskFilter{
		Status:   domain.TaskStatus(r.URL.Query().Get("status")),
		Target:   r.URL.Query().Get("target"),
		OpenOnly: r.URL.Query().Get("open") == "true",
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.orch.ListTasks(filter)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orch.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Metrics())
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var receipt domain.TaskReceipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.orch.IngestReceipt(receipt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	var result domain.TaskResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.orch.IngestResult(r.Context(), result); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb domain.HeartbeatSignal
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.registry.IngestHeartbeat(hb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.registry.List()})
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Health())
}

func (s *Server) handleApprovalQueue(w http.ResponseWriter, r *http.Request) {
	items := report.ApprovalQueue(s.orch.PendingApprovals(), s.now())
	switch r.URL.Query().Get("format") {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		report.WriteMarkdown(w, items)
	case "table":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		report.WriteTable(w, items)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"queue": items})
	}
}

type reviewRequest struct {
	Approved bool   `json:"approved"`
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var body reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}

	rec, err := s.orch.Review(r.Context(), chi.URLParam(r, "id"), body.Approved, body.Reviewer, body.Reason)
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotAwaitingApproval):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	res, err := s.auditLog.VerifyChain()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
