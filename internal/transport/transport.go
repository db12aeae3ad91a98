// Package transport delivers task requests to agents. Two implementations
// ship here: an HTTP sender for real fleets and an in-process loopback
// used by tests and single-node setups.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/swarmlab/swarm/internal/domain"
)

// Loopback queues requests in memory. Drain hands the queued requests to
// the caller and resets the queue.
type Loopback struct {
	mu    sync.Mutex
	queue []domain.TaskRequest
}

// NewLoopback returns an empty loopback transport.
func NewLoopback() *Loopback { return &Loopback{} }

// Send implements domain.Transport.
func (l *Loopback) Send(_ context.Context, _ string, req domain.TaskRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, req)
	return nil
}

// Drain returns and clears everything sent so far.
func (l *Loopback) Drain() []domain.TaskRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.queue
	l.queue = nil
	return out
}

// HTTPSender posts task requests to per-agent endpoints. Unknown targets
// and non-2xx responses are send errors, which the orchestrator treats
// as retryable.
type HTTPSender struct {
	mu        sync.Mutex
	endpoints map[string]string
	client    *http.Client
}

// NewHTTPSender builds a sender over an agentID → base URL map.
func NewHTTPSender(endpoints map[string]string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	eps := make(map[string]string, len(endpoints))
	for id, url := range endpoints {
		eps[id] = url
	}
	return &HTTPSender{
		endpoints: eps,
		client:    &http.Client{Timeout: timeout},
	}
}

// SetEndpoint registers or replaces one agent's URL.
func (s *HTTPSender) SetEndpoint(agentID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[agentID] = url
}

// Send implements domain.Transport.
func (s *HTTPSender) Send(ctx context.Context, target string, req domain.TaskRequest) error {
	s.mu.Lock()
	base, ok := s.endpoints[target]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no endpoint registered for %s", target)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/tasks/inbox", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send to %s: status %d", target, resp.StatusCode)
	}
	return nil
}
