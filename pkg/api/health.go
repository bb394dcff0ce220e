package api

import (
	"fmt"
	"net/http"
	"time"
)

// HealthResponse is the liveness check body
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the readiness check body
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements GET /health, a pure liveness check: the
// process is up and serving.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
	})
}

// readyHandler implements GET /ready: the coordinator can actually do
// work. Storage is probed with a real read; the queue and broker are
// checked for presence.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true
	var message string

	if _, err := s.store.ListTaskServices(r.Context()); err != nil {
		checks["storage"] = fmt.Sprintf("error: %v", err)
		ready = false
		message = "Storage not accessible"
	} else {
		checks["storage"] = "ok"
	}

	if s.queue == nil {
		checks["queue"] = "not configured"
		ready = false
		if message == "" {
			message = "Job queue not configured"
		}
	} else {
		checks["queue"] = "ok"
	}

	if s.broker == nil {
		checks["broker"] = "disabled"
	} else {
		checks["broker"] = fmt.Sprintf("%d subscribers", s.broker.SubscriberCount())
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Message:   message,
	})
}
