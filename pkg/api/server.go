package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/coordinator"
	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/health"
	"github.com/cuemby/drover/pkg/lifecycle"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// defaultAuthor is recorded when a request carries no author.
const defaultAuthor = "admin"

// Pagination bounds for list endpoints.
const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Server exposes the coordinator over REST. All orchestration goes
// through the coordinator and lifecycle manager; handlers never mutate
// release or task state directly.
type Server struct {
	store       storage.Store
	lifecycle   *lifecycle.Manager
	coordinator *coordinator.Coordinator
	monitor     *health.Monitor
	broker      *events.Broker
	queue       queue.Queue
	version     string
	logger      zerolog.Logger
	mux         *http.ServeMux
	httpServer  *http.Server

	streamClients atomic.Int64
}

// Options carries the server's collaborators. Broker and Monitor may be
// nil; the stream endpoint and on-demand sweeps degrade accordingly.
type Options struct {
	Store       storage.Store
	Lifecycle   *lifecycle.Manager
	Coordinator *coordinator.Coordinator
	Monitor     *health.Monitor
	Broker      *events.Broker
	Queue       queue.Queue
	Version     string
}

// NewServer creates the API server and registers its routes
func NewServer(opts Options) *Server {
	s := &Server{
		store:       opts.Store,
		lifecycle:   opts.Lifecycle,
		coordinator: opts.Coordinator,
		monitor:     opts.Monitor,
		broker:      opts.Broker,
		queue:       opts.Queue,
		version:     opts.Version,
		logger:      log.WithComponent("api"),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Task services
	s.mux.HandleFunc("POST /task-services", s.createTaskService)
	s.mux.HandleFunc("GET /task-services", s.listTaskServices)
	s.mux.HandleFunc("GET /task-services/{kf_id}", s.getTaskService)
	s.mux.HandleFunc("PATCH /task-services/{kf_id}", s.updateTaskService)
	s.mux.HandleFunc("DELETE /task-services/{kf_id}", s.deleteTaskService)
	s.mux.HandleFunc("POST /task-services/health_checks", s.triggerHealthSweep)

	// Releases
	s.mux.HandleFunc("POST /releases", s.createRelease)
	s.mux.HandleFunc("GET /releases", s.listReleases)
	s.mux.HandleFunc("GET /releases/{kf_id}", s.getRelease)
	s.mux.HandleFunc("PATCH /releases/{kf_id}", s.updateRelease)
	s.mux.HandleFunc("DELETE /releases/{kf_id}", s.cancelRelease)
	s.mux.HandleFunc("POST /releases/{kf_id}/publish", s.publishRelease)

	// Tasks
	s.mux.HandleFunc("GET /tasks", s.listTasks)
	s.mux.HandleFunc("GET /tasks/{kf_id}", s.getTask)
	s.mux.HandleFunc("PATCH /tasks/{kf_id}", s.updateTask)

	// Events (append-only, read endpoints only)
	s.mux.HandleFunc("GET /events", s.listEvents)
	s.mux.HandleFunc("GET /events/stream", s.streamEvents)
	s.mux.HandleFunc("GET /events/{kf_id}", s.getEvent)

	// Studies
	s.mux.HandleFunc("POST /studies", s.syncStudy)
	s.mux.HandleFunc("GET /studies", s.listStudies)
	s.mux.HandleFunc("GET /studies/{kf_id}", s.getStudy)

	// Release notes
	s.mux.HandleFunc("POST /release-notes", s.createReleaseNote)
	s.mux.HandleFunc("GET /release-notes", s.listReleaseNotes)
	s.mux.HandleFunc("GET /release-notes/{kf_id}", s.getReleaseNote)
	s.mux.HandleFunc("PATCH /release-notes/{kf_id}", s.updateReleaseNote)
	s.mux.HandleFunc("DELETE /release-notes/{kf_id}", s.deleteReleaseNote)

	// Operational surface
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /ready", s.readyHandler)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the full middleware-wrapped handler, for tests and
// for embedding.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.recovered(s.mux))
}

// Start serves the API on addr, blocking until shutdown
func (s *Server) Start(addr string) error {
	// The stream endpoint hijacks its connection on upgrade, so the
	// write timeout does not apply to it.
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("REST API listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// listEnvelope is the wire shape of every list response.
type listEnvelope struct {
	Results any `json:"results"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
	Total   int `json:"total"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Message: message})
}

// writeDomainError maps domain errors onto status codes: validation 400,
// missing entities 404, illegal transitions 409, the rest 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, types.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// parsePage reads limit/offset query parameters with defaults and caps.
func parsePage(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = min(v, maxPageLimit)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// pageBounds clips [offset, offset+limit) to a slice of length total.
func pageBounds(total, limit, offset int) (lo, hi int) {
	lo = min(offset, total)
	hi = min(lo+limit, total)
	return lo, hi
}
