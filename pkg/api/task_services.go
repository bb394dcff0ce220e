package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/drover/pkg/ids"
	"github.com/cuemby/drover/pkg/types"
)

// taskServiceResponse wraps the entity with its derived health.
type taskServiceResponse struct {
	*types.TaskService
	Health types.HealthStatus `json:"health_status"`
}

func serviceResponse(svc *types.TaskService) taskServiceResponse {
	return taskServiceResponse{TaskService: svc, Health: svc.HealthStatus()}
}

type createTaskServiceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Author      string `json:"author"`
}

func (s *Server) createTaskService(w http.ResponseWriter, r *http.Request) {
	var req createTaskServiceRequest
	if !s.decode(w, r, &req) {
		return
	}

	var problems []string
	if req.Name == "" {
		problems = append(problems, "name must be specified")
	}
	if err := validateServiceURL(req.URL); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		s.writeDomainError(w, types.NewValidationError(problems...))
		return
	}
	if req.Author == "" {
		req.Author = defaultAuthor
	}

	service := &types.TaskService{
		KfID:        ids.New(ids.PrefixTaskService),
		UUID:        uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		URL:         req.URL,
		Author:      req.Author,
		Enabled:     true,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateTaskService(r.Context(), service); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("service", service.KfID).Str("url", service.URL).Msg("Task service registered")
	s.writeJSON(w, http.StatusCreated, serviceResponse(service))
}

func (s *Server) listTaskServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListTaskServices(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(services), limit, offset)

	results := make([]taskServiceResponse, 0, hi-lo)
	for _, svc := range services[lo:hi] {
		results = append(results, serviceResponse(svc))
	}
	s.writeJSON(w, http.StatusOK, listEnvelope{Results: results, Limit: limit, Offset: offset, Total: len(services)})
}

func (s *Server) getTaskService(w http.ResponseWriter, r *http.Request) {
	service, err := s.store.GetTaskService(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, serviceResponse(service))
}

type updateTaskServiceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	URL         *string `json:"url"`
	Author      *string `json:"author"`
	Enabled     *bool   `json:"enabled"`
}

func (s *Server) updateTaskService(w http.ResponseWriter, r *http.Request) {
	var req updateTaskServiceRequest
	if !s.decode(w, r, &req) {
		return
	}

	service, err := s.store.GetTaskService(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.URL != nil {
		if err := validateServiceURL(*req.URL); err != nil {
			s.writeDomainError(w, types.NewValidationError(err.Error()))
			return
		}
		service.URL = *req.URL
	}
	if req.Name != nil {
		service.Name = *req.Name
	}
	if req.Description != nil {
		service.Description = *req.Description
	}
	if req.Author != nil {
		service.Author = *req.Author
	}
	if req.Enabled != nil {
		service.Enabled = *req.Enabled
	}

	if err := s.store.UpdateTaskService(r.Context(), service); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, serviceResponse(service))
}

// deleteTaskService removes a service. Its live tasks are canceled
// first, which pulls their releases into the cancel path, then the
// storage cascade drops the rows.
func (s *Server) deleteTaskService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	service, err := s.store.GetTaskService(ctx, r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	tasks, err := s.store.ListTasksByService(ctx, service.KfID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	affected := make(map[string]bool)
	for _, task := range tasks {
		if task.State.Terminal() {
			continue
		}
		if _, err := s.lifecycle.TransitionTask(ctx, task.KfID, types.TransitionCancel); err != nil {
			s.logger.Warn().Err(err).Str("task", task.KfID).Msg("Failed to cancel task of deleted service")
		}
		affected[task.ReleaseID] = true
	}
	for releaseID := range affected {
		s.coordinator.RequestCancel(ctx, releaseID)
	}

	if err := s.store.DeleteTaskService(ctx, service.KfID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Info().
		Str("service", service.KfID).
		Int("releases_canceled", len(affected)).
		Msg("Task service deleted")
	s.writeJSON(w, http.StatusOK, serviceResponse(service))
}

// triggerHealthSweep enqueues one health check per registered service.
func (s *Server) triggerHealthSweep(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "health monitor not running")
		return
	}
	if err := s.monitor.Sweep(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "health checks enqueued"})
}

func validateServiceURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%s is not a valid url", raw)
	}
	return nil
}
