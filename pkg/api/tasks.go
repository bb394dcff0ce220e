package api

import (
	"net/http"

	"github.com/cuemby/drover/pkg/types"
)

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []*types.Task
	var err error

	if releaseID := r.URL.Query().Get("release"); releaseID != "" {
		tasks, err = s.store.ListTasksByRelease(r.Context(), releaseID)
	} else {
		tasks, err = s.store.ListTasks(r.Context())
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(tasks), limit, offset)
	s.writeJSON(w, http.StatusOK, listEnvelope{Results: tasks[lo:hi], Limit: limit, Offset: offset, Total: len(tasks)})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

type updateTaskRequest struct {
	State    *string `json:"state"`
	Progress *int    `json:"progress"`
}

// updateTask is how task services push their side of the story: a state
// change routes through the task state machine (with release coupling
// and the gather), a progress value is persisted clamped. Both may
// arrive in one request; state applies first.
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	taskID := r.PathValue("kf_id")

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.State != nil {
		task, err = s.coordinator.ReportTaskState(ctx, taskID, types.TaskState(*req.State))
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	if req.Progress != nil {
		task, err = s.lifecycle.UpdateTaskProgress(ctx, taskID, *req.Progress)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, task)
}
