package api

import (
	"net/http"

	"github.com/cuemby/drover/pkg/storage"
)

// listEvents serves the journal, oldest first, with soft-reference
// filters. There are no write endpoints; the journal is append-only and
// owned by the lifecycle manager.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter := storage.EventFilter{
		Release:     r.URL.Query().Get("release"),
		Task:        r.URL.Query().Get("task"),
		TaskService: r.URL.Query().Get("task_service"),
	}

	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(events), limit, offset)
	s.writeJSON(w, http.StatusOK, listEnvelope{Results: events[lo:hi], Limit: limit, Offset: offset, Total: len(events)})
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.GetEvent(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}
