package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/drover/pkg/ids"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

type createNoteRequest struct {
	Author      string `json:"author"`
	Description string `json:"description"`
	Release     string `json:"release"`
	Study       string `json:"study"`
}

func (s *Server) createReleaseNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if !s.decode(w, r, &req) {
		return
	}

	if verr := validateNoteDescription(req.Description); verr != nil {
		s.writeDomainError(w, verr)
		return
	}
	if req.Author == "" {
		req.Author = defaultAuthor
	}

	ctx := r.Context()

	// The release must exist; a study reference is optional but must be
	// in the catalog when given.
	if _, err := s.store.GetRelease(ctx, req.Release); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Study != "" {
		if _, err := s.store.GetStudy(ctx, req.Study); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	note := &types.ReleaseNote{
		KfID:        ids.New(ids.PrefixReleaseNote),
		UUID:        uuid.NewString(),
		Author:      req.Author,
		Description: req.Description,
		ReleaseID:   req.Release,
		StudyID:     req.Study,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateReleaseNote(ctx, note); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, note)
}

func (s *Server) listReleaseNotes(w http.ResponseWriter, r *http.Request) {
	filter := storage.NoteFilter{
		Release: r.URL.Query().Get("release"),
		Study:   r.URL.Query().Get("study"),
	}

	notes, err := s.store.ListReleaseNotes(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(notes), limit, offset)
	s.writeJSON(w, http.StatusOK, listEnvelope{Results: notes[lo:hi], Limit: limit, Offset: offset, Total: len(notes)})
}

func (s *Server) getReleaseNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.store.GetReleaseNote(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

type updateNoteRequest struct {
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Study       *string `json:"study"`
}

func (s *Server) updateReleaseNote(w http.ResponseWriter, r *http.Request) {
	var req updateNoteRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()

	note, err := s.store.GetReleaseNote(ctx, r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.Description != nil {
		if verr := validateNoteDescription(*req.Description); verr != nil {
			s.writeDomainError(w, verr)
			return
		}
		note.Description = *req.Description
	}
	if req.Author != nil {
		note.Author = *req.Author
	}
	if req.Study != nil {
		if *req.Study != "" {
			if _, err := s.store.GetStudy(ctx, *req.Study); err != nil {
				s.writeDomainError(w, err)
				return
			}
		}
		note.StudyID = *req.Study
	}

	if err := s.store.UpdateReleaseNote(ctx, note); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) deleteReleaseNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.store.GetReleaseNote(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.store.DeleteReleaseNote(r.Context(), note.KfID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func validateNoteDescription(description string) *types.ValidationError {
	if description == "" {
		return types.NewValidationError("description must be specified")
	}
	if len(description) > types.MaxNoteLength {
		return types.NewValidationError(
			fmt.Sprintf("description may not exceed %d characters", types.MaxNoteLength))
	}
	return nil
}
