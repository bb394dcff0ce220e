package api

import (
	"net/http"
	"time"

	"github.com/cuemby/drover/pkg/ids"
	"github.com/cuemby/drover/pkg/types"
)

type syncStudyRequest struct {
	KfID          string `json:"kf_id"`
	Name          string `json:"name"`
	Visible       bool   `json:"visible"`
	Deleted       bool   `json:"deleted"`
	LatestVersion string `json:"latest_version"`
}

// syncStudy upserts one catalog entry. Studies are minted upstream; the
// coordinator only mirrors them so releases can be validated and listed
// against a local catalog.
func (s *Server) syncStudy(w http.ResponseWriter, r *http.Request) {
	var req syncStudyRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := ids.ValidateStudy(req.KfID); err != nil {
		s.writeDomainError(w, types.NewValidationError(err.Error()))
		return
	}

	study := &types.Study{
		KfID:          req.KfID,
		Name:          req.Name,
		Visible:       req.Visible,
		Deleted:       req.Deleted,
		LatestVersion: req.LatestVersion,
		CreatedAt:     time.Now().UTC(),
	}
	if existing, err := s.store.GetStudy(r.Context(), req.KfID); err == nil {
		study.CreatedAt = existing.CreatedAt
	}

	if err := s.store.UpsertStudy(r.Context(), study); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, study)
}

func (s *Server) listStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := s.store.ListStudies(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(studies), limit, offset)
	s.writeJSON(w, http.StatusOK, listEnvelope{Results: studies[lo:hi], Limit: limit, Offset: offset, Total: len(studies)})
}

func (s *Server) getStudy(w http.ResponseWriter, r *http.Request) {
	study, err := s.store.GetStudy(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, study)
}
