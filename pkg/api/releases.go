package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/drover/pkg/ids"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/types"
)

type createReleaseRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`
	Studies     []string `json:"studies"`
}

// validateStudies enforces the study list contract: at least one entry,
// every entry a well-formed study kf_id. The messages are load-bearing
// for callers.
func validateStudies(studies []string) *types.ValidationError {
	var problems []string
	if len(studies) == 0 {
		problems = append(problems, "at least 1 study must be specified")
	}
	for _, id := range studies {
		if err := ids.ValidateStudy(id); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return types.NewValidationError(problems...)
	}
	return nil
}

// createRelease persists a release in waiting and enqueues init_release.
// The fan-out to task services happens on the worker pool, never inline.
func (s *Server) createRelease(w http.ResponseWriter, r *http.Request) {
	var req createReleaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Name == "" {
		s.writeDomainError(w, types.NewValidationError("name must be specified"))
		return
	}
	if verr := validateStudies(req.Studies); verr != nil {
		s.writeDomainError(w, verr)
		return
	}
	if req.Author == "" {
		req.Author = defaultAuthor
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	release := &types.Release{
		KfID:        ids.New(ids.PrefixRelease),
		UUID:        uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Author:      req.Author,
		Tags:        req.Tags,
		Studies:     req.Studies,
		State:       types.ReleaseStateWaiting,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateRelease(r.Context(), release); err != nil {
		s.writeDomainError(w, err)
		return
	}

	job := queue.NewJob(queue.KindInitRelease, map[string]string{queue.ArgRelease: release.KfID})
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		s.logger.Error().Err(err).Str("release", release.KfID).Msg("Failed to enqueue init job")
		s.writeError(w, http.StatusInternalServerError, "failed to schedule release")
		return
	}

	s.logger.Info().Str("release", release.KfID).Str("name", release.Name).Msg("Release created")
	s.writeJSON(w, http.StatusCreated, release)
}

func (s *Server) listReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.store.ListReleases(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(releases), limit, offset)
	s.writeJSON(w, http.StatusOK, listEnvelope{Results: releases[lo:hi], Limit: limit, Offset: offset, Total: len(releases)})
}

func (s *Server) getRelease(w http.ResponseWriter, r *http.Request) {
	release, err := s.store.GetRelease(r.Context(), r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, release)
}

type updateReleaseRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Author      *string   `json:"author"`
	Tags        *[]string `json:"tags"`
	Studies     *[]string `json:"studies"`
}

// updateRelease edits release metadata. State never moves through this
// endpoint; publish and delete own those paths. The edit goes through
// the lifecycle manager so it cannot race the background drivers.
func (s *Server) updateRelease(w http.ResponseWriter, r *http.Request) {
	var req updateReleaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Studies != nil {
		if verr := validateStudies(*req.Studies); verr != nil {
			s.writeDomainError(w, verr)
			return
		}
	}

	release, err := s.lifecycle.UpdateReleaseMetadata(r.Context(), r.PathValue("kf_id"), func(release *types.Release) {
		if req.Studies != nil {
			release.Studies = *req.Studies
		}
		if req.Name != nil {
			release.Name = *req.Name
		}
		if req.Description != nil {
			release.Description = *req.Description
		}
		if req.Author != nil {
			release.Author = *req.Author
		}
		if req.Tags != nil {
			release.Tags = *req.Tags
		}
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, release)
}

// cancelRelease implements DELETE /releases/{kf_id}. The release is
// never removed; it is driven to canceled and returned in whatever
// state the cancel request left it.
func (s *Server) cancelRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	release, err := s.store.GetRelease(ctx, r.PathValue("kf_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.coordinator.RequestCancel(ctx, release.KfID)

	release, err = s.store.GetRelease(ctx, release.KfID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, release)
}

// publishRelease moves a staged release to publishing synchronously and
// fans the publish commands out on the worker pool.
func (s *Server) publishRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	release, err := s.lifecycle.TransitionRelease(ctx, r.PathValue("kf_id"), types.TransitionPublish)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			s.writeError(w, http.StatusBadRequest, "release must be staged to publish")
			return
		}
		s.writeDomainError(w, err)
		return
	}

	job := queue.NewJob(queue.KindPublishRelease, map[string]string{queue.ArgRelease: release.KfID})
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("release", release.KfID).Msg("Failed to enqueue publish job")
		s.writeError(w, http.StatusInternalServerError, "failed to schedule publish")
		return
	}

	s.logger.Info().Str("release", release.KfID).Msg("Release publish requested")
	s.writeJSON(w, http.StatusOK, release)
}
