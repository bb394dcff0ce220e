package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/drover/pkg/types"
)

// seedNoteRelease creates a release to hang notes from. No services are
// registered in these tests, so it settles on its own in the background.
func seedNoteRelease(t *testing.T, env *testEnv) types.Release {
	t.Helper()
	var release types.Release
	status := env.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)
	return release
}

func TestCreateReleaseNote(t *testing.T) {
	env := newEnv(t)
	release := seedNoteRelease(t, env)

	var note types.ReleaseNote
	status := env.request(t, http.MethodPost, "/release-notes", map[string]any{
		"description": "Ten new studies, embargo lifted on SD_00000001.",
		"release":     release.KfID,
	}, &note)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, note.KfID)
	assert.Equal(t, "admin", note.Author)
	assert.Equal(t, release.KfID, note.ReleaseID)
	assert.Empty(t, note.StudyID)

	var errResp errorResponse
	status = env.request(t, http.MethodPost, "/release-notes", map[string]any{
		"description": "orphan note",
		"release":     "RE_00000000",
	}, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateReleaseNoteValidation(t *testing.T) {
	env := newEnv(t)
	release := seedNoteRelease(t, env)

	var errResp errorResponse
	status := env.request(t, http.MethodPost, "/release-notes", map[string]any{
		"release": release.KfID,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Message, "description must be specified")

	status = env.request(t, http.MethodPost, "/release-notes", map[string]any{
		"description": strings.Repeat("x", types.MaxNoteLength+1),
		"release":     release.KfID,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Message, "description may not exceed 5000 characters")

	// A study reference must exist in the catalog.
	status = env.request(t, http.MethodPost, "/release-notes", map[string]any{
		"description": "note",
		"release":     release.KfID,
		"study":       "SD_99999999",
	}, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListReleaseNotesFilters(t *testing.T) {
	env := newEnv(t)
	release := seedNoteRelease(t, env)
	other := seedNoteRelease(t, env)

	status := env.request(t, http.MethodPost, "/studies", map[string]any{
		"kf_id": "SD_00000001",
		"name":  "study one",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	notes := []map[string]any{
		{"description": "release-wide note", "release": release.KfID},
		{"description": "study note", "release": release.KfID, "study": "SD_00000001"},
		{"description": "other release", "release": other.KfID},
	}
	for _, body := range notes {
		status := env.request(t, http.MethodPost, "/release-notes", body, nil)
		require.Equal(t, http.StatusCreated, status)
	}

	var page struct {
		Results []*types.ReleaseNote `json:"results"`
		Total   int                  `json:"total"`
	}
	env.request(t, http.MethodGet, "/release-notes?release="+release.KfID, nil, &page)
	assert.Equal(t, 2, page.Total)

	env.request(t, http.MethodGet, "/release-notes?study=SD_00000001", nil, &page)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "study note", page.Results[0].Description)

	env.request(t, http.MethodGet, "/release-notes", nil, &page)
	assert.Equal(t, 3, page.Total)
}

func TestUpdateReleaseNote(t *testing.T) {
	env := newEnv(t)
	release := seedNoteRelease(t, env)

	var note types.ReleaseNote
	status := env.request(t, http.MethodPost, "/release-notes", map[string]any{
		"description": "first draft",
		"release":     release.KfID,
		"author":      "curator",
	}, &note)
	require.Equal(t, http.StatusCreated, status)

	var updated types.ReleaseNote
	status = env.request(t, http.MethodPatch, "/release-notes/"+note.KfID, map[string]any{
		"description": "final copy",
	}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "final copy", updated.Description)
	assert.Equal(t, "curator", updated.Author)

	var errResp errorResponse
	status = env.request(t, http.MethodPatch, "/release-notes/"+note.KfID, map[string]any{
		"description": "",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeleteReleaseNote(t *testing.T) {
	env := newEnv(t)
	release := seedNoteRelease(t, env)

	var note types.ReleaseNote
	status := env.request(t, http.MethodPost, "/release-notes", map[string]any{
		"description": "goes away",
		"release":     release.KfID,
	}, &note)
	require.Equal(t, http.StatusCreated, status)

	var deleted types.ReleaseNote
	status = env.request(t, http.MethodDelete, "/release-notes/"+note.KfID, nil, &deleted)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, note.KfID, deleted.KfID)

	var errResp errorResponse
	status = env.request(t, http.MethodGet, "/release-notes/"+note.KfID, nil, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
}
