package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/drover/pkg/api"
	"github.com/cuemby/drover/pkg/coordinator"
	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/health"
	"github.com/cuemby/drover/pkg/lifecycle"
	"github.com/cuemby/drover/pkg/poller"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// harness runs the whole coordinator in-process: store, queue, worker
// pool, status poller and REST API, wired the same way cmd/drover wires
// them. Task services are httptest stubs and tests drive everything
// through the API.
type harness struct {
	api *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := storage.NewMemoryStore()
	q := queue.NewMemoryQueue(256)
	broker := events.NewBroker()
	broker.Start()

	lc := lifecycle.NewManager(store, broker, nil)
	caller := remote.NewClient()
	coord := coordinator.New(store, lc, caller, q, 5*time.Second)
	monitor := health.NewMonitor(store, caller, q, time.Hour)

	pool := queue.NewPool(q, 2)
	coord.RegisterHandlers(pool)
	pool.Register(queue.KindHealthCheck, monitor.HandleHealthCheck)
	pool.Start()

	statusPoller := poller.New(store, q, 50*time.Millisecond)
	statusPoller.Start()

	server := api.NewServer(api.Options{
		Store:       store,
		Lifecycle:   lc,
		Coordinator: coord,
		Monitor:     monitor,
		Broker:      broker,
		Queue:       q,
		Version:     "integration",
	})
	ts := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		ts.Close()
		statusPoller.Stop()
		pool.Stop()
		q.Close()
		broker.Stop()
		store.Close()
	})

	return &harness{api: ts}
}

func (h *harness) request(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.api.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) releaseState(t *testing.T, id string) types.ReleaseState {
	t.Helper()
	var release types.Release
	h.request(t, http.MethodGet, "/releases/"+id, nil, &release)
	return release.State
}

func (h *harness) taskStates(t *testing.T, releaseID string) map[string]types.TaskState {
	t.Helper()
	var page struct {
		Results []*types.Task `json:"results"`
	}
	h.request(t, http.MethodGet, "/tasks?release="+releaseID, nil, &page)
	states := make(map[string]types.TaskState, len(page.Results))
	for _, task := range page.Results {
		states[task.TaskServiceID] = task.State
	}
	return states
}

// stubService is a scripted task service. Commands are acknowledged
// with an empty body; get_status replies with whatever the test has
// set, which is how the polling loop learns about remote progress.
// Forward state still travels the way real services deliver it: pushed
// through PATCH /tasks.
type stubService struct {
	mu     sync.Mutex
	state  string
	prog   *int
	fail   bool
	server *httptest.Server
	kfID   string
	h      *harness
}

func newStubService(t *testing.T, h *harness, name string) *stubService {
	t.Helper()
	stub := &stubService{h: h}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		var cmd struct {
			Action string `json:"action"`
		}
		_ = json.NewDecoder(r.Body).Decode(&cmd)

		stub.mu.Lock()
		defer stub.mu.Unlock()
		if stub.fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		reply := map[string]any{}
		if cmd.Action == "get_status" && stub.state != "" {
			reply["state"] = stub.state
			if stub.prog != nil {
				reply["progress"] = *stub.prog
			}
		}
		_ = json.NewEncoder(w).Encode(reply)
	})

	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)

	var svc types.TaskService
	status := h.request(t, http.MethodPost, "/task-services", map[string]any{
		"name": name,
		"url":  stub.server.URL,
	}, &svc)
	require.Equal(t, http.StatusCreated, status)
	stub.kfID = svc.KfID
	return stub
}

// report scripts the state the stub hands back to status polls.
func (s *stubService) report(state string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.prog = &progress
}

func (s *stubService) failRequests(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// push reports a state the way a live service does: PATCH the task and
// answer subsequent polls consistently.
func (s *stubService) push(t *testing.T, releaseID, state string, progress int) {
	t.Helper()
	s.report(state, progress)

	var page struct {
		Results []*types.Task `json:"results"`
	}
	s.h.request(t, http.MethodGet, "/tasks?release="+releaseID, nil, &page)
	for _, task := range page.Results {
		if task.TaskServiceID == s.kfID {
			status := s.h.request(t, http.MethodPatch, "/tasks/"+task.KfID,
				map[string]any{"state": state, "progress": progress}, nil)
			require.Equal(t, http.StatusOK, status)
			return
		}
	}
	t.Fatalf("no task for service %s in release %s", s.kfID, releaseID)
}

// TestReleaseEndToEnd drives a two-service release from creation to
// published with the full stack running: fan-out on the worker pool,
// services pushing state over PATCH /tasks, and the status poller
// ticking alongside without disturbing any of it.
func TestReleaseEndToEnd(t *testing.T) {
	h := newHarness(t)
	warehouse := newStubService(t, h, "warehouse loader")
	portal := newStubService(t, h, "portal etl")

	var release types.Release
	status := h.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "2026-Q3 data freeze",
		"studies": []string{"SD_00000001", "SD_00000002"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)

	// The start fan-out lands just after the release turns running, so
	// wait for the tasks themselves before pushing.
	require.Eventually(t, func() bool {
		if h.releaseState(t, release.KfID) != types.ReleaseStateRunning {
			return false
		}
		states := h.taskStates(t, release.KfID)
		return states[warehouse.kfID] == types.TaskStateRunning &&
			states[portal.kfID] == types.TaskStateRunning
	}, 3*time.Second, 20*time.Millisecond)

	// Both services finish staging; the second push gathers the release.
	warehouse.push(t, release.KfID, "staged", 100)
	portal.push(t, release.KfID, "staged", 100)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStateStaged
	}, 3*time.Second, 20*time.Millisecond)

	states := h.taskStates(t, release.KfID)
	assert.Equal(t, types.TaskStateStaged, states[warehouse.kfID])
	assert.Equal(t, types.TaskStateStaged, states[portal.kfID])

	var publishing types.Release
	status = h.request(t, http.MethodPost, "/releases/"+release.KfID+"/publish", nil, &publishing)
	require.Equal(t, http.StatusOK, status)

	// The publish fan-out runs on the pool; wait for it to reach the tasks.
	require.Eventually(t, func() bool {
		states := h.taskStates(t, release.KfID)
		return states[warehouse.kfID] == types.TaskStatePublishing &&
			states[portal.kfID] == types.TaskStatePublishing
	}, 3*time.Second, 20*time.Millisecond)

	warehouse.push(t, release.KfID, "published", 100)
	portal.push(t, release.KfID, "published", 100)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStatePublished
	}, 3*time.Second, 20*time.Millisecond)
}

// TestPollingTracksRemoteProgress checks the poll loop pulls progress
// from get_status replies on its own, with no push from the service.
func TestPollingTracksRemoteProgress(t *testing.T) {
	h := newHarness(t)
	warehouse := newStubService(t, h, "warehouse loader")

	var release types.Release
	status := h.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStateRunning
	}, 3*time.Second, 20*time.Millisecond)

	warehouse.report("running", 40)

	require.Eventually(t, func() bool {
		var page struct {
			Results []*types.Task `json:"results"`
		}
		h.request(t, http.MethodGet, "/tasks?release="+release.KfID, nil, &page)
		return len(page.Results) == 1 && page.Results[0].Progress == 40
	}, 3*time.Second, 20*time.Millisecond)
}

// TestServiceFailureAbortsRelease checks the coupling rule: one task
// failing takes the whole release down and cancels its siblings.
func TestServiceFailureAbortsRelease(t *testing.T) {
	h := newHarness(t)
	warehouse := newStubService(t, h, "warehouse loader")
	portal := newStubService(t, h, "portal etl")

	var release types.Release
	status := h.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "doomed",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStateRunning
	}, 3*time.Second, 20*time.Millisecond)

	warehouse.report("failed", 30)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStateFailed
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		states := h.taskStates(t, release.KfID)
		return states[warehouse.kfID] == types.TaskStateFailed &&
			states[portal.kfID] == types.TaskStateCanceled
	}, 3*time.Second, 20*time.Millisecond)
}

// TestUnreachableServiceAbortsRelease checks that a service which stops
// answering takes its release down rather than stalling it forever.
func TestUnreachableServiceAbortsRelease(t *testing.T) {
	h := newHarness(t)
	warehouse := newStubService(t, h, "warehouse loader")

	var release types.Release
	status := h.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStateRunning
	}, 3*time.Second, 20*time.Millisecond)

	warehouse.failRequests(true)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStateCanceled
	}, 5*time.Second, 20*time.Millisecond)
}

// TestTagUpdateSurvivesCoordination checks metadata updates do not race
// the background drivers.
func TestTagUpdateSurvivesCoordination(t *testing.T) {
	h := newHarness(t)
	newStubService(t, h, "warehouse loader")

	var release types.Release
	status := h.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)

	var updated types.Release
	status = h.request(t, http.MethodPatch, "/releases/"+release.KfID, map[string]any{
		"tags": []string{"Needs Review"},
	}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Needs Review"}, updated.Tags)

	require.Eventually(t, func() bool {
		return h.releaseState(t, release.KfID) == types.ReleaseStateRunning
	}, 3*time.Second, 20*time.Millisecond)

	var got types.Release
	h.request(t, http.MethodGet, "/releases/"+release.KfID, nil, &got)
	assert.Equal(t, []string{"Needs Review"}, got.Tags)
}
