package api

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

	"github.com/cuemby/drover/pkg/coordinator"
	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/health"
	"github.com/cuemby/drover/pkg/lifecycle"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// testEnv wires a full coordinator stack behind an httptest server:
// memory store and queue, a running worker pool, and the REST surface.
type testEnv struct {
	server *httptest.Server
	store  storage.Store
	queue  *queue.MemoryQueue
	broker *events.Broker
	coord  *coordinator.Coordinator
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	q := queue.NewMemoryQueue(256)
	broker := events.NewBroker()
	broker.Start()

	lc := lifecycle.NewManager(store, broker, nil)
	coord := coordinator.New(store, lc, remote.NewClient(), q, time.Minute)
	monitor := health.NewMonitor(store, remote.NewClient(), q, time.Hour)

	pool := queue.NewPool(q, 2)
	coord.RegisterHandlers(pool)
	pool.Register(queue.KindHealthCheck, monitor.HandleHealthCheck)
	pool.Start()

	api := NewServer(Options{
		Store:       store,
		Lifecycle:   lc,
		Coordinator: coord,
		Monitor:     monitor,
		Broker:      broker,
		Queue:       q,
		Version:     "test",
	})
	server := httptest.NewServer(api.Handler())

	t.Cleanup(func() {
		server.Close()
		pool.Stop()
		q.Close()
		broker.Stop()
		store.Close()
	})

	return &testEnv{server: server, store: store, queue: q, broker: broker, coord: coord}
}

// request performs one API call, decoding the JSON response into out
// when it is non-nil, and returns the status code.
func (e *testEnv) request(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) releaseState(t *testing.T, id string) types.ReleaseState {
	t.Helper()
	var release types.Release
	e.request(t, http.MethodGet, "/releases/"+id, nil, &release)
	return release.State
}

// taskServiceStub plays the remote side of the task-service protocol.
type taskServiceStub struct {
	mu       sync.Mutex
	status   int
	reply    map[string]any
	commands []map[string]any
	server   *httptest.Server
}

func newTaskServiceStub(t *testing.T) *taskServiceStub {
	t.Helper()
	stub := &taskServiceStub{status: http.StatusOK, reply: map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		w.WriteHeader(stub.status)
	})
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		var cmd map[string]any
		_ = json.NewDecoder(r.Body).Decode(&cmd)

		stub.mu.Lock()
		defer stub.mu.Unlock()
		stub.commands = append(stub.commands, cmd)
		_ = json.NewEncoder(w).Encode(stub.reply)
	})

	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *taskServiceStub) commandCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

func (s *taskServiceStub) setStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// register creates the stub as a task service through the API.
func (s *taskServiceStub) register(t *testing.T, env *testEnv) taskServiceResponse {
	t.Helper()
	var svc taskServiceResponse
	status := env.request(t, http.MethodPost, "/task-services", map[string]any{
		"name": "portal etl",
		"url":  s.server.URL,
	}, &svc)
	require.Equal(t, http.StatusCreated, status)
	return svc
}

// createRelease makes a release and waits for the init fan-out to land.
func createRelease(t *testing.T, env *testEnv) types.Release {
	t.Helper()
	var release types.Release
	status := env.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, types.ReleaseStateWaiting, release.State)

	require.Eventually(t, func() bool {
		return env.releaseState(t, release.KfID) == types.ReleaseStateRunning
	}, 2*time.Second, 20*time.Millisecond)
	return release
}

func TestReleaseHappyPath(t *testing.T) {
	env := newEnv(t)
	stub := newTaskServiceStub(t)

	svc := stub.register(t, env)
	assert.Equal(t, types.HealthStatusOK, svc.Health)
	assert.True(t, svc.Enabled)

	release := createRelease(t, env)

	// Exactly one task, driven through initialize and start. The start
	// fan-out lands just after the release ticks over, so poll for it.
	var taskList struct {
		Results []*types.Task `json:"results"`
		Total   int           `json:"total"`
	}
	require.Eventually(t, func() bool {
		env.request(t, http.MethodGet, "/tasks?release="+release.KfID, nil, &taskList)
		return taskList.Total == 1 && taskList.Results[0].State == types.TaskStateRunning
	}, 2*time.Second, 20*time.Millisecond)
	task := taskList.Results[0]
	assert.Equal(t, svc.KfID, task.TaskServiceID)
	assert.GreaterOrEqual(t, stub.commandCount(), 2)

	// The service pushes progress.
	var updated types.Task
	status := env.request(t, http.MethodPatch, "/tasks/"+task.KfID,
		map[string]any{"progress": 50}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 50, updated.Progress)

	// The service pushes staged; the release gathers immediately.
	status = env.request(t, http.MethodPatch, "/tasks/"+task.KfID,
		map[string]any{"state": "staged", "progress": 100}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, types.TaskStateStaged, updated.State)
	assert.Equal(t, 100, updated.Progress)
	assert.Equal(t, types.ReleaseStateStaged, env.releaseState(t, release.KfID))

	// Publish moves the release synchronously and the task on the pool.
	var published types.Release
	status = env.request(t, http.MethodPost, "/releases/"+release.KfID+"/publish", nil, &published)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, types.ReleaseStatePublishing, published.State)

	require.Eventually(t, func() bool {
		var got types.Task
		env.request(t, http.MethodGet, "/tasks/"+task.KfID, nil, &got)
		return got.State == types.TaskStatePublishing
	}, 2*time.Second, 20*time.Millisecond)

	status = env.request(t, http.MethodPatch, "/tasks/"+task.KfID,
		map[string]any{"state": "published"}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, types.ReleaseStatePublished, env.releaseState(t, release.KfID))
}

func TestCreateReleaseStudyValidation(t *testing.T) {
	env := newEnv(t)

	var errResp errorResponse
	status := env.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_000", "SD_00000000"},
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Message, "SD_000 is not a valid study kf_id")
	assert.NotContains(t, errResp.Message, "SD_00000000 is not")

	status = env.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{},
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Message, "at least 1 study must be specified")
}

func TestCancelReleaseViaDelete(t *testing.T) {
	env := newEnv(t)
	stub := newTaskServiceStub(t)
	stub.register(t, env)

	release := createRelease(t, env)

	// The cancel job may already have run by the time the handler
	// reloads the entity, so either in-flight state is acceptable.
	var canceled types.Release
	status := env.request(t, http.MethodDelete, "/releases/"+release.KfID, nil, &canceled)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, []types.ReleaseState{
		types.ReleaseStateCanceling,
		types.ReleaseStateCanceled,
	}, canceled.State)

	require.Eventually(t, func() bool {
		return env.releaseState(t, release.KfID) == types.ReleaseStateCanceled
	}, 2*time.Second, 20*time.Millisecond)

	var taskList struct {
		Results []*types.Task `json:"results"`
	}
	env.request(t, http.MethodGet, "/tasks?release="+release.KfID, nil, &taskList)
	require.NotEmpty(t, taskList.Results)
	for _, task := range taskList.Results {
		assert.Equal(t, types.TaskStateCanceled, task.State)
	}

	// The release is canceled, never removed.
	status = env.request(t, http.MethodGet, "/releases/"+release.KfID, nil, &canceled)
	assert.Equal(t, http.StatusOK, status)
}

func TestUpdateReleaseTags(t *testing.T) {
	env := newEnv(t)

	var release types.Release
	status := env.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)

	var updated types.Release
	status = env.request(t, http.MethodPatch, "/releases/"+release.KfID, map[string]any{
		"tags":    []string{"Needs Review", "Data Fix"},
		"studies": []string{"SD_00000001"},
	}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Needs Review", "Data Fix"}, updated.Tags)

	status = env.request(t, http.MethodPatch, "/releases/"+release.KfID, map[string]any{
		"studies": []string{},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status, "studies cannot be emptied")
}

func TestPublishRequiresStaged(t *testing.T) {
	env := newEnv(t)
	stub := newTaskServiceStub(t)
	stub.register(t, env)

	release := createRelease(t, env)

	// The release is still running; publish is refused.
	var errResp errorResponse
	status := env.request(t, http.MethodPost, "/releases/"+release.KfID+"/publish", nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Message, "staged")
}

func TestReleaseWithoutServicesPublishes(t *testing.T) {
	env := newEnv(t)

	var release types.Release
	status := env.request(t, http.MethodPost, "/releases", map[string]any{
		"name":    "R",
		"studies": []string{"SD_00000001"},
	}, &release)
	require.Equal(t, http.StatusCreated, status)

	// Zero registered services: the release stages on its own.
	require.Eventually(t, func() bool {
		return env.releaseState(t, release.KfID) == types.ReleaseStateStaged
	}, 2*time.Second, 20*time.Millisecond)

	var published types.Release
	status = env.request(t, http.MethodPost, "/releases/"+release.KfID+"/publish", nil, &published)
	require.Equal(t, http.StatusOK, status)

	// No tasks to wait for: the publish driver completes it.
	require.Eventually(t, func() bool {
		return env.releaseState(t, release.KfID) == types.ReleaseStatePublished
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReleaseNotFound(t *testing.T) {
	env := newEnv(t)

	var errResp errorResponse
	status := env.request(t, http.MethodGet, "/releases/RE_00000000", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errResp.Message, "not found")
}

func TestTaskStatePushConflicts(t *testing.T) {
	env := newEnv(t)
	stub := newTaskServiceStub(t)
	stub.register(t, env)
	release := createRelease(t, env)

	var taskList struct {
		Results []*types.Task `json:"results"`
	}
	env.request(t, http.MethodGet, "/tasks?release="+release.KfID, nil, &taskList)
	require.Len(t, taskList.Results, 1)
	task := taskList.Results[0]

	// A running task cannot claim published without staging first.
	var errResp errorResponse
	status := env.request(t, http.MethodPatch, "/tasks/"+task.KfID,
		map[string]any{"state": "published"}, &errResp)
	assert.Equal(t, http.StatusConflict, status)

	status = env.request(t, http.MethodPatch, "/tasks/"+task.KfID,
		map[string]any{"state": "definitely not a state"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListReleasesPagination(t *testing.T) {
	env := newEnv(t)

	for i := 0; i < 5; i++ {
		status := env.request(t, http.MethodPost, "/releases", map[string]any{
			"name":    "R",
			"studies": []string{"SD_00000001"},
		}, nil)
		require.Equal(t, http.StatusCreated, status)
	}

	var page struct {
		Results []*types.Release `json:"results"`
		Limit   int              `json:"limit"`
		Offset  int              `json:"offset"`
		Total   int              `json:"total"`
	}
	status := env.request(t, http.MethodGet, "/releases?limit=2&offset=4", nil, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, page.Results, 1)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 4, page.Offset)
	assert.Equal(t, 5, page.Total)

	status = env.request(t, http.MethodGet, "/releases", nil, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, defaultPageLimit, page.Limit)
	assert.Len(t, page.Results, 5)
}
