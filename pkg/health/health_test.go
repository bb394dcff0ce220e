package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// fakeCaller scripts probe outcomes without a network
type fakeCaller struct {
	statusErr error
}

func (f *fakeCaller) Status(ctx context.Context, serviceURL string) error {
	return f.statusErr
}

func (f *fakeCaller) Send(ctx context.Context, serviceURL string, cmd remote.Command) (*remote.Response, error) {
	return &remote.Response{}, nil
}

func seedService(t *testing.T, store storage.Store, failures int) *types.TaskService {
	t.Helper()
	service := &types.TaskService{
		KfID:                "TS_00000001",
		Name:                "release coordinator",
		URL:                 "http://release.example",
		ConsecutiveFailures: failures,
		Enabled:             true,
		CreatedAt:           time.Now().UTC(),
	}
	require.NoError(t, store.CreateTaskService(context.Background(), service))
	return service
}

func TestProbeStrikeProgression(t *testing.T) {
	tests := []struct {
		name         string
		startStrikes int
		probeErr     error
		wantStrikes  int
		wantStatus   types.HealthStatus
	}{
		{"healthy stays healthy", 0, nil, 0, types.HealthStatusOK},
		{"first strike", 0, errors.New("connection refused"), 1, types.HealthStatusOK},
		{"third strike still ok", 2, errors.New("connection refused"), 3, types.HealthStatusOK},
		{"fourth strike marks down", 3, errors.New("connection refused"), 4, types.HealthStatusDown},
		{"strikes past threshold", 4, errors.New("connection refused"), 5, types.HealthStatusDown},
		{"recovery resets counter", 3, nil, 0, types.HealthStatusOK},
		{"recovery from down", 5, nil, 0, types.HealthStatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			defer store.Close()
			service := seedService(t, store, tt.startStrikes)

			monitor := NewMonitor(store, &fakeCaller{statusErr: tt.probeErr}, queue.NewMemoryQueue(8), 0)
			require.NoError(t, monitor.Probe(context.Background(), service.KfID))

			stored, err := store.GetTaskService(context.Background(), service.KfID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStrikes, stored.ConsecutiveFailures)
			assert.Equal(t, tt.wantStatus, stored.HealthStatus())
		})
	}
}

func TestProbeAgainstHTTPService(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	store := storage.NewMemoryStore()
	defer store.Close()

	service := &types.TaskService{KfID: "TS_00000002", URL: server.URL, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateTaskService(context.Background(), service))

	monitor := NewMonitor(store, remote.NewClient(), queue.NewMemoryQueue(8), 0)

	status = http.StatusInternalServerError
	require.NoError(t, monitor.Probe(context.Background(), service.KfID))

	stored, err := store.GetTaskService(context.Background(), service.KfID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ConsecutiveFailures)

	status = http.StatusOK
	require.NoError(t, monitor.Probe(context.Background(), service.KfID))

	stored, err = store.GetTaskService(context.Background(), service.KfID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ConsecutiveFailures)
}

func TestProbeUnknownService(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	monitor := NewMonitor(store, &fakeCaller{}, queue.NewMemoryQueue(8), 0)
	err := monitor.Probe(context.Background(), "TS_XXXXXXXX")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestHandleHealthCheckMissingArg(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	monitor := NewMonitor(store, &fakeCaller{}, queue.NewMemoryQueue(8), 0)
	err := monitor.HandleHealthCheck(context.Background(), &queue.Job{Kind: queue.KindHealthCheck})
	require.Error(t, err)
}

func TestSweepEnqueuesPerService(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	for _, id := range []string{"TS_00000001", "TS_00000002", "TS_00000003"} {
		require.NoError(t, store.CreateTaskService(ctx, &types.TaskService{
			KfID: id, URL: "http://" + id + ".example", CreatedAt: time.Now().UTC(),
		}))
	}

	q := queue.NewMemoryQueue(8)
	monitor := NewMonitor(store, &fakeCaller{}, q, 0)
	require.NoError(t, monitor.Sweep(ctx))

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, queue.KindHealthCheck, job.Kind)
		seen[job.Args[queue.ArgService]] = true
	}
	assert.Len(t, seen, 3)
}
