package metrics

import (
	"context"
	"time"

	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

var releaseStates = []types.ReleaseState{
	types.ReleaseStateWaiting,
	types.ReleaseStateInitializing,
	types.ReleaseStateRunning,
	types.ReleaseStateStaged,
	types.ReleaseStatePublishing,
	types.ReleaseStatePublished,
	types.ReleaseStateCanceling,
	types.ReleaseStateCanceled,
	types.ReleaseStateFailed,
}

var taskStates = []types.TaskState{
	types.TaskStateWaiting,
	types.TaskStateInitialized,
	types.TaskStateRunning,
	types.TaskStateStaged,
	types.TaskStatePublishing,
	types.TaskStatePublished,
	types.TaskStateRejected,
	types.TaskStateFailed,
	types.TaskStateCanceled,
}

var eventTypes = []types.EventType{
	types.EventTypeInfo,
	types.EventTypeWarning,
	types.EventTypeError,
}

// Collector refreshes gauge metrics from the store
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectReleaseMetrics(ctx)
	c.collectTaskMetrics(ctx)
	c.collectServiceMetrics(ctx)
	c.collectEventMetrics(ctx)
}

func (c *Collector) collectReleaseMetrics(ctx context.Context) {
	releases, err := c.store.ListReleases(ctx)
	if err != nil {
		return
	}

	counts := make(map[types.ReleaseState]int)
	for _, release := range releases {
		counts[release.State]++
	}

	// Set every known state so counts that drop to zero reset.
	for _, state := range releaseStates {
		ReleasesTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectTaskMetrics(ctx context.Context) {
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return
	}

	counts := make(map[types.TaskState]int)
	for _, task := range tasks {
		counts[task.State]++
	}

	for _, state := range taskStates {
		TasksTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectServiceMetrics(ctx context.Context) {
	services, err := c.store.ListTaskServices(ctx)
	if err != nil {
		return
	}

	healthy := 0
	for _, service := range services {
		if service.HealthStatus() == types.HealthStatusOK {
			healthy++
		}
	}

	TaskServicesTotal.Set(float64(len(services)))
	TaskServicesHealthy.Set(float64(healthy))
}

func (c *Collector) collectEventMetrics(ctx context.Context) {
	eventList, err := c.store.ListEvents(ctx, storage.EventFilter{})
	if err != nil {
		return
	}

	counts := make(map[types.EventType]int)
	for _, event := range eventList {
		counts[event.Type]++
	}

	for _, eventType := range eventTypes {
		EventsTotal.WithLabelValues(string(eventType)).Set(float64(counts[eventType]))
	}
}
