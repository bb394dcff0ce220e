package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// DefaultInterval is the default time between health sweeps
const DefaultInterval = 10 * time.Second

// Monitor tracks task service health with a strike counter. Each probe
// hits GET <url>/status; a 2xx clears the counter, anything else adds a
// strike. The derived status flips to down once the counter passes the
// three-strike threshold.
type Monitor struct {
	store    storage.Store
	caller   remote.Caller
	queue    queue.Queue
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewMonitor creates a health monitor
func NewMonitor(store storage.Store, caller remote.Caller, q queue.Queue, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		store:    store,
		caller:   caller,
		queue:    q,
		interval: interval,
		logger:   log.WithComponent("health"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep loop
func (m *Monitor) Start() {
	m.logger.Info().Dur("interval", m.interval).Msg("Starting health monitor")
	go m.run()
}

// Stop stops the sweep loop
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Sweep immediately on start
	m.sweep()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	if err := m.Sweep(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Health sweep failed")
	}
}

// Sweep enqueues one health_check job per registered task service. The
// on-demand endpoint and the ticker both land here.
func (m *Monitor) Sweep(ctx context.Context) error {
	services, err := m.store.ListTaskServices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list task services: %w", err)
	}

	for _, service := range services {
		job := queue.NewJob(queue.KindHealthCheck, map[string]string{
			queue.ArgService: service.KfID,
		})
		if err := m.queue.Enqueue(ctx, job); err != nil {
			m.logger.Warn().Err(err).Str("service", service.KfID).Msg("Failed to enqueue health check")
		}
	}
	return nil
}

// HandleHealthCheck is the job handler for health_check jobs
func (m *Monitor) HandleHealthCheck(ctx context.Context, job *queue.Job) error {
	serviceID, ok := job.Args[queue.ArgService]
	if !ok {
		return fmt.Errorf("health_check job missing %s", queue.ArgService)
	}
	return m.Probe(ctx, serviceID)
}

// Probe checks one service and records the outcome. A failed probe is a
// recorded strike, not a handler error.
func (m *Monitor) Probe(ctx context.Context, serviceID string) error {
	service, err := m.store.GetTaskService(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("failed to load task service: %w", err)
	}

	if err := m.caller.Status(ctx, service.URL); err != nil {
		service.ConsecutiveFailures++
		if uerr := m.store.UpdateTaskService(ctx, service); uerr != nil {
			return fmt.Errorf("failed to persist health strike: %w", uerr)
		}

		if service.ConsecutiveFailures == types.HealthFailureThreshold+1 {
			m.logger.Error().
				Str("service", service.KfID).
				Str("url", service.URL).
				Msg("Task service marked down")
		} else {
			m.logger.Warn().
				Err(err).
				Str("service", service.KfID).
				Int("strikes", service.ConsecutiveFailures).
				Msg("Task service health check failed")
		}
		return nil
	}

	if service.ConsecutiveFailures > 0 {
		service.ConsecutiveFailures = 0
		if err := m.store.UpdateTaskService(ctx, service); err != nil {
			return fmt.Errorf("failed to persist health recovery: %w", err)
		}
		m.logger.Info().Str("service", service.KfID).Msg("Task service recovered")
	}
	return nil
}
