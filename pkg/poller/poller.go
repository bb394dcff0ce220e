package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/storage"
)

// DefaultInterval is how often the poller sweeps for in-flight tasks.
const DefaultInterval = 30 * time.Second

// Poller periodically enqueues a status_poll job for every in-flight
// task. The jobs carry only the task id; the coordinator's poll handler
// does the actual reconciliation.
type Poller struct {
	store    storage.Store
	queue    queue.Queue
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// New creates a poller
func New(store storage.Store, q queue.Queue, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		store:    store,
		queue:    q,
		interval: interval,
		logger:   log.WithComponent("poller"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop
func (p *Poller) Start() {
	p.logger.Info().Dur("interval", p.interval).Msg("Starting status poller")
	go p.run()
}

// Stop halts the sweep loop
func (p *Poller) Stop() {
	close(p.stopCh)
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	if err := p.Sweep(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Poll sweep failed")
	}
}

// Sweep enqueues one status_poll job per in-flight task. A task is in
// flight while it is neither parked at staged nor finished; those
// states are left alone until a publish or cancel moves them.
func (p *Poller) Sweep(ctx context.Context) error {
	tasks, err := p.store.ListTasks(ctx)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, task := range tasks {
		if task.State.Settled() || task.State.Terminal() {
			continue
		}

		job := queue.NewJob(queue.KindStatusPoll, map[string]string{
			queue.ArgTask: task.KfID,
		})
		if err := p.queue.Enqueue(ctx, job); err != nil {
			p.logger.Warn().Err(err).Str("task", task.KfID).Msg("Failed to enqueue status poll")
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		p.logger.Debug().Int("tasks", enqueued).Msg("Status polls enqueued")
	}
	return nil
}
