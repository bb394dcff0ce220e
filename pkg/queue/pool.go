package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
)

// Handler processes one job. A returned error marks the job failed; the
// pool logs it and moves on. Handlers must be idempotent because the
// queue delivers at least once.
type Handler func(ctx context.Context, job *Job) error

// Pool runs a fixed set of workers draining a Queue and dispatching jobs
// to registered handlers by kind.
type Pool struct {
	queue    Queue
	workers  int
	logger   zerolog.Logger
	handlers map[string]Handler
	mu       sync.RWMutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPool creates a worker pool over the given queue
func NewPool(queue Queue, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:    queue,
		workers:  workers,
		logger:   log.WithComponent("queue"),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (p *Pool) Register(kind string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = handler
}

// Start launches the workers
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info().Int("workers", p.workers).Msg("Starting worker pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			p.logger.Error().Err(err).Msg("Failed to dequeue job")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		p.dispatch(ctx, job)
	}
}

func (p *Pool) dispatch(ctx context.Context, job *Job) {
	p.mu.RLock()
	handler, ok := p.handlers[job.Kind]
	p.mu.RUnlock()

	logger := log.WithJob(job.Kind, job.ID)

	if !ok {
		logger.Error().Msg("No handler registered for job kind")
		metrics.JobsProcessed.WithLabelValues(job.Kind, "unknown").Inc()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Job handler panicked")
			metrics.JobsProcessed.WithLabelValues(job.Kind, "panic").Inc()
		}
	}()

	start := time.Now()
	if err := handler(ctx, job); err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Job failed")
		metrics.JobsProcessed.WithLabelValues(job.Kind, "error").Inc()
		return
	}

	logger.Debug().Dur("duration", time.Since(start)).Msg("Job completed")
	metrics.JobsProcessed.WithLabelValues(job.Kind, "ok").Inc()
}
