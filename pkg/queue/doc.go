/*
Package queue provides the background job queue and worker pool that
drive all asynchronous coordination work.

Release orchestration never happens inline with an API request. Requests
enqueue small jobs; a pool of workers drains the queue and dispatches
each job to the handler registered for its kind. Jobs are delivered at
least once, so every handler re-checks state and no-ops when the work is
already done.

# Architecture

	┌───────────────────────── JOB QUEUE ──────────────────────────┐
	│                                                               │
	│  Producers                       Workers                      │
	│  ┌──────────────┐                ┌──────────────────────┐    │
	│  │ API handlers │─┐              │ Pool (N goroutines)  │    │
	│  │ Status poller│ │   Enqueue    │  Dequeue → dispatch  │    │
	│  │ Health sweep │ ├─────────┐    │  by job kind         │    │
	│  │ Job handlers │─┘         │    └──────────▲───────────┘    │
	│  └──────────────┘           │               │                │
	│                     ┌───────▼───────────────┴──────┐         │
	│                     │            Queue             │         │
	│                     │  MemoryQueue: buffered chan  │         │
	│                     │  RedisQueue:  LPUSH / BRPOP  │         │
	│                     └──────────────────────────────┘         │
	└───────────────────────────────────────────────────────────────┘

# Job Kinds

	health_check     probe one task service's /status endpoint
	init_release     fan out initialize and start over a release's tasks
	publish_release  fan out publish over a release's staged tasks
	cancel_release   cancel a release and its non-terminal tasks
	status_poll      ask one task's service for state and progress

Arguments travel as a string map under stable keys (release_id, task_id,
task_service_id).

# Delivery Semantics

  - FIFO, at-least-once. Handlers must be idempotent.
  - A handler error is logged and counted; the job is not retried. The
    periodic pollers re-enqueue the work that still matters.
  - A handler panic is recovered; the worker keeps running.
  - Unknown kinds are logged and dropped.

# Usage

	q := queue.NewMemoryQueue(1024)

	pool := queue.NewPool(q, 8)
	pool.Register(queue.KindStatusPoll, coordinator.HandleStatusPoll)
	pool.Start()
	defer pool.Stop()

	err := q.Enqueue(ctx, queue.NewJob(queue.KindInitRelease, map[string]string{
		queue.ArgRelease: release.KfID,
	}))

For multi-process deployments:

	q, err := queue.NewRedisQueue("localhost:6379", "", 0, "drover:jobs")

# Integration Points

This package integrates with:

  - pkg/coordinator: Registers the release job handlers
  - pkg/health: Registers the health probe handler and sweeps services
  - pkg/poller: Enqueues status_poll jobs on a ticker
  - pkg/api: Enqueues init, publish, and cancel jobs
  - pkg/metrics: Job outcome counters
*/
package queue
