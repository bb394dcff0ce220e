package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Job kinds understood by the coordinator. Every job is idempotent and
// delivered at least once; a redelivered job re-checks state and no-ops.
const (
	KindHealthCheck    = "health_check"
	KindInitRelease    = "init_release"
	KindPublishRelease = "publish_release"
	KindCancelRelease  = "cancel_release"
	KindStatusPoll     = "status_poll"
)

// Argument keys carried in Job.Args
const (
	ArgRelease = "release_id"
	ArgTask    = "task_id"
	ArgService = "task_service_id"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained
var ErrClosed = errors.New("queue is closed")

// Job is one unit of background work
type Job struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Args       map[string]string `json:"args"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// NewJob creates a job with a fresh id and enqueue timestamp
func NewJob(kind string, args map[string]string) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Args:       args,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is a FIFO work queue shared by the API, the pollers, and the
// worker pool.
type Queue interface {
	// Enqueue adds a job to the tail of the queue.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue blocks until a job is available, the context is canceled,
	// or the queue is closed.
	Dequeue(ctx context.Context) (*Job, error)

	// Close stops the queue. Jobs already enqueued drain first.
	Close() error
}
