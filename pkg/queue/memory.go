package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue backed by a buffered channel. It is
// the default for single-node deployments and tests.
type MemoryQueue struct {
	jobs   chan *Job
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a memory queue with the given buffer size
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{jobs: make(chan *Job, size)}
}

// Enqueue implements Queue. It blocks while the buffer is full. The read
// lock is held across the send so Close cannot close the channel under a
// blocked sender.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Queue
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, ErrClosed
		}
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Queue. Buffered jobs remain receivable until drained.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.jobs)
	return nil
}
