package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	job := NewJob(KindInitRelease, map[string]string{ArgRelease: "RE_00000000"})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, KindInitRelease, job.Kind)
	assert.Equal(t, "RE_00000000", job.Args[ArgRelease])
	assert.WithinDuration(t, time.Now().UTC(), job.EnqueuedAt, time.Minute)
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, &Job{ID: id, Kind: KindStatusPoll}))
	}

	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
	}
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueCloseDrains(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "b"}))
	require.NoError(t, q.Close())

	// Buffered jobs drain before the closed error surfaces.
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", job.ID)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, q.Enqueue(ctx, &Job{ID: "c"}), ErrClosed)
}

func waitForJob(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
		return ""
	}
}

func TestPoolDispatchesByKind(t *testing.T) {
	q := NewMemoryQueue(8)
	pool := NewPool(q, 2)

	polls := make(chan string, 8)
	checks := make(chan string, 8)
	pool.Register(KindStatusPoll, func(ctx context.Context, job *Job) error {
		polls <- job.Args[ArgTask]
		return nil
	})
	pool.Register(KindHealthCheck, func(ctx context.Context, job *Job) error {
		checks <- job.Args[ArgService]
		return nil
	})

	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewJob(KindStatusPoll, map[string]string{ArgTask: "TA_00000001"})))
	require.NoError(t, q.Enqueue(ctx, NewJob(KindHealthCheck, map[string]string{ArgService: "TS_00000001"})))

	assert.Equal(t, "TA_00000001", waitForJob(t, polls))
	assert.Equal(t, "TS_00000001", waitForJob(t, checks))
}

func TestPoolSurvivesHandlerErrors(t *testing.T) {
	q := NewMemoryQueue(8)
	pool := NewPool(q, 1)

	done := make(chan string, 8)
	pool.Register(KindInitRelease, func(ctx context.Context, job *Job) error {
		return errors.New("remote unavailable")
	})
	pool.Register(KindCancelRelease, func(ctx context.Context, job *Job) error {
		done <- job.ID
		return nil
	})

	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "failing", Kind: KindInitRelease}))
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "after", Kind: KindCancelRelease}))

	assert.Equal(t, "after", waitForJob(t, done))
}

func TestPoolRecoversFromPanic(t *testing.T) {
	q := NewMemoryQueue(8)
	pool := NewPool(q, 1)

	done := make(chan string, 8)
	pool.Register(KindPublishRelease, func(ctx context.Context, job *Job) error {
		panic("boom")
	})
	pool.Register(KindStatusPoll, func(ctx context.Context, job *Job) error {
		done <- job.ID
		return nil
	})

	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "panics", Kind: KindPublishRelease}))
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "next", Kind: KindStatusPoll}))

	assert.Equal(t, "next", waitForJob(t, done))
}

func TestPoolSkipsUnknownKind(t *testing.T) {
	q := NewMemoryQueue(8)
	pool := NewPool(q, 1)

	done := make(chan string, 8)
	pool.Register(KindStatusPoll, func(ctx context.Context, job *Job) error {
		done <- job.ID
		return nil
	})

	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "mystery", Kind: "reticulate_splines"}))
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "known", Kind: KindStatusPoll}))

	assert.Equal(t, "known", waitForJob(t, done))
}
