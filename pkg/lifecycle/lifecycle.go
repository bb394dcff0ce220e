package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/ids"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// Manager applies state transitions to releases and tasks. Every
// transition is validated against the state machine, persisted, journaled
// as an Event, and distributed to the broker and the bus emitter.
//
// Work for a release is serialized on a per-release mutex, so concurrent
// job handlers and API requests cannot interleave check-then-write on the
// same release or its tasks.
type Manager struct {
	store   storage.Store
	broker  *events.Broker
	emitter *events.Emitter
	logger  zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a lifecycle manager. Broker and emitter may be nil;
// distribution is skipped for whichever is absent.
func NewManager(store storage.Store, broker *events.Broker, emitter *events.Emitter) *Manager {
	return &Manager{
		store:   store,
		broker:  broker,
		emitter: emitter,
		logger:  log.WithComponent("lifecycle"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// releaseLock returns the mutex serializing work for the given release
func (m *Manager) releaseLock(releaseID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	if m.locks[releaseID] == nil {
		m.locks[releaseID] = &sync.Mutex{}
	}
	return m.locks[releaseID]
}

// TransitionRelease moves a release along one edge of its state machine.
// Illegal edges return types.ErrInvalidTransition and change nothing.
func (m *Manager) TransitionRelease(ctx context.Context, releaseID string, transition types.Transition) (*types.Release, error) {
	lock := m.releaseLock(releaseID)
	lock.Lock()
	defer lock.Unlock()

	release, err := m.store.GetRelease(ctx, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load release: %w", err)
	}

	from := release.State
	next, err := types.NextReleaseState(from, transition)
	if err != nil {
		return nil, err
	}

	release.State = next
	if err := m.store.UpdateRelease(ctx, release); err != nil {
		return nil, fmt.Errorf("failed to persist release state: %w", err)
	}

	m.logger.Info().
		Str("release", release.KfID).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("Release state changed")

	m.record(ctx, &types.Event{
		Type:      eventType(string(next)),
		Message:   fmt.Sprintf("release %s changed from %s to %s", release.KfID, from, next),
		ReleaseID: release.KfID,
	})

	return release, nil
}

// TransitionTask moves a task along one edge of its state machine. The
// task's release lock is held for the duration, so task transitions
// serialize with release transitions and with each other.
func (m *Manager) TransitionTask(ctx context.Context, taskID string, transition types.Transition) (*types.Task, error) {
	// Resolve the owning release before locking.
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	lock := m.releaseLock(task.ReleaseID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock; another holder may have moved it.
	task, err = m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	from := task.State
	next, err := types.NextTaskState(from, transition)
	if err != nil {
		return nil, err
	}

	task.State = next
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist task state: %w", err)
	}

	m.logger.Info().
		Str("task", task.KfID).
		Str("release", task.ReleaseID).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("Task state changed")

	m.record(ctx, &types.Event{
		Type:          eventType(string(next)),
		Message:       fmt.Sprintf("task %s changed from %s to %s", task.KfID, from, next),
		ReleaseID:     task.ReleaseID,
		TaskID:        task.KfID,
		TaskServiceID: task.TaskServiceID,
	})

	return task, nil
}

// UpdateReleaseMetadata applies a metadata edit to a release under its
// lock, so the write cannot clobber a state transition landing between
// the read and the write. Metadata edits are not transitions and produce
// no event; mutate must leave State alone.
func (m *Manager) UpdateReleaseMetadata(ctx context.Context, releaseID string, mutate func(*types.Release)) (*types.Release, error) {
	lock := m.releaseLock(releaseID)
	lock.Lock()
	defer lock.Unlock()

	release, err := m.store.GetRelease(ctx, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load release: %w", err)
	}

	mutate(release)
	if err := m.store.UpdateRelease(ctx, release); err != nil {
		return nil, fmt.Errorf("failed to persist release: %w", err)
	}
	return release, nil
}

// UpdateTaskProgress persists a task's progress, clamped to [0, 100].
// Progress changes are not state transitions and produce no event.
func (m *Manager) UpdateTaskProgress(ctx context.Context, taskID string, progress int) (*types.Task, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	lock := m.releaseLock(task.ReleaseID)
	lock.Lock()
	defer lock.Unlock()

	task, err = m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	task.Progress = types.ClampProgress(progress)
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist task progress: %w", err)
	}

	return task, nil
}

// record journals the event and distributes it. The state write has
// already committed, so failures here are logged, never returned.
func (m *Manager) record(ctx context.Context, event *types.Event) {
	event.KfID = ids.New(ids.PrefixEvent)
	event.UUID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()

	if err := m.store.CreateEvent(ctx, event); err != nil {
		m.logger.Error().Err(err).Str("event", event.KfID).Msg("Failed to journal event")
	}

	if m.broker != nil {
		m.broker.Publish(event)
	}
	if m.emitter != nil {
		m.emitter.Emit(event)
	}
}

// eventType classifies a transition target: failures and rejections
// journal as errors, everything else as info.
func eventType(target string) types.EventType {
	switch target {
	case string(types.TaskStateFailed), string(types.TaskStateRejected):
		return types.EventTypeError
	default:
		return types.EventTypeInfo
	}
}
