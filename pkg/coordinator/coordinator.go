package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/ids"
	"github.com/cuemby/drover/pkg/lifecycle"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// DefaultTaskTimeout is the per-task inactivity limit used when no
// explicit timeout is configured. A task with no journaled event inside
// the window gets its release canceled.
const DefaultTaskTimeout = 5 * time.Minute

// Coordinator drives releases through their phases: it fans commands out
// to task services, gathers task states back into release promotions,
// and reacts to failures by canceling. All of its entry points are job
// handlers, so every step is idempotent against redelivery.
type Coordinator struct {
	store       storage.Store
	lifecycle   *lifecycle.Manager
	caller      remote.Caller
	queue       queue.Queue
	taskTimeout time.Duration
	logger      zerolog.Logger
}

// New creates a coordinator
func New(store storage.Store, lc *lifecycle.Manager, caller remote.Caller, q queue.Queue, taskTimeout time.Duration) *Coordinator {
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	return &Coordinator{
		store:       store,
		lifecycle:   lc,
		caller:      caller,
		queue:       q,
		taskTimeout: taskTimeout,
		logger:      log.WithComponent("coordinator"),
	}
}

// RegisterHandlers binds the coordinator's job handlers to the pool
func (c *Coordinator) RegisterHandlers(pool *queue.Pool) {
	pool.Register(queue.KindInitRelease, c.HandleInitRelease)
	pool.Register(queue.KindPublishRelease, c.HandlePublishRelease)
	pool.Register(queue.KindCancelRelease, c.HandleCancelRelease)
	pool.Register(queue.KindStatusPoll, c.HandleStatusPoll)
}

// HandleInitRelease is the job handler for init_release
func (c *Coordinator) HandleInitRelease(ctx context.Context, job *queue.Job) error {
	releaseID, ok := job.Args[queue.ArgRelease]
	if !ok {
		return fmt.Errorf("init_release job missing %s", queue.ArgRelease)
	}
	return c.InitRelease(ctx, releaseID)
}

// InitRelease drives the initialize and start phases. It snapshots the
// enabled task services, creates one waiting task per service, fans out
// initialize, promotes the release to running, and fans out start. Any
// remote failure aborts into the cancel path.
func (c *Coordinator) InitRelease(ctx context.Context, releaseID string) error {
	release, err := c.lifecycle.TransitionRelease(ctx, releaseID, types.TransitionInitialize)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			// Redelivered or raced by a cancel; the first delivery owns the fan-out.
			c.logger.Warn().Str("release", releaseID).Msg("Release is not waiting, skipping init")
			return nil
		}
		return err
	}

	services, err := c.store.ListTaskServices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list task services: %w", err)
	}

	// Snapshot of participants: services registered later do not join.
	urls := make(map[string]string)
	var tasks []*types.Task
	for _, service := range services {
		if !service.Enabled {
			continue
		}
		task := &types.Task{
			KfID:          ids.New(ids.PrefixTask),
			UUID:          uuid.NewString(),
			ReleaseID:     release.KfID,
			TaskServiceID: service.KfID,
			State:         types.TaskStateWaiting,
			CreatedAt:     time.Now().UTC(),
		}
		if err := c.store.CreateTask(ctx, task); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		urls[service.KfID] = service.URL
		tasks = append(tasks, task)
	}

	c.logger.Info().
		Str("release", release.KfID).
		Int("tasks", len(tasks)).
		Msg("Release initialization started")

	for _, task := range tasks {
		if err := c.sendAndAdvance(ctx, task, urls[task.TaskServiceID], remote.ActionInitialize, types.TransitionInitialize); err != nil {
			c.abortRelease(ctx, releaseID, err)
			return nil
		}
	}

	if _, err := c.lifecycle.TransitionRelease(ctx, releaseID, types.TransitionStart); err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			c.logger.Warn().Str("release", releaseID).Msg("Release left initializing during fan-out")
			return nil
		}
		return err
	}

	for _, task := range tasks {
		if err := c.sendAndAdvance(ctx, task, urls[task.TaskServiceID], remote.ActionStart, types.TransitionStart); err != nil {
			c.abortRelease(ctx, releaseID, err)
			return nil
		}
	}

	// A release with no participating services stages immediately.
	return c.EvaluateRelease(ctx, releaseID)
}

// HandlePublishRelease is the job handler for publish_release
func (c *Coordinator) HandlePublishRelease(ctx context.Context, job *queue.Job) error {
	releaseID, ok := job.Args[queue.ArgRelease]
	if !ok {
		return fmt.Errorf("publish_release job missing %s", queue.ArgRelease)
	}
	return c.PublishRelease(ctx, releaseID)
}

// PublishRelease fans publish out over the release's staged tasks. The
// release itself was moved to publishing synchronously by the endpoint.
func (c *Coordinator) PublishRelease(ctx context.Context, releaseID string) error {
	release, err := c.store.GetRelease(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("failed to load release: %w", err)
	}
	if release.State != types.ReleaseStatePublishing {
		c.logger.Warn().
			Str("release", releaseID).
			Str("state", string(release.State)).
			Msg("Release is not publishing, skipping publish fan-out")
		return nil
	}

	tasks, err := c.store.ListTasksByRelease(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	urls := make(map[string]string)
	for _, task := range tasks {
		if task.State != types.TaskStateStaged {
			// Redelivery: tasks already publishing or published are done here.
			continue
		}

		url, ok := urls[task.TaskServiceID]
		if !ok {
			service, err := c.store.GetTaskService(ctx, task.TaskServiceID)
			if err != nil {
				c.abortRelease(ctx, releaseID, fmt.Errorf("failed to load service for task %s: %w", task.KfID, err))
				return nil
			}
			url = service.URL
			urls[task.TaskServiceID] = url
		}

		if err := c.sendAndAdvance(ctx, task, url, remote.ActionPublish, types.TransitionPublish); err != nil {
			c.abortRelease(ctx, releaseID, err)
			return nil
		}
	}

	return c.EvaluateRelease(ctx, releaseID)
}

// HandleCancelRelease is the job handler for cancel_release
func (c *Coordinator) HandleCancelRelease(ctx context.Context, job *queue.Job) error {
	releaseID, ok := job.Args[queue.ArgRelease]
	if !ok {
		return fmt.Errorf("cancel_release job missing %s", queue.ArgRelease)
	}
	return c.CancelRelease(ctx, releaseID)
}

// CancelRelease cancels every non-terminal task of the release, sending
// each service a best-effort cancel command, then closes out the release
// if it is canceling and all tasks are terminal. The sweep runs even when
// the release itself is already settled: a release failed by one task
// still has live siblings that need to be stopped. Re-running against a
// fully terminal release does nothing.
func (c *Coordinator) CancelRelease(ctx context.Context, releaseID string) error {
	if _, err := c.store.GetRelease(ctx, releaseID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.logger.Warn().Str("release", releaseID).Msg("Release gone, nothing to cancel")
			return nil
		}
		return fmt.Errorf("failed to load release: %w", err)
	}

	tasks, err := c.store.ListTasksByRelease(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	for _, task := range tasks {
		if task.State.Terminal() {
			continue
		}

		// The command is advisory; the task is canceled either way.
		if service, err := c.store.GetTaskService(ctx, task.TaskServiceID); err == nil {
			cmd := remote.Command{TaskID: task.KfID, ReleaseID: releaseID, Action: remote.ActionCancel}
			if _, err := c.caller.Send(ctx, service.URL, cmd); err != nil {
				c.logger.Warn().Err(err).Str("task", task.KfID).Msg("Cancel command failed, canceling task anyway")
			}
		}

		if _, err := c.lifecycle.TransitionTask(ctx, task.KfID, types.TransitionCancel); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
			return err
		}
	}

	return c.EvaluateRelease(ctx, releaseID)
}

// HandleStatusPoll is the job handler for status_poll
func (c *Coordinator) HandleStatusPoll(ctx context.Context, job *queue.Job) error {
	taskID, ok := job.Args[queue.ArgTask]
	if !ok {
		return fmt.Errorf("status_poll job missing %s", queue.ArgTask)
	}
	return c.PollTask(ctx, taskID)
}

// PollTask asks a task's service for its view of the task and reconciles
// it: divergent terminal replies transition the task, silence beyond the
// inactivity timeout cancels the release, and progress is persisted.
// Ends by re-evaluating the release's gather condition.
func (c *Coordinator) PollTask(ctx context.Context, taskID string) error {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.logger.Warn().Str("task", taskID).Msg("Task gone, skipping poll")
			return nil
		}
		return fmt.Errorf("failed to load task: %w", err)
	}
	if task.State.Terminal() {
		return nil
	}

	service, err := c.store.GetTaskService(ctx, task.TaskServiceID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.logger.Warn().Str("task", task.KfID).Msg("Task service gone, canceling release")
			c.RequestCancel(ctx, task.ReleaseID)
			return nil
		}
		return fmt.Errorf("failed to load task service: %w", err)
	}

	cmd := remote.Command{TaskID: task.KfID, ReleaseID: task.ReleaseID, Action: remote.ActionGetStatus}
	resp, err := c.caller.Send(ctx, service.URL, cmd)
	if err != nil {
		c.logger.Warn().Err(err).Str("task", task.KfID).Msg("Status poll failed, canceling release")
		c.RequestCancel(ctx, task.ReleaseID)
		return nil
	}

	if resp.State != nil && *resp.State != string(task.State) {
		// Only terminal divergence is acted on here; forward progress
		// claims are left to the phase drivers.
		switch *resp.State {
		case string(types.TaskStateCanceled):
			c.transitionTask(ctx, task.KfID, types.TransitionCancel)

		case string(types.TaskStateFailed), string(types.TaskStateRejected):
			// Rejection is only meaningful before initialization; later
			// reports collapse into failure.
			transition := types.TransitionFail
			if *resp.State == string(types.TaskStateRejected) && task.State == types.TaskStateWaiting {
				transition = types.TransitionReject
			}
			c.transitionTask(ctx, task.KfID, transition)
			c.failRelease(ctx, task.ReleaseID)
			c.enqueueCancel(ctx, task.ReleaseID)
		}

		task, err = c.store.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("failed to reload task: %w", err)
		}
	}

	if !task.State.Settled() {
		baseline := task.CreatedAt
		if event, err := c.store.LatestEventForTask(ctx, task.KfID); err == nil {
			baseline = event.CreatedAt
		} else if !errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("failed to read task journal: %w", err)
		}

		if time.Since(baseline) > c.taskTimeout {
			c.logger.Warn().
				Str("task", task.KfID).
				Time("last_activity", baseline).
				Msg("Task inactive beyond timeout, canceling release")
			c.RequestCancel(ctx, task.ReleaseID)
		}
	}

	progress := 0
	if resp.Progress != nil {
		progress = *resp.Progress
	}
	if types.ClampProgress(progress) != task.Progress {
		if _, err := c.lifecycle.UpdateTaskProgress(ctx, task.KfID, progress); err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
	}

	return c.EvaluateRelease(ctx, task.ReleaseID)
}

// reportedStateTransitions maps a service-reported task state to the
// edge that lands there.
var reportedStateTransitions = map[types.TaskState]types.Transition{
	types.TaskStateInitialized: types.TransitionInitialize,
	types.TaskStateRunning:     types.TransitionStart,
	types.TaskStateStaged:      types.TransitionStage,
	types.TaskStatePublishing:  types.TransitionPublish,
	types.TaskStatePublished:   types.TransitionComplete,
	types.TaskStateRejected:    types.TransitionReject,
	types.TaskStateFailed:      types.TransitionFail,
	types.TaskStateCanceled:    types.TransitionCancel,
}

// ReportTaskState applies a task state pushed by its service through the
// API. It mirrors the poll path: the state name maps to the matching
// edge, failure states couple to the release, and the gather runs at the
// end. Re-reporting the current state is accepted as a no-op.
func (c *Coordinator) ReportTaskState(ctx context.Context, taskID string, state types.TaskState) (*types.Task, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.State == state {
		if err := c.EvaluateRelease(ctx, task.ReleaseID); err != nil {
			return nil, err
		}
		return task, nil
	}

	transition, ok := reportedStateTransitions[state]
	if !ok {
		return nil, types.NewValidationError(fmt.Sprintf("%s is not a valid task state", state))
	}
	if state == types.TaskStateRejected && task.State != types.TaskStateWaiting {
		// Rejection after initialization collapses into failure.
		transition = types.TransitionFail
	}

	task, err = c.lifecycle.TransitionTask(ctx, taskID, transition)
	if err != nil {
		return nil, err
	}

	if state == types.TaskStateFailed || state == types.TaskStateRejected {
		c.failRelease(ctx, task.ReleaseID)
		c.enqueueCancel(ctx, task.ReleaseID)
	}

	if err := c.EvaluateRelease(ctx, task.ReleaseID); err != nil {
		return nil, err
	}
	return task, nil
}

// EvaluateRelease is the gather step: it promotes the release when every
// task has reached the phase target. Safe to call at any time.
func (c *Coordinator) EvaluateRelease(ctx context.Context, releaseID string) error {
	release, err := c.store.GetRelease(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("failed to load release: %w", err)
	}

	tasks, err := c.store.ListTasksByRelease(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	var transition types.Transition
	switch release.State {
	case types.ReleaseStateRunning:
		if !allTasks(tasks, func(t *types.Task) bool { return t.State == types.TaskStateStaged }) {
			return nil
		}
		transition = types.TransitionStage
	case types.ReleaseStatePublishing:
		if !allTasks(tasks, func(t *types.Task) bool { return t.State == types.TaskStatePublished }) {
			return nil
		}
		transition = types.TransitionComplete
	case types.ReleaseStateCanceling:
		if !allTasks(tasks, func(t *types.Task) bool { return t.State.Terminal() }) {
			return nil
		}
		transition = types.TransitionFinishCancel
	default:
		return nil
	}

	if _, err := c.lifecycle.TransitionRelease(ctx, releaseID, transition); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
		return err
	}
	return nil
}

// RequestCancel moves the release toward canceling and enqueues the
// cancel driver. Used by job handlers and by the API's delete/cancel
// paths; idempotent against releases already canceling or settled.
func (c *Coordinator) RequestCancel(ctx context.Context, releaseID string) {
	if _, err := c.lifecycle.TransitionRelease(ctx, releaseID, types.TransitionCancel); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
		c.logger.Error().Err(err).Str("release", releaseID).Msg("Failed to cancel release")
	}
	c.enqueueCancel(ctx, releaseID)
}

func (c *Coordinator) enqueueCancel(ctx context.Context, releaseID string) {
	job := queue.NewJob(queue.KindCancelRelease, map[string]string{queue.ArgRelease: releaseID})
	if err := c.queue.Enqueue(ctx, job); err != nil {
		c.logger.Error().Err(err).Str("release", releaseID).Msg("Failed to enqueue cancel job")
	}
}

// sendAndAdvance delivers one phase command and moves the task along the
// matching edge. A remote error is returned for the caller to abort on;
// a task that moved concurrently is left alone.
func (c *Coordinator) sendAndAdvance(ctx context.Context, task *types.Task, serviceURL string, action remote.Action, transition types.Transition) error {
	cmd := remote.Command{TaskID: task.KfID, ReleaseID: task.ReleaseID, Action: action}
	if _, err := c.caller.Send(ctx, serviceURL, cmd); err != nil {
		return fmt.Errorf("%s failed for task %s: %w", action, task.KfID, err)
	}

	if _, err := c.lifecycle.TransitionTask(ctx, task.KfID, transition); err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			c.logger.Warn().Str("task", task.KfID).Msg("Task moved during fan-out, leaving it")
			return nil
		}
		return err
	}
	return nil
}

func (c *Coordinator) abortRelease(ctx context.Context, releaseID string, cause error) {
	c.logger.Error().Err(cause).Str("release", releaseID).Msg("Fan-out failed, canceling release")
	c.RequestCancel(ctx, releaseID)
}

func (c *Coordinator) failRelease(ctx context.Context, releaseID string) {
	if _, err := c.lifecycle.TransitionRelease(ctx, releaseID, types.TransitionFail); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
		c.logger.Error().Err(err).Str("release", releaseID).Msg("Failed to fail release")
	}
}

func (c *Coordinator) transitionTask(ctx context.Context, taskID string, transition types.Transition) {
	if _, err := c.lifecycle.TransitionTask(ctx, taskID, transition); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
		c.logger.Error().Err(err).Str("task", taskID).Msg("Failed to transition task")
	}
}

func allTasks(tasks []*types.Task, pred func(*types.Task) bool) bool {
	for _, task := range tasks {
		if !pred(task) {
			return false
		}
	}
	return true
}
