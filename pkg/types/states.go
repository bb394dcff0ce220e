package types

// ReleaseState is one of the fixed lifecycle states of a release.
type ReleaseState string

const (
	ReleaseStateWaiting      ReleaseState = "waiting"
	ReleaseStateInitializing ReleaseState = "initializing"
	ReleaseStateRunning      ReleaseState = "running"
	ReleaseStateStaged       ReleaseState = "staged"
	ReleaseStatePublishing   ReleaseState = "publishing"
	ReleaseStatePublished    ReleaseState = "published"
	ReleaseStateCanceling    ReleaseState = "canceling"
	ReleaseStateCanceled     ReleaseState = "canceled"
	ReleaseStateFailed       ReleaseState = "failed"
)

// Terminal reports whether no further transitions leave this state.
// Canceling is not terminal: it still moves to canceled or failed.
func (s ReleaseState) Terminal() bool {
	switch s {
	case ReleaseStatePublished, ReleaseStateCanceled, ReleaseStateFailed:
		return true
	}
	return false
}

// TaskState is one of the fixed lifecycle states of a task.
type TaskState string

const (
	TaskStateWaiting     TaskState = "waiting"
	TaskStateInitialized TaskState = "initialized"
	TaskStateRunning     TaskState = "running"
	TaskStateStaged      TaskState = "staged"
	TaskStatePublishing  TaskState = "publishing"
	TaskStatePublished   TaskState = "published"
	TaskStateRejected    TaskState = "rejected"
	TaskStateFailed      TaskState = "failed"
	TaskStateCanceled    TaskState = "canceled"
)

// Terminal reports whether the task has finished for good.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStatePublished, TaskStateRejected, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// Settled reports whether the status poller leaves a task in this state
// alone for timeout purposes: the task is parked (staged) or finished.
func (s TaskState) Settled() bool {
	switch s {
	case TaskStateStaged, TaskStatePublished, TaskStateCanceled, TaskStateFailed:
		return true
	}
	return false
}

// Transition is a named edge in the release or task state machine. Both
// machines share the verb vocabulary; each applies only the edges its
// table defines.
type Transition string

const (
	TransitionInitialize Transition = "initialize"
	TransitionStart      Transition = "start"
	TransitionStage      Transition = "stage"
	TransitionPublish    Transition = "publish"
	TransitionComplete   Transition = "complete"
	TransitionReject     Transition = "reject"
	TransitionFail       Transition = "fail"
	TransitionCancel     Transition = "cancel"
	// TransitionFinishCancel closes out a cancel: canceling -> canceled,
	// applied once every task of the release is terminal.
	TransitionFinishCancel Transition = "finish_cancel"
)

type releaseEdge struct {
	sources []ReleaseState
	target  ReleaseState
}

var releaseEdges = map[Transition]releaseEdge{
	TransitionInitialize: {
		sources: []ReleaseState{ReleaseStateWaiting},
		target:  ReleaseStateInitializing,
	},
	TransitionStart: {
		sources: []ReleaseState{ReleaseStateInitializing},
		target:  ReleaseStateRunning,
	},
	TransitionStage: {
		sources: []ReleaseState{ReleaseStateRunning},
		target:  ReleaseStateStaged,
	},
	TransitionPublish: {
		sources: []ReleaseState{ReleaseStateStaged},
		target:  ReleaseStatePublishing,
	},
	TransitionComplete: {
		sources: []ReleaseState{ReleaseStatePublishing},
		target:  ReleaseStatePublished,
	},
	TransitionCancel: {
		sources: []ReleaseState{
			ReleaseStateWaiting,
			ReleaseStateInitializing,
			ReleaseStateRunning,
			ReleaseStateStaged,
			ReleaseStatePublishing,
		},
		target: ReleaseStateCanceling,
	},
	TransitionFinishCancel: {
		sources: []ReleaseState{ReleaseStateCanceling},
		target:  ReleaseStateCanceled,
	},
	TransitionFail: {
		sources: []ReleaseState{
			ReleaseStateWaiting,
			ReleaseStateInitializing,
			ReleaseStateRunning,
			ReleaseStateStaged,
			ReleaseStatePublishing,
			ReleaseStateCanceling,
		},
		target: ReleaseStateFailed,
	},
}

type taskEdge struct {
	// nil sources means the edge is allowed from any state.
	sources []TaskState
	target  TaskState
}

var taskEdges = map[Transition]taskEdge{
	TransitionInitialize: {
		sources: []TaskState{TaskStateWaiting},
		target:  TaskStateInitialized,
	},
	TransitionStart: {
		sources: []TaskState{TaskStateInitialized},
		target:  TaskStateRunning,
	},
	TransitionStage: {
		sources: []TaskState{TaskStateRunning},
		target:  TaskStateStaged,
	},
	TransitionPublish: {
		sources: []TaskState{TaskStateStaged},
		target:  TaskStatePublishing,
	},
	TransitionComplete: {
		sources: []TaskState{TaskStatePublishing},
		target:  TaskStatePublished,
	},
	TransitionReject: {
		sources: []TaskState{TaskStateWaiting},
		target:  TaskStateRejected,
	},
	TransitionFail: {
		sources: nil,
		target:  TaskStateFailed,
	},
	TransitionCancel: {
		sources: nil,
		target:  TaskStateCanceled,
	},
}

// NextReleaseState resolves a transition against the release machine.
// Returns ErrInvalidTransition when the edge is not allowed from the
// current state.
func NextReleaseState(from ReleaseState, t Transition) (ReleaseState, error) {
	edge, ok := releaseEdges[t]
	if !ok {
		return "", invalidTransition("release", string(t), string(from))
	}
	for _, src := range edge.sources {
		if src == from {
			return edge.target, nil
		}
	}
	return "", invalidTransition("release", string(t), string(from))
}

// NextTaskState resolves a transition against the task machine.
func NextTaskState(from TaskState, t Transition) (TaskState, error) {
	edge, ok := taskEdges[t]
	if !ok {
		return "", invalidTransition("task", string(t), string(from))
	}
	if edge.sources == nil {
		return edge.target, nil
	}
	for _, src := range edge.sources {
		if src == from {
			return edge.target, nil
		}
	}
	return "", invalidTransition("task", string(t), string(from))
}

// CanTransition reports whether the release permits the given transition.
func (r *Release) CanTransition(t Transition) bool {
	_, err := NextReleaseState(r.State, t)
	return err == nil
}

// CanTransition reports whether the task permits the given transition.
func (tk *Task) CanTransition(t Transition) bool {
	_, err := NextTaskState(tk.State, t)
	return err == nil
}
