package storage

import (
	"context"

	"github.com/cuemby/drover/pkg/types"
)

// EventFilter narrows event listings. Zero-value fields are ignored.
type EventFilter struct {
	Release     string
	Task        string
	TaskService string
}

// NoteFilter narrows release note listings. Zero-value fields are ignored.
type NoteFilter struct {
	Release string
	Study   string
}

// Store defines the interface for coordinator state storage. Implemented
// by PostgresStore (production), BoltStore (single node), and MemoryStore
// (tests).
//
// Events are append-only: the interface exposes no update or delete for
// them. Deletes cascade: a release takes its tasks and notes with it, a
// task service takes its tasks. Soft references on persisted events are
// cleared for every row a delete removes, so the journal never dangles.
type Store interface {
	// Task services
	CreateTaskService(ctx context.Context, svc *types.TaskService) error
	GetTaskService(ctx context.Context, id string) (*types.TaskService, error)
	ListTaskServices(ctx context.Context) ([]*types.TaskService, error)
	UpdateTaskService(ctx context.Context, svc *types.TaskService) error
	DeleteTaskService(ctx context.Context, id string) error

	// Releases
	CreateRelease(ctx context.Context, rel *types.Release) error
	GetRelease(ctx context.Context, id string) (*types.Release, error)
	ListReleases(ctx context.Context) ([]*types.Release, error)
	UpdateRelease(ctx context.Context, rel *types.Release) error
	DeleteRelease(ctx context.Context, id string) error

	// Tasks
	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListTasks(ctx context.Context) ([]*types.Task, error)
	ListTasksByRelease(ctx context.Context, releaseID string) ([]*types.Task, error)
	ListTasksByService(ctx context.Context, serviceID string) ([]*types.Task, error)
	UpdateTask(ctx context.Context, task *types.Task) error
	DeleteTask(ctx context.Context, id string) error

	// Events (append-only)
	CreateEvent(ctx context.Context, event *types.Event) error
	GetEvent(ctx context.Context, id string) (*types.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*types.Event, error)
	LatestEventForTask(ctx context.Context, taskID string) (*types.Event, error)

	// Studies
	UpsertStudy(ctx context.Context, study *types.Study) error
	GetStudy(ctx context.Context, id string) (*types.Study, error)
	ListStudies(ctx context.Context) ([]*types.Study, error)

	// Release notes
	CreateReleaseNote(ctx context.Context, note *types.ReleaseNote) error
	GetReleaseNote(ctx context.Context, id string) (*types.ReleaseNote, error)
	ListReleaseNotes(ctx context.Context, filter NoteFilter) ([]*types.ReleaseNote, error)
	UpdateReleaseNote(ctx context.Context, note *types.ReleaseNote) error
	DeleteReleaseNote(ctx context.Context, id string) error

	// Utility
	Close() error
}
