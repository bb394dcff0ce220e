package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/drover/pkg/types"
)

// MemoryStore implements Store with in-process maps. It backs tests and
// ephemeral single-process runs; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	services map[string]*types.TaskService
	releases map[string]*types.Release
	tasks    map[string]*types.Task
	events   map[string]*types.Event
	studies  map[string]*types.Study
	notes    map[string]*types.ReleaseNote
}

// NewMemoryStore initializes an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services: make(map[string]*types.TaskService),
		releases: make(map[string]*types.Release),
		tasks:    make(map[string]*types.Task),
		events:   make(map[string]*types.Event),
		studies:  make(map[string]*types.Study),
		notes:    make(map[string]*types.ReleaseNote),
	}
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

// Task service operations

func (s *MemoryStore) CreateTaskService(_ context.Context, svc *types.TaskService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.KfID] = copyService(svc)
	return nil
}

func (s *MemoryStore) GetTaskService(_ context.Context, id string) (*types.TaskService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: task service %s", types.ErrNotFound, id)
	}
	return copyService(svc), nil
}

func (s *MemoryStore) ListTaskServices(_ context.Context) ([]*types.TaskService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*types.TaskService, 0, len(s.services))
	for _, svc := range s.services {
		result = append(result, copyService(svc))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateTaskService(ctx context.Context, svc *types.TaskService) error {
	return s.CreateTaskService(ctx, svc)
}

func (s *MemoryStore) DeleteTaskService(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, id)
	doomed := make(map[string]bool)
	for kfID, task := range s.tasks {
		if task.TaskServiceID == id {
			doomed[kfID] = true
			delete(s.tasks, kfID)
		}
	}
	for _, event := range s.events {
		if event.TaskServiceID == id {
			event.TaskServiceID = ""
		}
		if doomed[event.TaskID] {
			event.TaskID = ""
		}
	}
	return nil
}

// Release operations

func (s *MemoryStore) CreateRelease(_ context.Context, rel *types.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[rel.KfID] = copyRelease(rel)
	return nil
}

func (s *MemoryStore) GetRelease(_ context.Context, id string) (*types.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.releases[id]
	if !ok {
		return nil, fmt.Errorf("%w: release %s", types.ErrNotFound, id)
	}
	return copyRelease(rel), nil
}

func (s *MemoryStore) ListReleases(_ context.Context) ([]*types.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*types.Release, 0, len(s.releases))
	for _, rel := range s.releases {
		result = append(result, copyRelease(rel))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateRelease(ctx context.Context, rel *types.Release) error {
	return s.CreateRelease(ctx, rel)
}

func (s *MemoryStore) DeleteRelease(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.releases, id)
	doomed := make(map[string]bool)
	for kfID, task := range s.tasks {
		if task.ReleaseID == id {
			doomed[kfID] = true
			delete(s.tasks, kfID)
		}
	}
	for kfID, note := range s.notes {
		if note.ReleaseID == id {
			delete(s.notes, kfID)
		}
	}
	for _, event := range s.events {
		if event.ReleaseID == id {
			event.ReleaseID = ""
		}
		if doomed[event.TaskID] {
			event.TaskID = ""
		}
	}
	return nil
}

// Task operations

func (s *MemoryStore) CreateTask(_ context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	taskCopy := *task
	s.tasks[task.KfID] = &taskCopy
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	taskCopy := *task
	return &taskCopy, nil
}

func (s *MemoryStore) ListTasks(_ context.Context) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTasksLocked(func(*types.Task) bool { return true }), nil
}

func (s *MemoryStore) ListTasksByRelease(_ context.Context, releaseID string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTasksLocked(func(t *types.Task) bool { return t.ReleaseID == releaseID }), nil
}

func (s *MemoryStore) ListTasksByService(_ context.Context, serviceID string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTasksLocked(func(t *types.Task) bool { return t.TaskServiceID == serviceID }), nil
}

func (s *MemoryStore) listTasksLocked(match func(*types.Task) bool) []*types.Task {
	var result []*types.Task
	for _, task := range s.tasks {
		if match(task) {
			taskCopy := *task
			result = append(result, &taskCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task *types.Task) error {
	return s.CreateTask(ctx, task)
}

func (s *MemoryStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	for _, event := range s.events {
		if event.TaskID == id {
			event.TaskID = ""
		}
	}
	return nil
}

// Event operations

func (s *MemoryStore) CreateEvent(_ context.Context, event *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eventCopy := *event
	s.events[event.KfID] = &eventCopy
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", types.ErrNotFound, id)
	}
	eventCopy := *event
	return &eventCopy, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, filter EventFilter) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*types.Event
	for _, event := range s.events {
		if matchesEventFilter(event, filter) {
			eventCopy := *event
			result = append(result, &eventCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) LatestEventForTask(ctx context.Context, taskID string) (*types.Event, error) {
	events, err := s.ListEvents(ctx, EventFilter{Task: taskID})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: events for task %s", types.ErrNotFound, taskID)
	}
	return events[len(events)-1], nil
}

// Study operations

func (s *MemoryStore) UpsertStudy(_ context.Context, study *types.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	studyCopy := *study
	s.studies[study.KfID] = &studyCopy
	return nil
}

func (s *MemoryStore) GetStudy(_ context.Context, id string) (*types.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	study, ok := s.studies[id]
	if !ok {
		return nil, fmt.Errorf("%w: study %s", types.ErrNotFound, id)
	}
	studyCopy := *study
	return &studyCopy, nil
}

func (s *MemoryStore) ListStudies(_ context.Context) ([]*types.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*types.Study, 0, len(s.studies))
	for _, study := range s.studies {
		studyCopy := *study
		result = append(result, &studyCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].KfID < result[j].KfID
	})
	return result, nil
}

// Release note operations

func (s *MemoryStore) CreateReleaseNote(_ context.Context, note *types.ReleaseNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	noteCopy := *note
	s.notes[note.KfID] = &noteCopy
	return nil
}

func (s *MemoryStore) GetReleaseNote(_ context.Context, id string) (*types.ReleaseNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("%w: release note %s", types.ErrNotFound, id)
	}
	noteCopy := *note
	return &noteCopy, nil
}

func (s *MemoryStore) ListReleaseNotes(_ context.Context, filter NoteFilter) ([]*types.ReleaseNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*types.ReleaseNote
	for _, note := range s.notes {
		if matchesNoteFilter(note, filter) {
			noteCopy := *note
			result = append(result, &noteCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateReleaseNote(ctx context.Context, note *types.ReleaseNote) error {
	return s.CreateReleaseNote(ctx, note)
}

func (s *MemoryStore) DeleteReleaseNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
	return nil
}

// Copy helpers. Slices are duplicated so callers never alias stored data.

func copyService(svc *types.TaskService) *types.TaskService {
	svcCopy := *svc
	return &svcCopy
}

func copyRelease(rel *types.Release) *types.Release {
	relCopy := *rel
	relCopy.Tags = append([]string(nil), rel.Tags...)
	relCopy.Studies = append([]string(nil), rel.Studies...)
	return &relCopy
}
