package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/drover/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketTaskServices = []byte("task_services")
	bucketReleases     = []byte("releases")
	bucketTasks        = []byte("tasks")
	bucketEvents       = []byte("events")
	bucketStudies      = []byte("studies")
	bucketReleaseNotes = []byte("release_notes")
)

// BoltStore implements Store using BoltDB. Suited to single-node
// deployments; all writes serialize through bolt's single update
// transaction, which is exactly the write model the state machines need.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "drover.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTaskServices,
			bucketReleases,
			bucketTasks,
			bucketEvents,
			bucketStudies,
			bucketReleaseNotes,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Task service operations

func (s *BoltStore) CreateTaskService(_ context.Context, svc *types.TaskService) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTaskServices), svc.KfID, svc)
	})
}

func (s *BoltStore) GetTaskService(_ context.Context, id string) (*types.TaskService, error) {
	var svc types.TaskService
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTaskServices).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: task service %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &svc)
	})
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *BoltStore) ListTaskServices(_ context.Context) ([]*types.TaskService, error) {
	var services []*types.TaskService
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTaskServices).ForEach(func(k, v []byte) error {
			var svc types.TaskService
			if err := json.Unmarshal(v, &svc); err != nil {
				return err
			}
			services = append(services, &svc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].CreatedAt.Before(services[j].CreatedAt)
	})
	return services, nil
}

func (s *BoltStore) UpdateTaskService(ctx context.Context, svc *types.TaskService) error {
	return s.CreateTaskService(ctx, svc) // Same as create (upsert)
}

// DeleteTaskService removes the service, deletes its tasks, and clears
// the service and deleted-task references on journaled events.
func (s *BoltStore) DeleteTaskService(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketTaskServices).Delete([]byte(id)); err != nil {
			return err
		}
		doomed, err := deleteTasksWhere(tx, func(t *types.Task) bool { return t.TaskServiceID == id })
		if err != nil {
			return err
		}
		return clearEventRefs(tx, func(e *types.Event) bool {
			changed := false
			if e.TaskServiceID == id {
				e.TaskServiceID = ""
				changed = true
			}
			if doomed[e.TaskID] {
				e.TaskID = ""
				changed = true
			}
			return changed
		})
	})
}

// Release operations

func (s *BoltStore) CreateRelease(_ context.Context, rel *types.Release) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketReleases), rel.KfID, rel)
	})
}

func (s *BoltStore) GetRelease(_ context.Context, id string) (*types.Release, error) {
	var rel types.Release
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReleases).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: release %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &rel)
	})
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (s *BoltStore) ListReleases(_ context.Context) ([]*types.Release, error) {
	var releases []*types.Release
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReleases).ForEach(func(k, v []byte) error {
			var rel types.Release
			if err := json.Unmarshal(v, &rel); err != nil {
				return err
			}
			releases = append(releases, &rel)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(releases, func(i, j int) bool {
		return releases[i].CreatedAt.Before(releases[j].CreatedAt)
	})
	return releases, nil
}

func (s *BoltStore) UpdateRelease(ctx context.Context, rel *types.Release) error {
	return s.CreateRelease(ctx, rel)
}

// DeleteRelease removes the release with its tasks and notes, and clears
// the release and deleted-task references on journaled events.
func (s *BoltStore) DeleteRelease(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketReleases).Delete([]byte(id)); err != nil {
			return err
		}
		doomed, err := deleteTasksWhere(tx, func(t *types.Task) bool { return t.ReleaseID == id })
		if err != nil {
			return err
		}
		if err := deleteNotesWhere(tx, func(n *types.ReleaseNote) bool { return n.ReleaseID == id }); err != nil {
			return err
		}
		return clearEventRefs(tx, func(e *types.Event) bool {
			changed := false
			if e.ReleaseID == id {
				e.ReleaseID = ""
				changed = true
			}
			if doomed[e.TaskID] {
				e.TaskID = ""
				changed = true
			}
			return changed
		})
	})
}

// Task operations

func (s *BoltStore) CreateTask(_ context.Context, task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTasks), task.KfID, task)
	})
}

func (s *BoltStore) GetTask(_ context.Context, id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTasks(_ context.Context) ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *BoltStore) ListTasksByRelease(ctx context.Context, releaseID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []*types.Task
	for _, task := range tasks {
		if task.ReleaseID == releaseID {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListTasksByService(ctx context.Context, serviceID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []*types.Task
	for _, task := range tasks {
		if task.TaskServiceID == serviceID {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateTask(ctx context.Context, task *types.Task) error {
	return s.CreateTask(ctx, task)
}

func (s *BoltStore) DeleteTask(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketTasks).Delete([]byte(id)); err != nil {
			return err
		}
		return clearEventRefs(tx, func(e *types.Event) bool {
			if e.TaskID == id {
				e.TaskID = ""
				return true
			}
			return false
		})
	})
}

// Event operations. Events have no update or delete path.

func (s *BoltStore) CreateEvent(_ context.Context, event *types.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketEvents), event.KfID, event)
	})
}

func (s *BoltStore) GetEvent(_ context.Context, id string) (*types.Event, error) {
	var event types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEvents).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: event %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *BoltStore) ListEvents(_ context.Context, filter EventFilter) ([]*types.Event, error) {
	var events []*types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(k, v []byte) error {
			var event types.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if matchesEventFilter(&event, filter) {
				events = append(events, &event)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func (s *BoltStore) LatestEventForTask(ctx context.Context, taskID string) (*types.Event, error) {
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

func (s *BoltStore) UpsertStudy(_ context.Context, study *types.Study) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketStudies), study.KfID, study)
	})
}

func (s *BoltStore) GetStudy(_ context.Context, id string) (*types.Study, error) {
	var study types.Study
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStudies).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: study %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &study)
	})
	if err != nil {
		return nil, err
	}
	return &study, nil
}

func (s *BoltStore) ListStudies(_ context.Context) ([]*types.Study, error) {
	var studies []*types.Study
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStudies).ForEach(func(k, v []byte) error {
			var study types.Study
			if err := json.Unmarshal(v, &study); err != nil {
				return err
			}
			studies = append(studies, &study)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(studies, func(i, j int) bool {
		return studies[i].KfID < studies[j].KfID
	})
	return studies, nil
}

// Release note operations

func (s *BoltStore) CreateReleaseNote(_ context.Context, note *types.ReleaseNote) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketReleaseNotes), note.KfID, note)
	})
}

func (s *BoltStore) GetReleaseNote(_ context.Context, id string) (*types.ReleaseNote, error) {
	var note types.ReleaseNote
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReleaseNotes).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: release note %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &note)
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *BoltStore) ListReleaseNotes(_ context.Context, filter NoteFilter) ([]*types.ReleaseNote, error) {
	var notes []*types.ReleaseNote
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReleaseNotes).ForEach(func(k, v []byte) error {
			var note types.ReleaseNote
			if err := json.Unmarshal(v, &note); err != nil {
				return err
			}
			if matchesNoteFilter(&note, filter) {
				notes = append(notes, &note)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func (s *BoltStore) UpdateReleaseNote(ctx context.Context, note *types.ReleaseNote) error {
	return s.CreateReleaseNote(ctx, note)
}

func (s *BoltStore) DeleteReleaseNote(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReleaseNotes).Delete([]byte(id))
	})
}

// Helpers

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func matchesEventFilter(e *types.Event, f EventFilter) bool {
	if f.Release != "" && e.ReleaseID != f.Release {
		return false
	}
	if f.Task != "" && e.TaskID != f.Task {
		return false
	}
	if f.TaskService != "" && e.TaskServiceID != f.TaskService {
		return false
	}
	return true
}

func matchesNoteFilter(n *types.ReleaseNote, f NoteFilter) bool {
	if f.Release != "" && n.ReleaseID != f.Release {
		return false
	}
	if f.Study != "" && n.StudyID != f.Study {
		return false
	}
	return true
}

// deleteTasksWhere removes matching tasks and returns their kf_ids so the
// caller can clear the journal references that pointed at them.
func deleteTasksWhere(tx *bolt.Tx, match func(*types.Task) bool) (map[string]bool, error) {
	b := tx.Bucket(bucketTasks)
	doomed := make(map[string]bool)
	err := b.ForEach(func(k, v []byte) error {
		var task types.Task
		if err := json.Unmarshal(v, &task); err != nil {
			return err
		}
		if match(&task) {
			doomed[task.KfID] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for id := range doomed {
		if err := b.Delete([]byte(id)); err != nil {
			return nil, err
		}
	}
	return doomed, nil
}

func deleteNotesWhere(tx *bolt.Tx, match func(*types.ReleaseNote) bool) error {
	b := tx.Bucket(bucketReleaseNotes)
	var doomed [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var note types.ReleaseNote
		if err := json.Unmarshal(v, &note); err != nil {
			return err
		}
		if match(&note) {
			key := make([]byte, len(k))
			copy(key, k)
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range doomed {
		if err := b.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// clearEventRefs rewrites events whose soft references the mutate func
// clears. This is the storage-level cascade that keeps the journal
// intact when its referents disappear.
func clearEventRefs(tx *bolt.Tx, mutate func(*types.Event) bool) error {
	b := tx.Bucket(bucketEvents)
	type rewrite struct {
		key  []byte
		data []byte
	}
	var rewrites []rewrite
	err := b.ForEach(func(k, v []byte) error {
		var event types.Event
		if err := json.Unmarshal(v, &event); err != nil {
			return err
		}
		if mutate(&event) {
			data, err := json.Marshal(&event)
			if err != nil {
				return err
			}
			key := make([]byte, len(k))
			copy(key, k)
			rewrites = append(rewrites, rewrite{key: key, data: data})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, rw := range rewrites {
		if err := b.Put(rw.key, rw.data); err != nil {
			return err
		}
	}
	return nil
}
