package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/drover/pkg/types"
)

// backends returns a fresh instance of every Store implementation that can
// run without external services. PostgresStore is covered by the same
// query shapes but needs a live database, so it is exercised in staging.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	boltStore, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { boltStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   boltStore,
	}
}

func testService(id string) *types.TaskService {
	return &types.TaskService{
		KfID:      id,
		UUID:      "00000000-0000-0000-0000-000000000001",
		Name:      "snapshot task",
		URL:       "http://ts.com",
		Author:    "admin",
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
}

func testRelease(id string) *types.Release {
	return &types.Release{
		KfID:      id,
		UUID:      "00000000-0000-0000-0000-000000000002",
		Name:      "summer release",
		Author:    "admin",
		Tags:      []string{"Needs Review"},
		Studies:   []string{"SD_00000001"},
		State:     types.ReleaseStateWaiting,
		CreatedAt: time.Now().UTC(),
	}
}

func TestTaskServiceCRUD(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := testService("TS_00000001")

			require.NoError(t, store.CreateTaskService(ctx, svc))

			got, err := store.GetTaskService(ctx, "TS_00000001")
			require.NoError(t, err)
			assert.Equal(t, "snapshot task", got.Name)
			assert.True(t, got.Enabled)

			got.ConsecutiveFailures = 2
			require.NoError(t, store.UpdateTaskService(ctx, got))

			got, err = store.GetTaskService(ctx, "TS_00000001")
			require.NoError(t, err)
			assert.Equal(t, 2, got.ConsecutiveFailures)

			list, err := store.ListTaskServices(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, store.DeleteTaskService(ctx, "TS_00000001"))
			_, err = store.GetTaskService(ctx, "TS_00000001")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetTaskService(ctx, "TS_MISSING1")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = store.GetRelease(ctx, "RE_MISSING1")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = store.GetTask(ctx, "TA_MISSING1")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = store.GetEvent(ctx, "EV_MISSING1")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = store.GetStudy(ctx, "SD_MISSING1")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = store.GetReleaseNote(ctx, "RN_MISSING1")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestReleaseRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rel := testRelease("RE_00000001")
			rel.Tags = []string{"Needs Review", "Data Fix"}
			rel.Studies = []string{"SD_00000001", "SD_00000002"}

			require.NoError(t, store.CreateRelease(ctx, rel))

			got, err := store.GetRelease(ctx, "RE_00000001")
			require.NoError(t, err)
			assert.Equal(t, []string{"Needs Review", "Data Fix"}, got.Tags)
			assert.Equal(t, []string{"SD_00000001", "SD_00000002"}, got.Studies)
			assert.Equal(t, types.ReleaseStateWaiting, got.State)

			// Mutating the returned copy must not leak into the store.
			got.Tags[0] = "changed"
			again, err := store.GetRelease(ctx, "RE_00000001")
			require.NoError(t, err)
			assert.Equal(t, "Needs Review", again.Tags[0])
		})
	}
}

func TestTaskListFilters(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			tasks := []*types.Task{
				{KfID: "TA_00000001", ReleaseID: "RE_00000001", TaskServiceID: "TS_00000001", State: types.TaskStateWaiting, CreatedAt: base},
				{KfID: "TA_00000002", ReleaseID: "RE_00000001", TaskServiceID: "TS_00000002", State: types.TaskStateWaiting, CreatedAt: base.Add(time.Second)},
				{KfID: "TA_00000003", ReleaseID: "RE_00000002", TaskServiceID: "TS_00000001", State: types.TaskStateWaiting, CreatedAt: base.Add(2 * time.Second)},
			}
			for _, task := range tasks {
				require.NoError(t, store.CreateTask(ctx, task))
			}

			byRelease, err := store.ListTasksByRelease(ctx, "RE_00000001")
			require.NoError(t, err)
			require.Len(t, byRelease, 2)
			assert.Equal(t, "TA_00000001", byRelease[0].KfID)
			assert.Equal(t, "TA_00000002", byRelease[1].KfID)

			byService, err := store.ListTasksByService(ctx, "TS_00000001")
			require.NoError(t, err)
			require.Len(t, byService, 2)
			assert.Equal(t, "TA_00000001", byService[0].KfID)
			assert.Equal(t, "TA_00000003", byService[1].KfID)

			all, err := store.ListTasks(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestEventJournalOrderingAndFilters(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			events := []*types.Event{
				{KfID: "EV_00000001", Type: types.EventTypeInfo, Message: "first", ReleaseID: "RE_00000001", TaskID: "TA_00000001", CreatedAt: base},
				{KfID: "EV_00000002", Type: types.EventTypeInfo, Message: "second", ReleaseID: "RE_00000001", TaskID: "TA_00000001", CreatedAt: base.Add(time.Second)},
				{KfID: "EV_00000003", Type: types.EventTypeError, Message: "other release", ReleaseID: "RE_00000002", CreatedAt: base.Add(2 * time.Second)},
			}
			for _, event := range events {
				require.NoError(t, store.CreateEvent(ctx, event))
			}

			filtered, err := store.ListEvents(ctx, EventFilter{Release: "RE_00000001"})
			require.NoError(t, err)
			require.Len(t, filtered, 2)
			assert.Equal(t, "first", filtered[0].Message)
			assert.Equal(t, "second", filtered[1].Message)

			latest, err := store.LatestEventForTask(ctx, "TA_00000001")
			require.NoError(t, err)
			assert.Equal(t, "EV_00000002", latest.KfID)

			_, err = store.LatestEventForTask(ctx, "TA_NOEVENTS")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestDeleteReleaseCascades(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.CreateRelease(ctx, testRelease("RE_00000001")))
			require.NoError(t, store.CreateTask(ctx, &types.Task{
				KfID: "TA_00000001", ReleaseID: "RE_00000001", TaskServiceID: "TS_00000001",
				State: types.TaskStateWaiting, CreatedAt: time.Now().UTC(),
			}))
			require.NoError(t, store.CreateReleaseNote(ctx, &types.ReleaseNote{
				KfID: "RN_00000001", ReleaseID: "RE_00000001", Author: "admin",
				Description: "note", CreatedAt: time.Now().UTC(),
			}))
			require.NoError(t, store.CreateEvent(ctx, &types.Event{
				KfID: "EV_00000001", Type: types.EventTypeInfo, Message: "created",
				ReleaseID: "RE_00000001", TaskID: "TA_00000001", CreatedAt: time.Now().UTC(),
			}))

			require.NoError(t, store.DeleteRelease(ctx, "RE_00000001"))

			_, err := store.GetTask(ctx, "TA_00000001")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = store.GetReleaseNote(ctx, "RN_00000001")
			assert.ErrorIs(t, err, types.ErrNotFound)

			// The journal survives with its references cleared, including
			// the reference to the cascade-deleted task.
			event, err := store.GetEvent(ctx, "EV_00000001")
			require.NoError(t, err)
			assert.Empty(t, event.ReleaseID)
			assert.Empty(t, event.TaskID)
			assert.Equal(t, "created", event.Message)
		})
	}
}

func TestDeleteTaskServiceCascades(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.CreateTaskService(ctx, testService("TS_00000001")))
			require.NoError(t, store.CreateTask(ctx, &types.Task{
				KfID: "TA_00000001", ReleaseID: "RE_00000001", TaskServiceID: "TS_00000001",
				State: types.TaskStateRunning, CreatedAt: time.Now().UTC(),
			}))
			require.NoError(t, store.CreateEvent(ctx, &types.Event{
				KfID: "EV_00000001", Type: types.EventTypeInfo, Message: "probe ok",
				TaskID: "TA_00000001", TaskServiceID: "TS_00000001", CreatedAt: time.Now().UTC(),
			}))

			require.NoError(t, store.DeleteTaskService(ctx, "TS_00000001"))

			_, err := store.GetTask(ctx, "TA_00000001")
			assert.ErrorIs(t, err, types.ErrNotFound)

			event, err := store.GetEvent(ctx, "EV_00000001")
			require.NoError(t, err)
			assert.Empty(t, event.TaskServiceID)
			assert.Empty(t, event.TaskID)
		})
	}
}

func TestStudyUpsert(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			study := &types.Study{KfID: "SD_00000001", Name: "study one", Visible: true, CreatedAt: time.Now().UTC()}
			require.NoError(t, store.UpsertStudy(ctx, study))

			study.Name = "study one renamed"
			require.NoError(t, store.UpsertStudy(ctx, study))

			got, err := store.GetStudy(ctx, "SD_00000001")
			require.NoError(t, err)
			assert.Equal(t, "study one renamed", got.Name)

			list, err := store.ListStudies(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestReleaseNoteFilters(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			notes := []*types.ReleaseNote{
				{KfID: "RN_00000001", ReleaseID: "RE_00000001", StudyID: "SD_00000001", Author: "admin", Description: "a", CreatedAt: base},
				{KfID: "RN_00000002", ReleaseID: "RE_00000001", StudyID: "SD_00000002", Author: "admin", Description: "b", CreatedAt: base.Add(time.Second)},
				{KfID: "RN_00000003", ReleaseID: "RE_00000002", StudyID: "SD_00000001", Author: "admin", Description: "c", CreatedAt: base.Add(2 * time.Second)},
			}
			for _, note := range notes {
				require.NoError(t, store.CreateReleaseNote(ctx, note))
			}

			byRelease, err := store.ListReleaseNotes(ctx, NoteFilter{Release: "RE_00000001"})
			require.NoError(t, err)
			assert.Len(t, byRelease, 2)

			byStudy, err := store.ListReleaseNotes(ctx, NoteFilter{Study: "SD_00000001"})
			require.NoError(t, err)
			assert.Len(t, byStudy, 2)

			both, err := store.ListReleaseNotes(ctx, NoteFilter{Release: "RE_00000001", Study: "SD_00000001"})
			require.NoError(t, err)
			require.Len(t, both, 1)
			assert.Equal(t, "RN_00000001", both[0].KfID)
		})
	}
}
