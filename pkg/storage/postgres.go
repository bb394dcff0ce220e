package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cuemby/drover/pkg/types"
)

// PostgresStore implements Store on PostgreSQL via pgx. Table DDL is owned
// by the drover-migrate binary; this store assumes the schema exists.
// Referential cascades (tasks with their release, soft refs on events)
// are enforced by foreign keys, so deletes here are single statements.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a PostgresStore with a connection pool.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Task service operations

func (s *PostgresStore) CreateTaskService(ctx context.Context, svc *types.TaskService) error {
	query := `
		INSERT INTO task_services (kf_id, uuid, name, description, url, author, enabled, consecutive_failures, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (kf_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			author = EXCLUDED.author,
			enabled = EXCLUDED.enabled,
			consecutive_failures = EXCLUDED.consecutive_failures
	`
	_, err := s.pool.Exec(ctx, query,
		svc.KfID, svc.UUID, svc.Name, svc.Description, svc.URL,
		svc.Author, svc.Enabled, svc.ConsecutiveFailures, svc.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetTaskService(ctx context.Context, id string) (*types.TaskService, error) {
	query := `
		SELECT kf_id, uuid, name, description, url, author, enabled, consecutive_failures, created_at
		FROM task_services WHERE kf_id = $1
	`
	var svc types.TaskService
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&svc.KfID, &svc.UUID, &svc.Name, &svc.Description, &svc.URL,
		&svc.Author, &svc.Enabled, &svc.ConsecutiveFailures, &svc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: task service %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *PostgresStore) ListTaskServices(ctx context.Context) ([]*types.TaskService, error) {
	query := `
		SELECT kf_id, uuid, name, description, url, author, enabled, consecutive_failures, created_at
		FROM task_services ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*types.TaskService
	for rows.Next() {
		var svc types.TaskService
		if err := rows.Scan(
			&svc.KfID, &svc.UUID, &svc.Name, &svc.Description, &svc.URL,
			&svc.Author, &svc.Enabled, &svc.ConsecutiveFailures, &svc.CreatedAt,
		); err != nil {
			return nil, err
		}
		services = append(services, &svc)
	}
	return services, rows.Err()
}

func (s *PostgresStore) UpdateTaskService(ctx context.Context, svc *types.TaskService) error {
	return s.CreateTaskService(ctx, svc)
}

func (s *PostgresStore) DeleteTaskService(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM task_services WHERE kf_id = $1`, id)
	return err
}

// Release operations

func (s *PostgresStore) CreateRelease(ctx context.Context, rel *types.Release) error {
	query := `
		INSERT INTO releases (kf_id, uuid, name, description, author, tags, studies, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (kf_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			author = EXCLUDED.author,
			tags = EXCLUDED.tags,
			studies = EXCLUDED.studies,
			state = EXCLUDED.state
	`
	_, err := s.pool.Exec(ctx, query,
		rel.KfID, rel.UUID, rel.Name, rel.Description, rel.Author,
		rel.Tags, rel.Studies, string(rel.State), rel.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetRelease(ctx context.Context, id string) (*types.Release, error) {
	query := `
		SELECT kf_id, uuid, name, description, author, tags, studies, state, created_at
		FROM releases WHERE kf_id = $1
	`
	rel, err := scanRelease(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: release %s", types.ErrNotFound, id)
	}
	return rel, err
}

func (s *PostgresStore) ListReleases(ctx context.Context) ([]*types.Release, error) {
	query := `
		SELECT kf_id, uuid, name, description, author, tags, studies, state, created_at
		FROM releases ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []*types.Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releases, rows.Err()
}

func (s *PostgresStore) UpdateRelease(ctx context.Context, rel *types.Release) error {
	return s.CreateRelease(ctx, rel)
}

func (s *PostgresStore) DeleteRelease(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM releases WHERE kf_id = $1`, id)
	return err
}

// Task operations

func (s *PostgresStore) CreateTask(ctx context.Context, task *types.Task) error {
	query := `
		INSERT INTO tasks (kf_id, uuid, release_id, task_service_id, state, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (kf_id) DO UPDATE SET
			state = EXCLUDED.state,
			progress = EXCLUDED.progress
	`
	_, err := s.pool.Exec(ctx, query,
		task.KfID, task.UUID, task.ReleaseID, task.TaskServiceID,
		string(task.State), task.Progress, task.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	query := `
		SELECT kf_id, uuid, release_id, task_service_id, state, progress, created_at
		FROM tasks WHERE kf_id = $1
	`
	var task types.Task
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&task.KfID, &task.UUID, &task.ReleaseID, &task.TaskServiceID,
		&task.State, &task.Progress, &task.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]*types.Task, error) {
	return s.queryTasks(ctx, `
		SELECT kf_id, uuid, release_id, task_service_id, state, progress, created_at
		FROM tasks ORDER BY created_at
	`)
}

func (s *PostgresStore) ListTasksByRelease(ctx context.Context, releaseID string) ([]*types.Task, error) {
	return s.queryTasks(ctx, `
		SELECT kf_id, uuid, release_id, task_service_id, state, progress, created_at
		FROM tasks WHERE release_id = $1 ORDER BY created_at
	`, releaseID)
}

func (s *PostgresStore) ListTasksByService(ctx context.Context, serviceID string) ([]*types.Task, error) {
	return s.queryTasks(ctx, `
		SELECT kf_id, uuid, release_id, task_service_id, state, progress, created_at
		FROM tasks WHERE task_service_id = $1 ORDER BY created_at
	`, serviceID)
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]*types.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		var task types.Task
		if err := rows.Scan(
			&task.KfID, &task.UUID, &task.ReleaseID, &task.TaskServiceID,
			&task.State, &task.Progress, &task.CreatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task *types.Task) error {
	return s.CreateTask(ctx, task)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE kf_id = $1`, id)
	return err
}

// Event operations

func (s *PostgresStore) CreateEvent(ctx context.Context, event *types.Event) error {
	query := `
		INSERT INTO events (kf_id, uuid, event_type, message, release_id, task_id, task_service_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
	`
	_, err := s.pool.Exec(ctx, query,
		event.KfID, event.UUID, string(event.Type), event.Message,
		event.ReleaseID, event.TaskID, event.TaskServiceID, event.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	query := `
		SELECT kf_id, uuid, event_type, message,
		       COALESCE(release_id, ''), COALESCE(task_id, ''), COALESCE(task_service_id, ''),
		       created_at
		FROM events WHERE kf_id = $1
	`
	var event types.Event
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&event.KfID, &event.UUID, &event.Type, &event.Message,
		&event.ReleaseID, &event.TaskID, &event.TaskServiceID, &event.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]*types.Event, error) {
	query := `
		SELECT kf_id, uuid, event_type, message,
		       COALESCE(release_id, ''), COALESCE(task_id, ''), COALESCE(task_service_id, ''),
		       created_at
		FROM events
		WHERE ($1 = '' OR release_id = $1)
		  AND ($2 = '' OR task_id = $2)
		  AND ($3 = '' OR task_service_id = $3)
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query, filter.Release, filter.Task, filter.TaskService)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var event types.Event
		if err := rows.Scan(
			&event.KfID, &event.UUID, &event.Type, &event.Message,
			&event.ReleaseID, &event.TaskID, &event.TaskServiceID, &event.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) LatestEventForTask(ctx context.Context, taskID string) (*types.Event, error) {
	query := `
		SELECT kf_id, uuid, event_type, message,
		       COALESCE(release_id, ''), COALESCE(task_id, ''), COALESCE(task_service_id, ''),
		       created_at
		FROM events WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1
	`
	var event types.Event
	err := s.pool.QueryRow(ctx, query, taskID).Scan(
		&event.KfID, &event.UUID, &event.Type, &event.Message,
		&event.ReleaseID, &event.TaskID, &event.TaskServiceID, &event.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: events for task %s", types.ErrNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Study operations

func (s *PostgresStore) UpsertStudy(ctx context.Context, study *types.Study) error {
	query := `
		INSERT INTO studies (kf_id, name, visible, deleted, latest_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kf_id) DO UPDATE SET
			name = EXCLUDED.name,
			visible = EXCLUDED.visible,
			deleted = EXCLUDED.deleted,
			latest_version = EXCLUDED.latest_version
	`
	_, err := s.pool.Exec(ctx, query,
		study.KfID, study.Name, study.Visible, study.Deleted,
		study.LatestVersion, study.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetStudy(ctx context.Context, id string) (*types.Study, error) {
	query := `
		SELECT kf_id, name, visible, deleted, latest_version, created_at
		FROM studies WHERE kf_id = $1
	`
	var study types.Study
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&study.KfID, &study.Name, &study.Visible, &study.Deleted,
		&study.LatestVersion, &study.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: study %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &study, nil
}

func (s *PostgresStore) ListStudies(ctx context.Context) ([]*types.Study, error) {
	query := `
		SELECT kf_id, name, visible, deleted, latest_version, created_at
		FROM studies ORDER BY kf_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var studies []*types.Study
	for rows.Next() {
		var study types.Study
		if err := rows.Scan(
			&study.KfID, &study.Name, &study.Visible, &study.Deleted,
			&study.LatestVersion, &study.CreatedAt,
		); err != nil {
			return nil, err
		}
		studies = append(studies, &study)
	}
	return studies, rows.Err()
}

// Release note operations

func (s *PostgresStore) CreateReleaseNote(ctx context.Context, note *types.ReleaseNote) error {
	query := `
		INSERT INTO release_notes (kf_id, uuid, author, description, release_id, study_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (kf_id) DO UPDATE SET
			author = EXCLUDED.author,
			description = EXCLUDED.description,
			study_id = EXCLUDED.study_id
	`
	_, err := s.pool.Exec(ctx, query,
		note.KfID, note.UUID, note.Author, note.Description,
		note.ReleaseID, note.StudyID, note.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetReleaseNote(ctx context.Context, id string) (*types.ReleaseNote, error) {
	query := `
		SELECT kf_id, uuid, author, description, release_id, COALESCE(study_id, ''), created_at
		FROM release_notes WHERE kf_id = $1
	`
	var note types.ReleaseNote
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&note.KfID, &note.UUID, &note.Author, &note.Description,
		&note.ReleaseID, &note.StudyID, &note.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: release note %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *PostgresStore) ListReleaseNotes(ctx context.Context, filter NoteFilter) ([]*types.ReleaseNote, error) {
	query := `
		SELECT kf_id, uuid, author, description, release_id, COALESCE(study_id, ''), created_at
		FROM release_notes
		WHERE ($1 = '' OR release_id = $1)
		  AND ($2 = '' OR study_id = $2)
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, query, filter.Release, filter.Study)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*types.ReleaseNote
	for rows.Next() {
		var note types.ReleaseNote
		if err := rows.Scan(
			&note.KfID, &note.UUID, &note.Author, &note.Description,
			&note.ReleaseID, &note.StudyID, &note.CreatedAt,
		); err != nil {
			return nil, err
		}
		notes = append(notes, &note)
	}
	return notes, rows.Err()
}

func (s *PostgresStore) UpdateReleaseNote(ctx context.Context, note *types.ReleaseNote) error {
	return s.CreateReleaseNote(ctx, note)
}

func (s *PostgresStore) DeleteReleaseNote(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM release_notes WHERE kf_id = $1`, id)
	return err
}

// scanRelease reads one release row from a QueryRow or rows cursor.
func scanRelease(row pgx.Row) (*types.Release, error) {
	var rel types.Release
	err := row.Scan(
		&rel.KfID, &rel.UUID, &rel.Name, &rel.Description, &rel.Author,
		&rel.Tags, &rel.Studies, &rel.State, &rel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}
