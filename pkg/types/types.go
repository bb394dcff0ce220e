package types

import (
	"time"
)

// HealthStatus is the derived reachability of a task service.
type HealthStatus string

const (
	HealthStatusOK   HealthStatus = "ok"
	HealthStatusDown HealthStatus = "down"
)

// HealthFailureThreshold is the number of consecutive probe failures a
// service may accumulate and still read as ok; one more marks it down.
// The threshold is applied on the read path only; the stored counter
// keeps counting past it.
const HealthFailureThreshold = 3

// TaskService is a registered remote worker endpoint. Services implement
// GET <url>/status for health probes and POST <url>/tasks for commands.
type TaskService struct {
	KfID                string    `json:"kf_id"`
	UUID                string    `json:"uuid"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	URL                 string    `json:"url"`
	Author              string    `json:"author"`
	Enabled             bool      `json:"enabled"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CreatedAt           time.Time `json:"created_at"`
}

// HealthStatus derives ok/down from the failure counter.
func (s *TaskService) HealthStatus() HealthStatus {
	if s.ConsecutiveFailures <= HealthFailureThreshold {
		return HealthStatusOK
	}
	return HealthStatusDown
}

// Release is a scheduled data release spanning one or more studies. Its
// lifecycle is driven by the coordinator; see ReleaseState for the machine.
type Release struct {
	KfID        string       `json:"kf_id"`
	UUID        string       `json:"uuid"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Author      string       `json:"author"`
	Tags        []string     `json:"tags"`
	Studies     []string     `json:"studies"`
	State       ReleaseState `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Task pairs a release with one task service. Exactly one task per
// (release, enabled service) is created when the release leaves waiting;
// no tasks are added to a release after that.
type Task struct {
	KfID          string    `json:"kf_id"`
	UUID          string    `json:"uuid"`
	ReleaseID     string    `json:"release"`
	TaskServiceID string    `json:"task_service"`
	State         TaskState `json:"state"`
	Progress      int       `json:"progress"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventType classifies journal entries.
type EventType string

const (
	EventTypeInfo    EventType = "info"
	EventTypeWarning EventType = "warning"
	EventTypeError   EventType = "error"
)

// Event is an append-only audit record. Entity references are soft: they
// hold kf_ids and are cleared when a referent is deleted, so the journal
// survives its subjects.
type Event struct {
	KfID          string    `json:"kf_id"`
	UUID          string    `json:"uuid"`
	Type          EventType `json:"event_type"`
	Message       string    `json:"message"`
	ReleaseID     string    `json:"release,omitempty"`
	TaskID        string    `json:"task,omitempty"`
	TaskServiceID string    `json:"task_service,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Study is an upstream dataset. The coordinator treats studies as opaque:
// it validates id format on release creation and keeps a synced catalog
// for listing, nothing more.
type Study struct {
	KfID          string    `json:"kf_id"`
	Name          string    `json:"name"`
	Visible       bool      `json:"visible"`
	Deleted       bool      `json:"deleted"`
	LatestVersion string    `json:"latest_version,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// MaxNoteLength caps release note descriptions.
const MaxNoteLength = 5000

// ReleaseNote is free-form commentary attached to a release and optionally
// to one of its studies. Notes are deleted with their release; a note's
// study reference is cleared if the study disappears from the catalog.
type ReleaseNote struct {
	KfID        string    `json:"kf_id"`
	UUID        string    `json:"uuid"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	ReleaseID   string    `json:"release"`
	StudyID     string    `json:"study,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClampProgress bounds a reported progress value to [0, 100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
