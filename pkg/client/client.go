package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/drover/pkg/types"
)

// requestTimeout bounds every call, list and mutate alike.
const requestTimeout = 10 * time.Second

// Client wraps the coordinator REST API for easy CLI and tool usage
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the coordinator at baseURL, e.g.
// "http://localhost:8080". A trailing slash is tolerated.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Close releases idle connections held by the client
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// APIError is a non-2xx reply, carrying the server's decoded message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Page selects a window of a list. Zero values take server defaults.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) query() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

// TaskService is the wire form of a registered service: the entity plus
// its derived health.
type TaskService struct {
	types.TaskService
	Health types.HealthStatus `json:"health_status"`
}

// HealthInfo is the /health payload.
type HealthInfo struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// TaskServiceInput carries the fields accepted when registering a service.
type TaskServiceInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	Author      string `json:"author,omitempty"`
}

// TaskServiceUpdate is a partial edit of a registered service. Nil
// pointers leave the field as is.
type TaskServiceUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// ReleaseInput carries the fields accepted when creating a release.
type ReleaseInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Studies     []string `json:"studies"`
}

// ReleaseUpdate is a partial edit of release metadata. State is not
// editable this way; use PublishRelease and CancelRelease.
type ReleaseUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Author      *string   `json:"author,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Studies     *[]string `json:"studies,omitempty"`
}

// StudyInput mirrors the upstream catalog entry pushed on sync.
type StudyInput struct {
	KfID          string `json:"kf_id"`
	Name          string `json:"name"`
	Visible       bool   `json:"visible"`
	Deleted       bool   `json:"deleted"`
	LatestVersion string `json:"latest_version,omitempty"`
}

// NoteInput carries the fields accepted when creating a release note.
type NoteInput struct {
	Release     string `json:"release"`
	Study       string `json:"study,omitempty"`
	Description string `json:"description"`
	Author      string `json:"author,omitempty"`
}

// EventFilter narrows event listings to one entity; empty fields match all.
type EventFilter struct {
	Release     string
	Task        string
	TaskService string
}

func (f EventFilter) apply(q url.Values) url.Values {
	if f.Release != "" {
		q.Set("release", f.Release)
	}
	if f.Task != "" {
		q.Set("task", f.Task)
	}
	if f.TaskService != "" {
		q.Set("task_service", f.TaskService)
	}
	return q
}

// RegisterTaskService registers a new task service
func (c *Client) RegisterTaskService(in TaskServiceInput) (*TaskService, error) {
	var out TaskService
	if err := c.do(http.MethodPost, "/task-services", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTaskServices lists registered services, returning one page and the
// overall total
func (c *Client) ListTaskServices(page Page) ([]TaskService, int, error) {
	return list[TaskService](c, "/task-services", page.query())
}

// GetTaskService gets a service by kf_id
func (c *Client) GetTaskService(id string) (*TaskService, error) {
	var out TaskService
	if err := c.do(http.MethodGet, "/task-services/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTaskService applies a partial edit to a service
func (c *Client) UpdateTaskService(id string, in TaskServiceUpdate) (*TaskService, error) {
	var out TaskService
	if err := c.do(http.MethodPatch, "/task-services/"+id, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTaskService removes a service and returns its final shape
func (c *Client) DeleteTaskService(id string) (*TaskService, error) {
	var out TaskService
	if err := c.do(http.MethodDelete, "/task-services/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerHealthChecks enqueues an immediate health sweep over all services
func (c *Client) TriggerHealthChecks() error {
	return c.do(http.MethodPost, "/task-services/health_checks", nil, nil, nil)
}

// CreateRelease creates a release; coordination starts in the background
func (c *Client) CreateRelease(in ReleaseInput) (*types.Release, error) {
	var out types.Release
	if err := c.do(http.MethodPost, "/releases", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReleases lists releases, newest first
func (c *Client) ListReleases(page Page) ([]*types.Release, int, error) {
	return list[*types.Release](c, "/releases", page.query())
}

// GetRelease gets a release by kf_id
func (c *Client) GetRelease(id string) (*types.Release, error) {
	var out types.Release
	if err := c.do(http.MethodGet, "/releases/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRelease applies a partial metadata edit to a release
func (c *Client) UpdateRelease(id string, in ReleaseUpdate) (*types.Release, error) {
	var out types.Release
	if err := c.do(http.MethodPatch, "/releases/"+id, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublishRelease asks a staged release to publish
func (c *Client) PublishRelease(id string) (*types.Release, error) {
	var out types.Release
	if err := c.do(http.MethodPost, "/releases/"+id+"/publish", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelRelease requests cancellation of a release
func (c *Client) CancelRelease(id string) (*types.Release, error) {
	var out types.Release
	if err := c.do(http.MethodDelete, "/releases/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks lists tasks, optionally restricted to one release
func (c *Client) ListTasks(releaseID string, page Page) ([]*types.Task, int, error) {
	q := page.query()
	if releaseID != "" {
		q.Set("release", releaseID)
	}
	return list[*types.Task](c, "/tasks", q)
}

// GetTask gets a task by kf_id
func (c *Client) GetTask(id string) (*types.Task, error) {
	var out types.Task
	if err := c.do(http.MethodGet, "/tasks/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvents lists journal entries matching the filter, oldest first
func (c *Client) ListEvents(filter EventFilter, page Page) ([]*types.Event, int, error) {
	return list[*types.Event](c, "/events", filter.apply(page.query()))
}

// GetEvent gets a journal entry by kf_id
func (c *Client) GetEvent(id string) (*types.Event, error) {
	var out types.Event
	if err := c.do(http.MethodGet, "/events/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncStudy upserts a study catalog entry
func (c *Client) SyncStudy(in StudyInput) (*types.Study, error) {
	var out types.Study
	if err := c.do(http.MethodPost, "/studies", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStudies lists the synced study catalog
func (c *Client) ListStudies(page Page) ([]*types.Study, int, error) {
	return list[*types.Study](c, "/studies", page.query())
}

// GetStudy gets a study by kf_id
func (c *Client) GetStudy(id string) (*types.Study, error) {
	var out types.Study
	if err := c.do(http.MethodGet, "/studies/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateReleaseNote attaches a note to a release
func (c *Client) CreateReleaseNote(in NoteInput) (*types.ReleaseNote, error) {
	var out types.ReleaseNote
	if err := c.do(http.MethodPost, "/release-notes", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReleaseNote gets a note by kf_id
func (c *Client) GetReleaseNote(id string) (*types.ReleaseNote, error) {
	var out types.ReleaseNote
	if err := c.do(http.MethodGet, "/release-notes/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReleaseNote replaces a note's description
func (c *Client) UpdateReleaseNote(id, description string) (*types.ReleaseNote, error) {
	var out types.ReleaseNote
	body := map[string]string{"description": description}
	if err := c.do(http.MethodPatch, "/release-notes/"+id, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReleaseNotes lists notes, optionally filtered by release or study
func (c *Client) ListReleaseNotes(release, study string, page Page) ([]*types.ReleaseNote, int, error) {
	q := page.query()
	if release != "" {
		q.Set("release", release)
	}
	if study != "" {
		q.Set("study", study)
	}
	return list[*types.ReleaseNote](c, "/release-notes", q)
}

// DeleteReleaseNote removes a note and returns its final shape
func (c *Client) DeleteReleaseNote(id string) (*types.ReleaseNote, error) {
	var out types.ReleaseNote
	if err := c.do(http.MethodDelete, "/release-notes/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports the coordinator's liveness and version
func (c *Client) Health() (*HealthInfo, error) {
	var out HealthInfo
	if err := c.do(http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// envelope is the wire shape of every list response.
type envelope[T any] struct {
	Results []T `json:"results"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
	Total   int `json:"total"`
}

func list[T any](c *Client, path string, query url.Values) ([]T, int, error) {
	var env envelope[T]
	if err := c.do(http.MethodGet, path, query, nil, &env); err != nil {
		return nil, 0, err
	}
	return env.Results, env.Total, nil
}

// do issues one request and decodes the reply into out when out is
// non-nil. Non-2xx replies become *APIError with the server's message.
func (c *Client) do(method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var parsed struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
