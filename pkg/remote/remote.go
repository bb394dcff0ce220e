package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
)

const (
	// DefaultTimeout bounds every request to a task service
	DefaultTimeout = 15 * time.Second

	defaultRequestsPerSecond = 10
	defaultBurst             = 10
)

// Action is a coordinator command delivered to a task service
type Action string

const (
	ActionInitialize Action = "initialize"
	ActionStart      Action = "start"
	ActionPublish    Action = "publish"
	ActionCancel     Action = "cancel"
	ActionGetStatus  Action = "get_status"
)

// Command is the request body POSTed to a task service's /tasks endpoint
type Command struct {
	TaskID    string `json:"task_id"`
	ReleaseID string `json:"release_id"`
	Action    Action `json:"action"`
}

// Response is a task service's reply. Both fields are optional; a
// service that has nothing to report returns an empty body.
type Response struct {
	State    *string `json:"state"`
	Progress *int    `json:"progress"`
}

// Caller abstracts the wire protocol so job handlers can be tested
// against fakes.
type Caller interface {
	// Status probes GET <url>/status. A nil error means the service
	// answered with a 2xx.
	Status(ctx context.Context, serviceURL string) error

	// Send POSTs a command to <url>/tasks and decodes the reply.
	Send(ctx context.Context, serviceURL string, cmd Command) (*Response, error)
}

// Client is the production Caller. Requests are bounded by the HTTP
// client timeout and throttled per service host so a busy coordinator
// cannot flood an integration.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	rate       rate.Limit
	burst      int
}

// NewClient creates a remote client with default timeout and rate limits
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.WithComponent("remote"),
		limiters:   make(map[string]*rate.Limiter),
		rate:       rate.Limit(defaultRequestsPerSecond),
		burst:      defaultBurst,
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// WithRateLimit sets the per-host request rate and burst
func (c *Client) WithRateLimit(requestsPerSecond float64, burst int) *Client {
	c.rate = rate.Limit(requestsPerSecond)
	c.burst = burst
	return c
}

// Status implements Caller
func (c *Client) Status(ctx context.Context, serviceURL string) error {
	if err := c.throttle(ctx, serviceURL); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(serviceURL, "/status"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RemoteRequestDuration.WithLabelValues("status").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("status", "error").Inc()
		return fmt.Errorf("status check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteRequests.WithLabelValues("status", "error").Inc()
		return fmt.Errorf("status check returned HTTP %d", resp.StatusCode)
	}

	metrics.RemoteRequests.WithLabelValues("status", "ok").Inc()
	return nil
}

// Send implements Caller
func (c *Client) Send(ctx context.Context, serviceURL string, cmd Command) (*Response, error) {
	if err := c.throttle(ctx, serviceURL); err != nil {
		return nil, err
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(serviceURL, "/tasks"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().
		Str("url", serviceURL).
		Str("task", cmd.TaskID).
		Str("action", string(cmd.Action)).
		Msg("Sending command to task service")

	action := string(cmd.Action)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RemoteRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("failed to send %s: %w", cmd.Action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteRequests.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("%s returned HTTP %d", cmd.Action, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty reply is a valid acknowledgment.
			metrics.RemoteRequests.WithLabelValues(action, "ok").Inc()
			return &out, nil
		}
		metrics.RemoteRequests.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	metrics.RemoteRequests.WithLabelValues(action, "ok").Inc()
	return &out, nil
}

// throttle waits on the host's token bucket before a request goes out
func (c *Client) throttle(ctx context.Context, serviceURL string) error {
	limiter := c.hostLimiter(serviceURL)
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}
	return nil
}

func (c *Client) hostLimiter(serviceURL string) *rate.Limiter {
	key := serviceURL
	if parsed, err := url.Parse(serviceURL); err == nil && parsed.Host != "" {
		key = parsed.Host
	}

	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()

	limiter, ok := c.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(c.rate, c.burst)
		c.limiters[key] = limiter
	}
	return limiter
}

func endpoint(serviceURL, path string) string {
	return strings.TrimRight(serviceURL, "/") + path
}
