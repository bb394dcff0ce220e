package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/status", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	require.NoError(t, client.Status(context.Background(), server.URL))
}

func TestStatusTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient()
	require.NoError(t, client.Status(context.Background(), server.URL+"/"))
}

func TestStatusNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient()
	err := client.Status(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestStatusConnectionRefused(t *testing.T) {
	client := NewClient()
	err := client.Status(context.Background(), "http://127.0.0.1:1")
	require.Error(t, err)
}

func TestSendDecodesResponse(t *testing.T) {
	var received Command
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"state": "staged", "progress": 50})
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Send(context.Background(), server.URL, Command{
		TaskID:    "TA_00000000",
		ReleaseID: "RE_00000000",
		Action:    ActionGetStatus,
	})
	require.NoError(t, err)

	assert.Equal(t, "TA_00000000", received.TaskID)
	assert.Equal(t, "RE_00000000", received.ReleaseID)
	assert.Equal(t, ActionGetStatus, received.Action)

	require.NotNil(t, resp.State)
	assert.Equal(t, "staged", *resp.State)
	require.NotNil(t, resp.Progress)
	assert.Equal(t, 50, *resp.Progress)
}

func TestSendEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Send(context.Background(), server.URL, Command{Action: ActionInitialize})
	require.NoError(t, err)
	assert.Nil(t, resp.State)
	assert.Nil(t, resp.Progress)
}

func TestSendNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient()
	_, err := client.Send(context.Background(), server.URL, Command{Action: ActionStart})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start returned HTTP 400")
}

func TestSendTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient().WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond})
	_, err := client.Send(context.Background(), server.URL, Command{Action: ActionPublish})
	require.Error(t, err)
}

func TestRateLimiterThrottles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Burst of one at 20 req/s: the second call waits ~50ms.
	client := NewClient().WithRateLimit(20, 1)
	ctx := context.Background()

	require.NoError(t, client.Status(ctx, server.URL))
	start := time.Now()
	require.NoError(t, client.Status(ctx, server.URL))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSendContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient()
	_, err := client.Send(ctx, server.URL, Command{Action: ActionCancel})
	require.Error(t, err)
}
