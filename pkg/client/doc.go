/*
Package client provides a Go client library for the drover REST API.

The client package wraps the coordinator's HTTP endpoints with typed
methods for every resource: task services, releases, tasks, events,
studies, and release notes. It handles request encoding, envelope
decoding for list endpoints, and turns error replies into structured
errors. The drover CLI is built on this package; external tools that
drive releases programmatically should use it too.

# Architecture

The client is a thin layer over net/http:

	┌──────────────────── APPLICATION CODE ─────────────────────┐
	│                                                            │
	│  import "github.com/cuemby/drover/pkg/client"              │
	│                                                            │
	│  c := client.NewClient("http://coordinator:8080")          │
	│  release, err := c.CreateRelease(...)                      │
	│                                                            │
	└──────────────────┬─────────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                            │
	│  Typed methods         CreateRelease, ListTaskServices...  │
	│  Envelope decoding     results/limit/offset/total          │
	│  Error mapping         non-2xx → *APIError                 │
	│  Per-call timeout      10 s                                │
	│                                                            │
	└──────────────────┬─────────────────────────────────────────┘
	                   │ HTTP + JSON
	                   ▼
	           Coordinator REST API

# Usage

Registering a service and starting a release:

	c := client.NewClient("http://localhost:8080")
	defer c.Close()

	svc, err := c.RegisterTaskService(client.TaskServiceInput{
		Name: "portal etl",
		URL:  "http://portal-etl:5000",
	})
	if err != nil {
		log.Fatal(err)
	}

	release, err := c.CreateRelease(client.ReleaseInput{
		Name:    "Quarterly release",
		Studies: []string{"SD_ME0WME0W"},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(release.KfID, release.State)

Coordination runs in the background on the server: CreateRelease
returns as soon as the release is accepted in waiting, and the caller
watches it advance by polling GetRelease or ListEvents.

# Pagination

List methods return one page and the overall total:

	releases, total, err := c.ListReleases(client.Page{Limit: 20})
	for total > len(releases) {
		more, _, err := c.ListReleases(client.Page{Limit: 20, Offset: len(releases)})
		...
	}

A zero Page takes the server's defaults.

# Errors

Replies outside 2xx are returned as *APIError carrying the HTTP status
and the server's message:

	_, err := c.PublishRelease("RE_00000000")
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		// no such release
	}

Transport failures (unreachable coordinator, timeouts) are returned as
wrapped errors, not *APIError.

# See Also

  - pkg/api for the server-side implementation
  - pkg/types for the entities the methods return
  - cmd/drover for CLI usage examples
*/
package client
