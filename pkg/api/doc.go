/*
Package api implements the Drover REST API server.

The api package is the single external surface of the coordinator. Release
admins, task services and UIs all speak to it over plain HTTP/JSON: admins
create and publish releases, task services push state updates for their
tasks, and UIs follow along on the event stream. Every mutation is delegated to
the coordinator or lifecycle packages so that state machine rules hold no
matter who is calling.

# Architecture

The server sits between HTTP clients and the coordination core:

	┌───────────────────── CLIENTS ──────────────────────────────┐
	│                                                             │
	│   Release admin        Task service         UI / dashboard  │
	│   (create, publish)    (PATCH task state)   (WebSocket)     │
	└─────────┬───────────────────┬───────────────────┬──────────┘
	          │ HTTP/JSON         │ HTTP/JSON         │ ws upgrade
	          │                   │                   │
	┌─────────▼───────────────────▼───────────────────▼──────────┐
	│                REST API Server (pkg/api)                    │
	│  - request decoding and validation                          │
	│  - pagination envelopes                                     │
	│  - domain error mapping                                     │
	│  - metrics instrumentation and panic recovery               │
	└───┬──────────────┬─────────────────┬──────────────┬────────┘
	    │              │                 │              │
	┌───▼────────┐ ┌───▼──────────┐ ┌────▼───────┐ ┌────▼───────┐
	│ coordinator│ │  lifecycle   │ │  storage   │ │   events   │
	│ (fan-out,  │ │ (FSM guards, │ │ (entities, │ │ (broker →  │
	│  cancel)   │ │  journal)    │ │  catalog)  │ │  WebSocket)│
	└────────────┘ └──────────────┘ └────────────┘ └────────────┘

# Endpoints

Task services:
  - POST   /task-services                register an integration
  - GET    /task-services                list with health status
  - GET    /task-services/{kf_id}        fetch one
  - PATCH  /task-services/{kf_id}        update fields, enable/disable
  - DELETE /task-services/{kf_id}        remove and cancel its live work
  - POST   /task-services/health_checks  trigger an immediate health sweep

Releases:
  - POST   /releases                     create and start coordination
  - GET    /releases                     list, newest first
  - GET    /releases/{kf_id}             fetch one
  - PATCH  /releases/{kf_id}             update metadata, never state
  - DELETE /releases/{kf_id}             cancel (the row is kept)
  - POST   /releases/{kf_id}/publish     promote a staged release

Tasks (read side plus the service push channel):
  - GET    /tasks                        list, ?release= filter
  - GET    /tasks/{kf_id}                fetch one
  - PATCH  /tasks/{kf_id}                service-reported state/progress

Events:
  - GET    /events                       journal, ?release= ?task= ?task_service=
  - GET    /events/{kf_id}               fetch one
  - GET    /events/stream                WebSocket live feed

Studies and release notes:
  - POST   /studies                      sync a catalog entry
  - GET    /studies, /studies/{kf_id}
  - POST   /release-notes                attach commentary to a release
  - GET    /release-notes                list, ?release= ?study= filters
  - GET/PATCH/DELETE /release-notes/{kf_id}

Operational:
  - GET    /health                       liveness
  - GET    /ready                        readiness with per-dependency checks
  - GET    /metrics                      Prometheus exposition

# Envelopes and Errors

List endpoints wrap results in a pagination envelope:

	{"results": [...], "limit": 10, "offset": 0, "total": 42}

limit defaults to 10 and caps at 100. Errors are a single-field body:

	{"message": "RE_00000001 is not a valid kf_id"}

Domain errors map onto status codes in one place (writeDomainError):

  - validation failures       -> 400
  - storage.ErrNotFound       -> 404
  - types.ErrInvalidTransition -> 409 (400 on publish, with guidance)
  - anything else             -> 500, logged server-side

# Event Stream

GET /events/stream upgrades to a WebSocket and mirrors the journal as it
is written. The stream is fire-and-forget: there is no replay and no ack.
A client that needs history reads GET /events first, then follows the
stream. Slow consumers are skipped by the broker rather than allowed to
block the journal path, and the server pings every 30 seconds to shed
dead connections. At most 200 concurrent stream clients are accepted.

# Monitoring

Key metrics to monitor:

API Health:
  - drover_api_requests_total: request rate by method and status
  - drover_api_request_duration_seconds: latency by method

Coordination Health:
  - drover_releases_total / drover_tasks_total: state gauges
  - drover_jobs_processed_total: queue throughput

# See Also

  - pkg/coordinator for the phase drivers behind the mutations
  - pkg/lifecycle for transition rules and the journal
  - pkg/events for the broker feeding the WebSocket stream
  - pkg/metrics for the exposed instrument set
*/
package api
