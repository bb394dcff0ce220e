/*
Package remote implements the HTTP protocol between the coordinator and
task services.

Task services are external HTTP integrations registered with Drover. The
coordinator drives them through two endpoints on each service:

	GET  <url>/status   health probe; any 2xx means the service is up
	POST <url>/tasks    deliver a command for one task

Commands carry the task id, its release id, and one action:

	{"task_id": "TA_00000000", "release_id": "RE_00000000", "action": "initialize"}

Actions are initialize, start, publish, cancel, and get_status. A service
may reply with its view of the task:

	{"state": "running", "progress": 42}

Both reply fields are optional; Response uses pointers so callers can
tell "absent" from zero values.

# Client Behavior

  - Every request is bounded by the HTTP client timeout (15 s default).
  - Requests are throttled per service host with a token bucket, so
    fan-out over many tasks on one service cannot flood it.
  - Non-2xx replies are errors; callers decide the consequence (health
    strike, task failure, release cancel).
  - An empty 2xx reply body is a valid acknowledgment.

# Usage

	client := remote.NewClient()

	if err := client.Status(ctx, service.URL); err != nil {
		// count a health strike
	}

	resp, err := client.Send(ctx, service.URL, remote.Command{
		TaskID:    task.KfID,
		ReleaseID: task.ReleaseID,
		Action:    remote.ActionStart,
	})

The Caller interface lets job handlers be tested against fakes without a
network.

# Integration Points

This package integrates with:

  - pkg/coordinator: All fan-out and polling traffic
  - pkg/health: Status probes for the strike counter
  - pkg/queue: Handlers invoke the caller from worker goroutines
*/
package remote
