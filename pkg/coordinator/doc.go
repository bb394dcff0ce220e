/*
Package coordinator drives releases through their lifecycle by fanning
commands out to task services and gathering task states back into
release promotions.

A release moves in three phases, each a fan-out followed by a gather.
The coordinator owns the fan-outs; the gathers happen wherever task
state changes, by re-evaluating whether every task of the release has
reached the phase target.

# Architecture

	                     ┌────────── RELEASE ──────────┐
	                     │ waiting → initializing →    │
	                     │ running → staged →          │
	                     │ publishing → published      │
	                     │      ↘ canceling → canceled │
	                     │      ↘ failed               │
	                     └──────────────┬──────────────┘
	                                    │ gather: all tasks at target
	   init_release / publish_release / │
	   cancel_release / status_poll     │
	  ┌──────────────┐   fan out   ┌────┴─────┐   get_status   ┌─────────┐
	  │  Coordinator │────────────▶│  TASKS   │◀───────────────│ Poller  │
	  │ (job handler)│  commands   │ (per     │    replies     │ (ticker)│
	  └──────┬───────┘             │ service) │                └─────────┘
	         │ POST <url>/tasks    └──────────┘
	         ▼
	  ┌──────────────┐
	  │ Task services│  initialize / start / publish / cancel / get_status
	  └──────────────┘

Phase drivers:

	init_release     snapshot enabled services, create one waiting task
	                 per service, fan out initialize, promote the release
	                 to running, fan out start
	publish_release  fan out publish over the staged tasks (the endpoint
	                 moved the release to publishing synchronously)
	cancel_release   send best-effort cancel commands and cancel every
	                 non-terminal task, then close the release out
	status_poll      reconcile one task against its service's reply

# Failure Policy

A remote error during a fan-out cancels the release: the release moves
to canceling and a cancel_release job is enqueued. A task reported
failed (or rejected) by its service fails the release immediately and
still enqueues cancel_release so sibling tasks are told to stop. A task
that journals no activity within the configured timeout cancels the
release.

Every handler tolerates redelivery: state transitions are validated
against the machines in pkg/types, and an edge that is no longer legal
is a logged no-op rather than an error.

# Usage

	coord := coordinator.New(store, lifecycle, remoteClient, q, 5*time.Minute)
	coord.RegisterHandlers(pool)

	// User-initiated cancel (DELETE /releases/{id} uses this).
	coord.RequestCancel(ctx, release.KfID)

# Integration Points

This package integrates with:

  - pkg/lifecycle: Validated, journaled state transitions
  - pkg/remote: Command delivery to task services
  - pkg/queue: Job handlers and follow-up job enqueues
  - pkg/poller: Enqueues the status_poll jobs this package handles
  - pkg/api: Enqueues init and publish jobs, requests cancels, and
    routes service-pushed task states through ReportTaskState
*/
package coordinator
