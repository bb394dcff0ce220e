/*
Package types defines the core data model for Drover: releases, tasks,
task services, events, studies, and release notes, together with the two
state machines that govern release and task lifecycles.

All other packages depend on types; types depends on nothing but the
standard library. Entities are plain structs with JSON tags matching the
REST surface, and state machine rules are expressed as data (edge tables)
resolved through NextReleaseState and NextTaskState.

# Architecture

	┌─────────────────────── DATA MODEL ───────────────────────┐
	│                                                           │
	│  ┌──────────────┐        ┌──────────────┐                │
	│  │   Release    │ 1    N │     Task     │                │
	│  │  RE_XXXXXXXX │◄───────│  TA_XXXXXXXX │                │
	│  │  studies[]   │        │  progress    │                │
	│  │  state       │        │  state       │                │
	│  └──────┬───────┘        └──────┬───────┘                │
	│         │                       │ N                       │
	│         │                       │                         │
	│         │                       ▼ 1                       │
	│         │                ┌──────────────┐                │
	│         │                │ TaskService  │                │
	│         │                │  TS_XXXXXXXX │                │
	│         │                │  url,enabled │                │
	│         │                │  failures    │                │
	│         │                └──────────────┘                │
	│         │                                                 │
	│         ▼ soft refs (nullable kf_ids)                     │
	│  ┌──────────────────────────────────────┐                │
	│  │              Event                    │                │
	│  │  EV_XXXXXXXX  append-only journal     │                │
	│  │  info/warning/error + message         │                │
	│  └──────────────────────────────────────┘                │
	└───────────────────────────────────────────────────────────┘

# Release State Machine

	waiting ──initialize──► initializing ──start──► running
	                                                   │
	                                                 stage
	                                                   ▼
	published ◄──complete── publishing ◄──publish── staged

	Any pre-published state ──cancel──► canceling ──finish_cancel──► canceled
	Any pre-published state or canceling ──fail──► failed

Cancel is a two-step affair: the cancel edge parks the release in
canceling immediately, and finish_cancel lands it in canceled once every
task of the release has reached a terminal state.

# Task State Machine

	waiting ──initialize──► initialized ──start──► running
	   │                                              │
	 reject                                         stage
	   ▼                                              ▼
	rejected                published ◄──complete── staged ──publish──► publishing

	Any state ──fail──► failed
	Any state ──cancel──► canceled

Reject is only available from waiting (a service can refuse to
participate before work begins). Fail and cancel are wildcard edges.

# Identifiers

Every entity carries a kf_id of the form <PREFIX>_XXXXXXXX where the
suffix is 8 characters of Crockford-style base32 (no I, L, O, U):

	RE  Release
	TA  Task
	TS  TaskService
	EV  Event
	SD  Study (minted upstream; validated with the looser [0-9A-Z] range)
	RN  ReleaseNote

Entities also carry an internal UUID for correlation with external
systems.

# Health Derivation

TaskService keeps a ConsecutiveFailures counter maintained by the health
monitor. The ok/down status is derived on read:

	health_status = ok    if consecutive_failures <= 3
	health_status = down  otherwise

The threshold is a constant on the read path; changing it never requires
a data migration.

# Usage

Resolving a transition:

	next, err := types.NextReleaseState(rel.State, types.TransitionPublish)
	if err != nil {
		// errors.Is(err, types.ErrInvalidTransition) == true
	}
	rel.State = next

Checking without applying:

	if task.CanTransition(types.TransitionInitialize) {
		// safe to drive the initialize phase
	}

Terminal checks during gather:

	allDone := true
	for _, task := range tasks {
		if !task.State.Terminal() {
			allDone = false
			break
		}
	}

# Error Types

ErrNotFound and ErrInvalidTransition are sentinel errors tested with
errors.Is. ValidationError aggregates request-level input problems and is
unwrapped with errors.As; its messages are part of the API contract
(study id validation in particular).

# Integration Points

This package is imported by:

  - pkg/storage: persistence of all six entities
  - pkg/lifecycle: transition resolution and event journaling
  - pkg/coordinator: fan-out/gather over release and task machines
  - pkg/health: failure counter maintenance
  - pkg/api: request validation and response shaping

# Design Notes

State machine rules live here rather than in the coordinator so that
every consumer (HTTP handlers, background jobs, tests) rejects the same
illegal edges. The edge tables are the single source of truth; there is
deliberately no setter that bypasses them short of assigning the struct
field directly, which only the storage layer's round-trip does.

Events reference entities by kf_id only. When a referent is deleted the
journal row stays behind with the id dangling, which preserves the audit
trail across service deregistration and release cleanup.
*/
package types
