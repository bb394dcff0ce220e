/*
Package lifecycle applies validated state transitions to releases and
tasks.

Every state change in Drover flows through this package's Manager. A
transition is checked against the state machine tables in pkg/types,
persisted through pkg/storage, journaled as an immutable Event, and then
distributed to the in-process broker and the external bus. Callers never
write a State field directly.

# Architecture

	┌──────────────────── LIFECYCLE MANAGER ────────────────────┐
	│                                                            │
	│     TransitionRelease / TransitionTask / progress and      │
	│              release metadata updates                      │
	│                          │                                 │
	│           ┌──────────────▼──────────────┐                  │
	│           │     Per-Release Lock        │                  │
	│           │  - one mutex per release    │                  │
	│           │  - tasks lock their release │                  │
	│           └──────────────┬──────────────┘                  │
	│                          │                                 │
	│        1. Load entity    │                                 │
	│        2. Check edge (pkg/types tables)                    │
	│        3. Persist new state                                │
	│        4. Journal Event ("x changed from a to b")          │
	│        5. Broker.Publish + Emitter.Emit (best-effort)      │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Transition Contract

  - Illegal edges return types.ErrInvalidTransition; nothing is written.
  - The journal message is "task <id> changed from <src> to <dst>" or
    "release <id> changed from <src> to <dst>".
  - Transitions into failed or rejected journal with event type error;
    all others journal as info.
  - Journal append and distribution happen after the state write and
    cannot fail the transition; append failures are logged.
  - Progress updates clamp to [0, 100] and produce no event.
  - Release metadata edits take the same lock as transitions but never
    touch State and journal nothing.

# Concurrency

All work for a release, including its tasks, serializes on one mutex
keyed by release id. Job handlers and API requests touching the same
release therefore see check-then-write as atomic. Distinct releases
proceed in parallel.

# Usage

	manager := lifecycle.NewManager(store, broker, emitter)

	release, err := manager.TransitionRelease(ctx, "RE_00000000", types.TransitionInitialize)
	if errors.Is(err, types.ErrInvalidTransition) {
		// edge not legal from the current state
	}

	task, err := manager.TransitionTask(ctx, "TA_00000000", types.TransitionStage)

# Integration Points

This package integrates with:

  - pkg/types: Transition tables and entity definitions
  - pkg/storage: State persistence and the event journal
  - pkg/events: Broker fan-out and NATS emission
  - pkg/coordinator: Job handlers drive all multi-step sequences
  - pkg/api: Synchronous transitions (publish, task PATCH)
*/
package lifecycle
