/*
Package events distributes release journal events to live subscribers and
the external message bus.

Every state transition in Drover produces an immutable Event row in
storage. This package carries those events beyond storage: the Broker fans
them out to in-process subscribers (the WebSocket stream, tests), and the
Emitter publishes them to a NATS subject for external consumers such as
notification services. Both paths are best-effort; the journal row in
storage is the source of truth.

# Architecture

	┌───────────────────── EVENT DISTRIBUTION ─────────────────────┐
	│                                                               │
	│  ┌────────────────────────────────────────────┐              │
	│  │            Lifecycle Manager                │              │
	│  │  - Persists Event to storage (journal)     │              │
	│  │  - Then hands event to this package        │              │
	│  └──────────────┬───────────────────┬─────────┘              │
	│                 │                   │                         │
	│  ┌──────────────▼─────────┐  ┌─────▼────────────────────┐   │
	│  │        Broker          │  │        Emitter           │   │
	│  │  - In-memory fan-out   │  │  - NATS publish          │   │
	│  │  - Event chan (100)    │  │  - JSON envelope         │   │
	│  │  - Per-sub buffer (50) │  │  - No-op without URL     │   │
	│  │  - Non-blocking        │  │  - Failures logged only  │   │
	│  └──────────────┬─────────┘  └─────┬────────────────────┘   │
	│                 │                   │                         │
	│  ┌──────────────▼─────────┐  ┌─────▼────────────────────┐   │
	│  │      Subscribers       │  │    Bus Consumers         │   │
	│  │  - WebSocket clients   │  │  - Notification service  │   │
	│  │  - Tests               │  │  - External dashboards   │   │
	│  └────────────────────────┘  └──────────────────────────┘   │
	└───────────────────────────────────────────────────────────┘

# Core Components

Broker:
  - Central in-process fan-out for journal events
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Subscriber:
  - Channel that receives *types.Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

Emitter:
  - Publishes each event to a configured NATS subject
  - Built disabled when no bus URL or subject is set
  - Publish failures are logged and dropped
  - Drains the connection on Close

# Event Flow

Publish Flow:
 1. Lifecycle manager persists the Event row
 2. Manager calls broker.Publish(event) and emitter.Emit(event)
 3. Broker's broadcast loop sends to every subscriber channel
 4. Full subscriber buffers skip (no blocking)
 5. Emitter marshals the bus envelope and publishes to NATS

Subscribe Flow:
 1. Subscriber calls broker.Subscribe()
 2. New buffered channel registered in subscriber map
 3. Subscriber receives events via channel in its own goroutine
 4. broker.Unsubscribe(sub) removes and closes the channel

# Bus Message Format

The bus envelope mirrors the journal event. Reference fields carry the
kf_id of the related entity, or null when the event is not tied to one:

	{
	  "event_type": "info",
	  "message": "task TA_00000000 changed from waiting to initialized",
	  "task": "TA_00000000",
	  "task_service": "TS_00000000",
	  "release": "RE_00000000"
	}

Consumers must treat the stream as lossy; the events table holds the
complete history.

# Usage

Creating and Starting the Broker:

	import "github.com/cuemby/drover/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()

Publishing to the Bus:

	emitter, err := events.NewEmitter("nats://localhost:4222", "drover.events")
	if err != nil {
		return err
	}
	defer emitter.Close()

	emitter.Emit(event) // best-effort, never returns an error

# Integration Points

This package integrates with:

  - pkg/lifecycle: Publishes every recorded state change
  - pkg/api: Streams broker events to WebSocket clients
  - pkg/storage: Events are journaled there before distribution

# Design Patterns

Non-Blocking Publish:
  - Publish sends to a buffered channel and returns immediately
  - Events may be dropped if a subscriber falls behind
  - Trade-off: the transition path never waits on a consumer

Fire-and-Forget Bus:
  - No acknowledgment, no retry on publish failure
  - A dead bus never blocks or fails a release transition
  - The journal in storage remains authoritative

# Limitations

  - Broker is in-memory only; restarting drops live subscriptions
  - No replay: late subscribers read history from the events API
  - No topic filtering: all events broadcast to all subscribers

# See Also

  - pkg/lifecycle for where events originate
  - pkg/api for the WebSocket stream fed by the broker
  - Pub/sub pattern: https://en.wikipedia.org/wiki/Publish%E2%80%93subscribe_pattern
*/
package events
