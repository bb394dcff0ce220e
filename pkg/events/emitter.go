package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/types"
)

// busMessage is the envelope published to the external bus. Reference
// fields are null when the event is not tied to that entity.
type busMessage struct {
	EventType   string  `json:"event_type"`
	Message     string  `json:"message"`
	Task        *string `json:"task"`
	TaskService *string `json:"task_service"`
	Release     *string `json:"release"`
}

// Emitter publishes journal events to a NATS subject for external
// consumers. Emission is best-effort: a failed publish is logged and
// dropped, never surfaced to the caller. An Emitter built without a
// bus URL is a no-op.
type Emitter struct {
	nc      *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewEmitter connects to the bus. An empty URL or subject disables
// emission and returns a no-op emitter.
func NewEmitter(url, subject string) (*Emitter, error) {
	logger := log.WithComponent("events")
	if url == "" || subject == "" {
		logger.Debug().Msg("Event bus disabled")
		return &Emitter{logger: logger}, nil
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info().Str("url", url).Str("subject", subject).Msg("Connected to event bus")
	return &Emitter{nc: nc, subject: subject, logger: logger}, nil
}

// Emit publishes an event to the bus. Failures are logged and swallowed
// so the journal write that produced the event always wins.
func (e *Emitter) Emit(event *types.Event) {
	if e.nc == nil {
		return
	}

	msg := busMessage{
		EventType:   string(event.Type),
		Message:     event.Message,
		Task:        nullable(event.TaskID),
		TaskService: nullable(event.TaskServiceID),
		Release:     nullable(event.ReleaseID),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		e.logger.Warn().Err(err).Str("event", event.KfID).Msg("Failed to marshal bus message")
		return
	}

	if err := e.nc.Publish(e.subject, data); err != nil {
		e.logger.Warn().Err(err).Str("event", event.KfID).Msg("Failed to publish event to bus")
	}
}

// Close drains and closes the bus connection
func (e *Emitter) Close() {
	if e.nc != nil {
		e.nc.Drain()
		e.nc.Close()
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
