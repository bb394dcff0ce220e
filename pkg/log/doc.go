/*
Package log provides structured logging for Drover using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("coordinator")             │          │
	│  │  - WithRelease("RE_3GX92KQA")               │          │
	│  │  - WithTask("TA_00000001")                  │          │
	│  │  - WithService("TS_00000001")               │          │
	│  │  - WithJob("status_poll", jobID)            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "coordinator",              │          │
	│  │    "release": "RE_3GX92KQA",                │          │
	│  │    "time": "2026-08-24T10:30:00Z",          │          │
	│  │    "message": "release staged"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF release staged component=coordinator │    │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Drover packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithRelease: Add release kf_id context
  - WithTask: Add task kf_id context
  - WithService: Add task service kf_id context
  - WithJob: Add background job kind and id context

# Usage

Initializing the Logger:

	import "github.com/cuemby/drover/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("coordinator started")
	log.Warn("task service unreachable")
	log.Error("failed to enqueue health sweep")

Structured Logging:

	log.Logger.Info().
		Str("release", "RE_3GX92KQA").
		Int("tasks", 3).
		Msg("release initialized")

	log.Logger.Error().
		Err(err).
		Str("task_service", "TS_00000001").
		Msg("health probe failed")

Component Loggers:

	coordLog := log.WithComponent("coordinator")
	coordLog.Info().Msg("starting fan-out")
	coordLog.Debug().Str("task", "TA_00000001").Msg("sending initialize")

	// Multiple context fields
	pollLog := log.WithComponent("poller").
		With().Str("release", relID).
		Str("task", taskID).Logger()
	pollLog.Info().Msg("polling task status")

# Integration Points

This package integrates with:

  - pkg/coordinator: Logs fan-out decisions and gather promotions
  - pkg/queue: Logs job dispatch, completion, and no-op transitions
  - pkg/health: Logs probe results and counter changes
  - pkg/poller: Logs poll scheduling
  - pkg/events: Logs bus emission failures (best-effort path)
  - pkg/api: Logs request handling errors

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Background-job no-ops (disallowed transitions) log at debug,
    never at error: at-least-once delivery makes them routine

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Include context (release, task, task_service kf_ids)

Don't:
  - Log secrets or connection strings
  - Use Debug level in production
  - Log in tight poll loops without sampling
  - Concatenate ids into messages (use .Str)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
