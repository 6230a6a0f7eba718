/*
Package log provides structured logging for the single-partition scheduler
using zerolog.

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
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("sps")                     │          │
	│  │  - WithSite(3)                              │          │
	│  │  - WithPartition(7)                         │          │
	│  │  - WithTxn(918273)                          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "sps",                      │          │
	│  │    "partition_id": 7,                       │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "counter reached DONE"        │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF counter reached DONE component=sps partition_id=7 │ │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all scheduler packages without passing a value
  - Thread-safe concurrent writes

Log Levels:
  - Debug: per-message dispatch tracing
  - Info: general informational messages (leadership changes, checkpoints)
  - Warn: potential issues (buffered-read backlog growing, gate held long)
  - Error: operation failed but the process continues
  - Fatal: cluster-fatal conditions (hash mismatch); logs and exits

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: add a component name to all logs
  - WithSite: add a site_id field, for per-replica-site logging
  - WithPartition: add a partition_id field
  - WithTxn: add a txn_id field, for per-transaction tracing

# Usage

Initializing the logger:

	import "github.com/Kernelock/voltdb/pkg/log"

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

Simple logging:

	log.Info("scheduler started")
	log.Debug("dispatching InitiateTask")
	log.Warn("buffered read log depth exceeds threshold")
	log.Error("command log append failed")
	log.Fatal("cannot start without a command log")

Structured logging:

	log.Logger.Info().
		Int32("partition_id", 7).
		Int64("txn_id", 918273).
		Msg("transaction committed")

Component loggers:

	spsLog := log.WithComponent("sps")
	spsLog.Info().Msg("dispatch loop started")

	txnLog := log.WithComponent("sps").
		With().Int32("partition_id", 7).
		Int64("txn_id", 918273).Logger()
	txnLog.Info().Msg("counter reached DONE")
	txnLog.Error().Err(err).Msg("counter reached MISMATCH")

Context logger helpers:

	siteLog := log.WithSite(3)
	siteLog.Info().Msg("replica joined partition")

	partitionLog := log.WithPartition(7)
	partitionLog.Info().Msg("leadership acquired")

	txnLog := log.WithTxn(918273)
	txnLog.Info().Msg("fragment dispatched")

# Integration Points

This package integrates with:

  - pkg/sps: logs dispatch decisions, counter outcomes, fatal terminations
  - pkg/membership: logs leadership/replica-set changes
  - pkg/commandlog: does not log; it returns wrapped errors, and pkg/sps
    logs append and fault log write failures
  - pkg/transport: logs connection and stream lifecycle events
  - cmd/sps-node: initializes the logger before any other component starts

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int32, .Int64, .Err)
  - Enables log aggregation and querying
  - Parseable by log analysis tools

# Security

Log Content:
  - Never log full transaction payloads or invocation parameters that may
    carry sensitive application data; log hashes and sizes instead.
  - Use typed fields rather than string concatenation for any
    caller-supplied data, to avoid log injection.
*/
package log
