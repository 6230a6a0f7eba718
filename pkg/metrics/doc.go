/*
Package metrics provides Prometheus metrics collection and exposition for the
single-partition scheduler.

The package defines and registers every scheduler metric using the Prometheus
client library, and adapts them behind the small push-style interfaces
pkg/sps and pkg/taskqueue depend on (so neither imports prometheus
directly). Metrics are exposed via an HTTP handler for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Categories               │          │
	│  │                                              │          │
	│  │  Scheduler: fatal terminations, counter      │          │
	│  │    outcomes, handle allocation rate,         │          │
	│  │    buffered-read depth                      │          │
	│  │  Task queue: depth                          │          │
	│  │  Command log: append latency/result, fault  │          │
	│  │    log entries                              │          │
	│  │  Membership: leadership, replica count      │          │
	│  │  Transport: message counts, send latency    │          │
	│  │  Replay/truncation: held messages, tau      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Collector                       │          │
	│  │  Implements sps.Metrics and taskqueue.Metrics│          │
	│  └──────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

# Metric catalog

Scheduler:
  - sps_fatal_terminations_total (counter) — cluster-fatal terminations
    (e.g. hash mismatch between replicas for the same {T,H})
  - sps_counter_outcomes_total{outcome} (counter) — duplicate counters
    reaching DONE/MISMATCH/ABORT
  - sps_handles_allocated_total (counter) — sp-handles allocated by this
    partition
  - sps_buffered_read_depth (gauge) — SAFE reads currently held pending a
    gating write's commit

Task queue:
  - sps_task_queue_depth (gauge) — tasks currently buffered for the
    external execution engine

Command log:
  - sps_command_log_append_duration_seconds{mode} (histogram)
  - sps_command_log_appends_total{mode,result} (counter)
  - sps_fault_log_entries_total (counter)

Membership:
  - sps_partition_is_leader (gauge) — 1 if this site is leader for its
    partition
  - sps_partition_replicas_total (gauge)
  - sps_partition_leader_changes_total (counter)

Transport:
  - sps_transport_messages_total{direction,kind} (counter)
  - sps_transport_send_duration_seconds{kind} (histogram)

Replay / truncation:
  - sps_truncation_handle (gauge) — current repair-log truncation point
  - sps_replay_held_total (gauge) — messages held in the replay sequencer

# Usage

Wire a Collector into the scheduler and task queue at startup:

	collector := metrics.NewCollector()
	scheduler.Metrics = collector
	taskQueue.SetMetrics(collector)

Expose the registry over HTTP alongside the health endpoints:

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())

# Example queries

Counter outcome rate by type, useful for alerting on sustained MISMATCH or
ABORT rates (either indicates a determinism bug, not a transient fault):

	rate(sps_counter_outcomes_total{outcome="MISMATCH"}[5m])

Command log append latency, p99, by mode:

	histogram_quantile(0.99, rate(sps_command_log_append_duration_seconds_bucket[5m]))

Leadership flapping (a leader change more than once a minute suggests an
unstable elector, not a healthy handoff):

	increase(sps_partition_leader_changes_total[1m]) > 1
*/
package metrics
