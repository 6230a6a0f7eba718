/*
Package commandlog provides BoltDB-backed durability for a partition's
single-partition scheduler: every dispatched command and every fault-log
entry is persisted before (or concurrently with, depending on mode) the
scheduler reports the corresponding transaction complete.

The package implements pkg/sps.CommandLog using BoltDB as the underlying
database, following the same bucket-per-concern, JSON-marshaled-value
approach the teacher's manager storage layer uses for cluster state.

# Architecture

	┌──────────────────── COMMAND LOG ──────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltLog                          │          │
	│  │  - File: <dataDir>/commandlog.db             │          │
	│  │  - Format: B+tree with MVCC                  │          │
	│  │  - Transactions: ACID with fsync             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ commandlog  (H, big-endian)│             │          │
	│  │  │ faultlog    (HFault)        │             │          │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Append path (mode-dependent)          │          │
	│  │  - ModeSync:     AppendSync blocks caller    │          │
	│  │  - ModeAsync:    Append returns a Future      │          │
	│  │  - ModeDisabled: scheduler skips the log      │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

# Core Components

BoltLog:
  - Implements sps.CommandLog using BoltDB
  - One database file per site
  - Automatic bucket creation on Open
  - Thread-safe via BoltDB's transaction model

Buckets:
  - commandlog: one entry per dispatched command, keyed by its sp-handle
  - faultlog: one entry per recorded replica fault, keyed by the fault handle

# Usage

Opening a log:

	clog, err := commandlog.Open("/var/lib/sps-node/site-1", sps.ModeSync)
	if err != nil {
		log.Fatal(err)
	}
	defer clog.Close()

Appending a command (mode-dependent blocking):

	entry := sps.LogEntry{H: h, T: t, U: u, Payload: payload}
	if clog.Mode() == sps.ModeSync {
		if err := clog.AppendSync(ctx, entry); err != nil {
			// durability failure: the scheduler must not acknowledge the client
		}
	} else {
		future := clog.Append(ctx, entry)
		// continue dispatch; check future.Error() before truncating the entry
	}

Recording a replica fault:

	err := clog.WriteFaultLog(ctx, sps.FaultLogEntry{
		LeaderHSId:  leaderSite,
		ReplicaSet:  replicas,
		PartitionID: partitionID,
		HFault:      hFault,
	})

Recovering on restart:

	entries, err := clog.ReadAll()
	// replay entries in H order to rebuild in-memory scheduler state

# Integration Points

This package integrates with:

  - pkg/sps: the scheduler holds a CommandLog and gates acknowledgement or
    truncation on Append/AppendSync per its configured LogMode
  - pkg/metrics: metrics.Collector.ObserveCommandLogAppend records
    append latency and outcome; BoltLog does not call it
  - cmd/sps-node: opens the BoltLog during startup, before the scheduler
    is constructed, and closes it during shutdown

# Design Patterns

Bucket-per-concern:
  - Two independent buckets rather than one, since faults and commands
    have different keys and different retention needs

Big-endian handle keys:
  - Keys sort in handle order, so ForEach recovery naturally replays the
    command log oldest-first without an extra sort pass

Error Wrapping:
  - Errors from Open and the marshal/write paths are wrapped with
    fmt.Errorf("...: %w", err) to preserve the underlying bbolt error

# Security

File Permissions:
  - Database file: 0600 (owner read/write only)
  - No authentication within the database; access control is the
    responsibility of the host process and its filesystem permissions
*/
package commandlog
