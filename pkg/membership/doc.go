/*
Package membership runs the Raft group that decides a partition's
leadership and agrees on its replica set — the only state this scheduler
replicates through consensus; transaction dispatch itself never goes
through Raft, only site-to-site messaging over pkg/transport.

# Architecture

	┌─────────────────── PARTITION LEADERSHIP GROUP ─────────────┐
	│                                                              │
	│  ┌──────────────────────────────────────────────┐          │
	│  │              Elector                          │          │
	│  │  - Bootstrap()/Join() form the raft group     │          │
	│  │  - AddVoter/RemoveServer reconfigure it        │          │
	│  │  - UpdateReplicaSet commits a new replica set │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │          Raft Consensus Layer                 │          │
	│  │  - Leader election (~500ms-1s failover)       │          │
	│  │  - Log replication across the replica set     │          │
	│  │  - electorFSM applies committed commands      │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │              electorFSM                       │          │
	│  │  - Apply(): replace replicas/partitionMasters │          │
	│  │  - Snapshot()/Restore(): persist that state   │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │ on every change                       │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │    LeaderObserver (pkg/sps.Scheduler)          │          │
	│  │  - SetLeaderState(isLeader)                    │          │
	│  │  - UpdateReplicas(replicas, partitionMasters)  │          │
	│  └────────────────────────────────────────────────┘         │
	└──────────────────────────────────────────────────────────┘

# Core Components

Elector:
  - One per site, wraps a *raft.Raft over the partition's replica set
  - Bootstrap forms the group from a statically-configured replica list;
    Join attaches a new site to an already-bootstrapped group
  - Watches raft.Raft.LeaderCh() and forwards every transition to the
    registered LeaderObserver
  - Implements pkg/metrics.PartitionStatusSource (IsLeader, ReplicaCount)

electorFSM:
  - Raft finite state machine carrying only the replica set and
    partition-masters map, not transaction state
  - Apply/Snapshot/Restore follow the same JSON-over-raft.Log idiom used
    elsewhere in this codebase for Raft-backed state

LeaderObserver:
  - The small interface pkg/sps.Scheduler satisfies (SetLeaderState,
    UpdateReplicas), kept here rather than importing pkg/sps directly so
    this package has no dependency on the scheduler's internals

# Usage

	elector, err := membership.NewElector(membership.Config{
		SiteID:      1,
		PartitionID: 7,
		BindAddr:    "127.0.0.1:7100",
		DataDir:     "/var/lib/sps-node/site-1/raft",
	}, scheduler)

	err = elector.Bootstrap([]membership.ReplicaAddr{
		{SiteID: 1, Addr: "127.0.0.1:7100"},
		{SiteID: 2, Addr: "127.0.0.1:7101"},
		{SiteID: 3, Addr: "127.0.0.1:7102"},
	})

	// Later, after a fault drops a site below k-safety:
	err = elector.RemoveServer(2)
	err = elector.UpdateReplicaSet([]ids.SiteID{1, 3}, partitionMasters)

# Integration Points

This package integrates with:

  - pkg/sps: the Scheduler is the LeaderObserver; SetLeaderState gates
    handle allocation, UpdateReplicas recomputes the send set
  - pkg/metrics: Elector feeds PartitionIsLeader, PartitionReplicasTotal,
    PartitionLeaderChangesTotal, and MembershipApplyDuration
  - pkg/log: leadership transitions are logged via log.WithPartition
  - cmd/sps-node: constructs the Elector during startup, after the
    scheduler is built and the transport server has started serving

# Design Patterns

Raft-for-membership-only:
  - Keeping transaction dispatch off Raft (spec.md's own replication
    scheme handles that via DONE/MISMATCH/ABORT counters) means the
    leadership group's log stays tiny and elections stay fast, since
    there's no per-transaction log entry to replay

Tuned timeouts:
  - HeartbeatTimeout/ElectionTimeout/LeaderLeaseTimeout are lowered from
    Raft's WAN-oriented defaults, since a partition's clients block on
    dispatch during a leadership gap
*/
package membership
