package membership

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/hashicorp/raft"
)

// electorFSM implements the Raft finite state machine that backs a
// partition's leadership group. Unlike a general-purpose cluster-state
// FSM, the only state it owns is the partition's current replica set and
// per-partition leadership map (partitionMasters) — the scheduler itself
// owns all transaction state, and never goes through Raft.
type electorFSM struct {
	mu sync.RWMutex

	replicas         []ids.SiteID
	partitionMasters map[ids.PartitionID]ids.SiteID

	onReplicasChanged func(replicas []ids.SiteID, partitionMasters map[ids.PartitionID]ids.SiteID)
}

func newElectorFSM(onReplicasChanged func([]ids.SiteID, map[ids.PartitionID]ids.SiteID)) *electorFSM {
	return &electorFSM{
		partitionMasters:  make(map[ids.PartitionID]ids.SiteID),
		onReplicasChanged: onReplicasChanged,
	}
}

// command is the single operation this FSM understands: replace the
// replica set and the partition-to-master map wholesale. Unlike a
// CRUD-style command log, partial updates aren't needed here — the
// replica set changes rarely and atomically on fault/rejoin.
type command struct {
	Replicas         []ids.SiteID             `json:"replicas"`
	PartitionMasters map[ids.PartitionID]ids.SiteID `json:"partition_masters"`
}

// Apply applies a committed Raft log entry to the FSM.
func (f *electorFSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal elector command: %w", err)
	}

	f.mu.Lock()
	f.replicas = cmd.Replicas
	f.partitionMasters = cmd.PartitionMasters
	cb := f.onReplicasChanged
	f.mu.Unlock()

	if cb != nil {
		cb(cmd.Replicas, cmd.PartitionMasters)
	}
	return nil
}

// Snapshot captures the current replica set for Raft log compaction.
func (f *electorFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := &electorSnapshot{
		Replicas:         append([]ids.SiteID(nil), f.replicas...),
		PartitionMasters: copyMasters(f.partitionMasters),
	}
	return snap, nil
}

// Restore replaces the FSM's state from a previously captured snapshot.
func (f *electorFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap electorSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode elector snapshot: %w", err)
	}

	f.mu.Lock()
	f.replicas = snap.Replicas
	f.partitionMasters = snap.PartitionMasters
	cb := f.onReplicasChanged
	f.mu.Unlock()

	if cb != nil {
		cb(snap.Replicas, snap.PartitionMasters)
	}
	return nil
}

func (f *electorFSM) currentReplicas() []ids.SiteID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]ids.SiteID(nil), f.replicas...)
}

func copyMasters(m map[ids.PartitionID]ids.SiteID) map[ids.PartitionID]ids.SiteID {
	out := make(map[ids.PartitionID]ids.SiteID, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// electorSnapshot is the JSON-encoded form of electorFSM's state,
// persisted via raft.SnapshotSink the same way the teacher's
// WarrenSnapshot persists cluster state.
type electorSnapshot struct {
	Replicas         []ids.SiteID                   `json:"replicas"`
	PartitionMasters map[ids.PartitionID]ids.SiteID `json:"partition_masters"`
}

func (s *electorSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *electorSnapshot) Release() {}
