package membership

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/hashicorp/raft"
)

func TestElectorFSM_ApplyInvokesCallback(t *testing.T) {
	var gotReplicas []ids.SiteID
	var gotMasters map[ids.PartitionID]ids.SiteID

	fsm := newElectorFSM(func(replicas []ids.SiteID, masters map[ids.PartitionID]ids.SiteID) {
		gotReplicas = replicas
		gotMasters = masters
	})

	cmd := command{
		Replicas:         []ids.SiteID{1, 2, 3},
		PartitionMasters: map[ids.PartitionID]ids.SiteID{7: 1},
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	result := fsm.Apply(&raft.Log{Data: data})
	if result != nil {
		t.Fatalf("Apply() = %v, want nil", result)
	}

	if len(gotReplicas) != 3 || gotReplicas[1] != 2 {
		t.Errorf("callback replicas = %v, want [1 2 3]", gotReplicas)
	}
	if gotMasters[7] != 1 {
		t.Errorf("callback masters[7] = %d, want 1", gotMasters[7])
	}

	if got := fsm.currentReplicas(); len(got) != 3 {
		t.Errorf("currentReplicas() = %v, want 3 entries", got)
	}
}

func TestElectorFSM_ApplyRejectsInvalidJSON(t *testing.T) {
	fsm := newElectorFSM(nil)
	result := fsm.Apply(&raft.Log{Data: []byte("not json")})
	if _, ok := result.(error); !ok {
		t.Fatalf("Apply() = %v (%T), want an error", result, result)
	}
}

type fakeSink struct {
	*strings.Builder
	cancelled bool
}

func (s *fakeSink) ID() string         { return "snap-1" }
func (s *fakeSink) Cancel() error      { s.cancelled = true; return nil }
func (s *fakeSink) Close() error       { return nil }

func TestElectorFSM_SnapshotAndRestore(t *testing.T) {
	fsm := newElectorFSM(nil)
	fsm.replicas = []ids.SiteID{1, 2}
	fsm.partitionMasters = map[ids.PartitionID]ids.SiteID{7: 1}

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	sink := &fakeSink{Builder: &strings.Builder{}}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	var restoreCalled bool
	restored := newElectorFSM(func(replicas []ids.SiteID, masters map[ids.PartitionID]ids.SiteID) {
		restoreCalled = true
	})
	if err := restored.Restore(io.NopCloser(strings.NewReader(sink.String()))); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !restoreCalled {
		t.Error("Restore() did not invoke the onReplicasChanged callback")
	}

	got := restored.currentReplicas()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("currentReplicas() after restore = %v, want [1 2]", got)
	}
}
