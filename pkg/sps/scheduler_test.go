package sps

import (
	"context"
	"testing"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/replay"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, self ids.SiteID) (*Scheduler, *fakeMailbox, *fakeTaskQueue) {
	t.Helper()
	mailbox := &fakeMailbox{}
	queue := &fakeTaskQueue{}
	s, err := New(self, 0, mailbox, zerolog.Nop(), 1)
	require.NoError(t, err)
	s.SetTaskQueue(queue)
	s.SetCommandLog(&fakeCommandLog{mode: ModeAsync})
	return s, mailbox, queue
}

// TestDispatch_SpWriteKSafety2 covers spec.md §8 scenario 1: a
// single-partition write on a two-site (k=1) replica set fans out to the
// replica, aggregates matching responses, and forwards exactly once.
func TestDispatch_SpWriteKSafety2(t *testing.T) {
	s, mailbox, queue := newTestScheduler(t, 1)
	s.SetLeaderState(true)
	s.UpdateReplicas([]ids.SiteID{1, 2}, nil)
	ctx := context.Background()

	err := s.Dispatch(ctx, InitiateTask{InitiatorID: 100, ReadOnly: false, SinglePart: true, Invocation: []byte("insert")})
	require.NoError(t, err)

	require.Len(t, mailbox.multicasts, 1)
	mc := mailbox.multicasts[0]
	assert.Equal(t, []ids.SiteID{2}, mc.Dests)
	replicaCopy, ok := mc.Msg.(InitiateTask)
	require.True(t, ok)
	assert.True(t, replicaCopy.IsReplicaCopy)
	writeT, writeH := replicaCopy.T, replicaCopy.H
	assert.NotZero(t, writeH)

	require.Len(t, queue.offered, 1)
	assert.Equal(t, writeT, queue.offered[0].T)
	assert.Equal(t, writeH, queue.offered[0].H)

	hashes := []uint64{42}
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 1, Hashes: hashes, Results: []byte("ok")}))
	assert.Empty(t, mailbox.sent, "aggregation must wait for every expected replica")

	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 2, Hashes: hashes, Results: []byte("ok")}))

	require.Len(t, mailbox.sent, 1)
	assert.Equal(t, ids.SiteID(100), mailbox.sent[0].Dest)
	forwarded, ok := mailbox.sent[0].Msg.(InitiateResponse)
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), forwarded.Results)
}

// TestDispatch_HashMismatchIsClusterFatal covers spec.md §8 scenario 2: a
// divergent hash between replicas for the same {T,H} is a determinism
// violation that escalates to Fatal rather than being silently resolved.
func TestDispatch_HashMismatchIsClusterFatal(t *testing.T) {
	s, mailbox, _ := newTestScheduler(t, 1)
	s.SetLeaderState(true)
	s.UpdateReplicas([]ids.SiteID{1, 2}, nil)
	ctx := context.Background()

	var terminated bool
	s.Terminate = func() { terminated = true }

	require.NoError(t, s.Dispatch(ctx, InitiateTask{InitiatorID: 100, ReadOnly: false}))
	mc := mailbox.multicasts[0].Msg.(InitiateTask)
	writeT, writeH := mc.T, mc.H

	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 1, Hashes: []uint64{1}}))
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 2, Hashes: []uint64{2}}))

	assert.True(t, terminated)
	require.Len(t, mailbox.multicasts, 2)
	dump, ok := mailbox.multicasts[1].Msg.(DumpPlanThenExitMessage)
	require.True(t, ok)
	assert.Equal(t, "HASH MISMATCH", dump.Reason)
}

// TestDispatch_SafeReadBufferedUntilWriteCommits covers spec.md §8
// scenario 4: a SAFE read sharing the preceding write's high-water mark is
// held until that write's duplicate counter reaches DONE, then released.
func TestDispatch_SafeReadBufferedUntilWriteCommits(t *testing.T) {
	s, mailbox, _ := newTestScheduler(t, 1)
	s.SetLeaderState(true)
	s.UpdateReplicas([]ids.SiteID{1, 2}, nil)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, InitiateTask{InitiatorID: 100, ReadOnly: false}))
	writeCopy := mailbox.multicasts[0].Msg.(InitiateTask)
	writeT, writeH := writeCopy.T, writeCopy.H

	require.NoError(t, s.Dispatch(ctx, InitiateTask{InitiatorID: 200, ReadOnly: true, Safe: true}))
	assert.Equal(t, writeH, s.alloc.MaxScheduledH(), "safe read reuses the write's high-water mark")

	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, InitiatorID: 200, ReadOnly: true, Results: []byte("row")}))
	assert.Empty(t, mailbox.sent, "safe read must not be forwarded before the gating write commits")

	hashes := []uint64{7}
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 1, Hashes: hashes}))
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 2, Hashes: hashes}))

	require.Len(t, mailbox.sent, 2, "write commit response and the released buffered read")
	dests := []ids.SiteID{mailbox.sent[0].Dest, mailbox.sent[1].Dest}
	assert.Contains(t, dests, ids.SiteID(100))
	assert.Contains(t, dests, ids.SiteID(200))
}

// TestCheckpoint_LeaderMigration covers spec.md §8 scenario 5: a balance
// checkpoint is not clear to hand off until every counter opened strictly
// before the checkpoint handle has reached a terminal state.
func TestCheckpoint_LeaderMigration(t *testing.T) {
	s, mailbox, _ := newTestScheduler(t, 1)
	s.SetLeaderState(true)
	s.UpdateReplicas([]ids.SiteID{1, 2}, nil)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, InitiateTask{InitiatorID: 100, ReadOnly: false}))
	firstWrite := mailbox.multicasts[0].Msg.(InitiateTask)

	require.NoError(t, s.Dispatch(ctx, InitiateTask{InitiatorID: 101, ReadOnly: false}))
	secondWrite := mailbox.multicasts[1].Msg.(InitiateTask)
	assert.Greater(t, secondWrite.H, firstWrite.H)

	// The checkpoint is taken once both writes have been assigned handles,
	// so only the first write's counter (strictly below H_cp) gates it.
	hcp := s.CheckpointBalance()
	assert.Equal(t, secondWrite.H, hcp)

	assert.False(t, s.TxnDoneBeforeCheckpoint(), "the write opened before the checkpoint is still outstanding")

	hashes := []uint64{9}
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: firstWrite.T, H: firstWrite.H, SourceID: 1, Hashes: hashes}))
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: firstWrite.T, H: firstWrite.H, SourceID: 2, Hashes: hashes}))

	assert.True(t, s.TxnDoneBeforeCheckpoint())
}

// TestDispatch_SpWriteCounterDone_ClearsTxnState covers the k-safety>0
// lifecycle from spec.md §3: once every replica's response aggregates to
// DONE, the write's TxnState must be removed, not retained forever.
func TestDispatch_SpWriteCounterDone_ClearsTxnState(t *testing.T) {
	s, mailbox, _ := newTestScheduler(t, 1)
	s.SetLeaderState(true)
	s.UpdateReplicas([]ids.SiteID{1, 2}, nil)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, InitiateTask{InitiatorID: 100, ReadOnly: false}))
	mc := mailbox.multicasts[0].Msg.(InitiateTask)
	writeT, writeH := mc.T, mc.H
	assert.Contains(t, s.txns, writeT, "txn state exists while the write's counter is outstanding")

	hashes := []uint64{3}
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 1, Hashes: hashes}))
	require.NoError(t, s.Dispatch(ctx, InitiateResponse{T: writeT, H: writeH, SourceID: 2, Hashes: hashes}))

	assert.NotContains(t, s.txns, writeT, "txn state must be removed once the counter reaches DONE")
}

// TestDispatch_RepairLogTruncationMessage_AdvancesReplicaTau covers
// spec.md §4.3: a replica that receives the dedicated (non-piggybacked)
// truncation broadcast must advance its own τ, forced, since it is not
// the leader that originated the advance.
func TestDispatch_RepairLogTruncationMessage_AdvancesReplicaTau(t *testing.T) {
	s, _, _ := newTestScheduler(t, 2)
	s.UpdateReplicas([]ids.SiteID{1, 2}, nil)
	ctx := context.Background()

	require.Equal(t, ids.SpHandle(0), s.truncTracker.Tau())
	require.NoError(t, s.Dispatch(ctx, RepairLogTruncationMessage{Tau: 42}))
	assert.Equal(t, ids.SpHandle(42), s.truncTracker.Tau())
}

// TestOfferReplay_DuplicateUniqueIdIsIgnored covers spec.md §8 scenario 3
// and property P7: a replayed unique-id already seen synthesizes an
// IGNORED_TRANSACTION response instead of re-dispatching the transaction.
func TestOfferReplay_DuplicateUniqueIdIsIgnored(t *testing.T) {
	s, mailbox, queue := newTestScheduler(t, 1)
	s.SetLeaderState(true)
	ctx := context.Background()

	it := InitiateTask{InitiatorID: 100, ReadOnly: false, ForReplay: true, U: 1}
	require.NoError(t, s.OfferReplay(ctx, replay.Message{U: 1, Source: 1, Body: it}))
	require.Len(t, queue.offered, 1)

	require.NoError(t, s.OfferReplay(ctx, replay.Message{U: 1, Source: 1, Body: it}))
	require.Len(t, queue.offered, 1, "a duplicate unique-id must not dispatch a second time")

	require.Len(t, mailbox.sent, 1)
	resp, ok := mailbox.sent[0].Msg.(InitiateResponse)
	require.True(t, ok)
	assert.Equal(t, []byte("IGNORED_TRANSACTION"), resp.Results)
}

// TestFragmentTask_MpDurabilityGate covers spec.md §8 scenario 6: when the
// first fragment of a synchronously-logged MP transaction is durable-gated,
// its own task is offered immediately, but a second fragment and the
// complete message arriving before durability is confirmed are held and
// only drained, in arrival order, once NotifyDurable fires.
func TestFragmentTask_MpDurabilityGate(t *testing.T) {
	s, _, queue := newTestScheduler(t, 1)
	s.SetLeaderState(true)
	s.SetCommandLog(&fakeCommandLog{mode: ModeSync})
	ctx := context.Background()

	txn := ids.TxnID(555)
	require.NoError(t, s.Dispatch(ctx, FragmentTask{CoordinatorID: 100, T: txn, FragTaskType: "scan"}))
	require.Len(t, queue.offered, 1, "the first fragment's own task is never gated on itself")

	require.NoError(t, s.Dispatch(ctx, FragmentTask{CoordinatorID: 100, T: txn, FragTaskType: "scan2"}))
	assert.Len(t, queue.offered, 1, "a second fragment for an open gate must be held")

	require.NoError(t, s.Dispatch(ctx, CompleteTransactionMessage{T: txn, CoordinatorID: 100}))
	assert.Len(t, queue.offered, 1, "the complete message must also be held behind the open gate")

	s.NotifyDurable(ctx, txn, nil)
	assert.Len(t, queue.offered, 3, "durability resolution drains every held task in arrival order")
	assert.Equal(t, "fragment", queue.offered[1].Kind)
	assert.Equal(t, "complete-transaction", queue.offered[2].Kind)
}
