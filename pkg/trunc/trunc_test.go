package trunc

import (
	"testing"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/stretchr/testify/assert"
)

type fakeBroadcaster struct {
	sent []ids.SpHandle
}

func (f *fakeBroadcaster) BroadcastTruncation(tau ids.SpHandle) {
	f.sent = append(f.sent, tau)
}

// TestAdvance_MonotonicOnLeader covers P4.
func TestAdvance_MonotonicOnLeader(t *testing.T) {
	tr := New(&fakeBroadcaster{})
	tr.SetLeader(true)

	assert.True(t, tr.Advance(ids.SpHandle(10), false))
	assert.True(t, tr.Advance(ids.SpHandle(20), false))
	assert.False(t, tr.Advance(ids.SpHandle(15), false), "H <= tau must be accepted silently without advancing")
	assert.Equal(t, ids.SpHandle(20), tr.Tau())
}

func TestAdvance_SilentlyAcceptsBackwardsOnReplicaPromotion(t *testing.T) {
	tr := New(nil)
	tr.SetLeader(false)
	tr.Advance(ids.SpHandle(50), false)
	assert.False(t, tr.Advance(ids.SpHandle(10), false))
	assert.Equal(t, ids.SpHandle(50), tr.Tau())
}

func TestRunScheduledBroadcast_SuppressedWhenPiggybackCaughtUp(t *testing.T) {
	fb := &fakeBroadcaster{}
	tr := New(fb)
	tr.SetLeader(true)

	tr.Advance(ids.SpHandle(100), false)
	assert.True(t, tr.HasPendingBroadcast())

	// A normal replicated message piggy-backs tau before the deferred task
	// runs: the scheduled broadcast must be suppressed.
	tr.PiggybackSent(ids.SpHandle(100))

	sent := tr.RunScheduledBroadcast()
	assert.False(t, sent)
	assert.Empty(t, fb.sent)
}

func TestRunScheduledBroadcast_FiresWhenNothingPiggybacked(t *testing.T) {
	fb := &fakeBroadcaster{}
	tr := New(fb)
	tr.SetLeader(true)

	tr.Advance(ids.SpHandle(7), false)
	sent := tr.RunScheduledBroadcast()
	assert.True(t, sent)
	assert.Equal(t, []ids.SpHandle{7}, fb.sent)

	// Running again without a further Advance is a no-op: nothing pending.
	assert.False(t, tr.RunScheduledBroadcast())
}

func TestAdvance_ForceOnReplicaSchedulesBroadcast(t *testing.T) {
	fb := &fakeBroadcaster{}
	tr := New(fb)
	tr.SetLeader(false)

	tr.Advance(ids.SpHandle(3), true)
	assert.True(t, tr.HasPendingBroadcast())
}
