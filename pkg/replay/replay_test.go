package replay

import (
	"testing"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOffer_DedupeDuplicateUniqueId covers scenario 3 / property P7: a
// replay stream with a duplicate unique-id dispatches only once.
func TestOffer_DedupeDuplicateUniqueId(t *testing.T) {
	s := New(1)

	accepted, _ := s.Offer(Message{U: 42, Body: "first"})
	assert.True(t, accepted)

	accepted, deliverable := s.Offer(Message{U: 42, Body: "second"})
	assert.False(t, accepted)
	assert.False(t, deliverable)
	assert.True(t, s.Dedupe(42))
}

func TestDrain_OrdersByUniqueIdRegardlessOfArrivalOrder(t *testing.T) {
	s := New(1)

	s.Offer(Message{U: 30, Body: "c"})
	s.Offer(Message{U: 10, Body: "a"})
	s.Offer(Message{U: 20, Body: "b"})

	drained := s.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "a", drained[0].Body)
	assert.Equal(t, "b", drained[1].Body)
	assert.Equal(t, "c", drained[2].Body)
}

// TestPoll_WaitsForEverySourceBeforeDelivering models the two-source merge
// (local replay stream + MPI sentinel stream): a higher unique-id from one
// source must not be delivered until the other source has also
// contributed, since an earlier message could still be in flight from it.
func TestPoll_WaitsForEverySourceBeforeDelivering(t *testing.T) {
	const sourceA, sourceB = ids.SiteID(1), ids.SiteID(2)
	s := New(2)

	_, deliverable := s.Offer(Message{U: 20, Source: sourceA, Body: "b"})
	assert.False(t, deliverable)
	assert.Nil(t, s.Poll())

	_, deliverable = s.Offer(Message{U: 10, Source: sourceB, Body: "a"})
	assert.True(t, deliverable)

	first := s.Poll()
	require.NotNil(t, first)
	assert.Equal(t, "a", first.Body)

	// Source B has nothing else held now, so the remaining message from A
	// must wait again even though it is the only thing left.
	assert.Nil(t, s.Poll())

	_, deliverable = s.Offer(Message{U: 25, Source: sourceB, Body: "c"})
	assert.True(t, deliverable)

	second := s.Poll()
	require.NotNil(t, second)
	assert.Equal(t, "b", second.Body, "20 sorts before 25")
}

func TestReplicaBookkeeping_TracksHighWaterMarksOnly(t *testing.T) {
	s := New(1)
	s.UpdateLastSeenUniqueId(ids.UniqueID(5))
	s.UpdateLastSeenUniqueId(ids.UniqueID(3))
	assert.Equal(t, ids.UniqueID(5), s.LastSeenUniqueId())

	s.UpdateLastPolledUniqueId(ids.UniqueID(4))
	assert.Equal(t, ids.UniqueID(4), s.LastPolledUniqueId())
}
