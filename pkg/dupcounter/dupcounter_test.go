package dupcounter

import (
	"testing"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOffer_DoneOnMatchingHashes covers scenario 1 from spec.md §8: an
// SP write at k=2 where both replicas agree.
func TestOffer_DoneOnMatchingHashes(t *testing.T) {
	self, peer := ids.SiteID(1), ids.SiteID(2)
	c := New(ids.TxnID(100), ids.SpHandle(100), []ids.SiteID{self, peer}, ids.SiteID(99), OpenedBy{})

	out, err := c.Offer(Response{Source: self, Hashes: []uint64{0xABCD}, Payload: []byte("r1")})
	require.NoError(t, err)
	assert.Equal(t, Waiting, out)

	out, err = c.Offer(Response{Source: peer, Hashes: []uint64{0xABCD}, Payload: []byte("r2")})
	require.NoError(t, err)
	assert.Equal(t, Done, out)
	assert.Equal(t, []byte("r2"), c.LastPayload())
}

// TestOffer_MismatchOnDivergentHash covers scenario 2 from spec.md §8.
func TestOffer_MismatchOnDivergentHash(t *testing.T) {
	self, peer := ids.SiteID(1), ids.SiteID(2)
	c := New(ids.TxnID(100), ids.SpHandle(100), []ids.SiteID{self, peer}, ids.SiteID(99), OpenedBy{})

	_, err := c.Offer(Response{Source: self, Hashes: []uint64{0xABCD}})
	require.NoError(t, err)

	out, err := c.Offer(Response{Source: peer, Hashes: []uint64{0xDEAD}})
	require.NoError(t, err)
	assert.Equal(t, Mismatch, out)
}

func TestOffer_AbortOnDivergentStatus(t *testing.T) {
	self, peer := ids.SiteID(1), ids.SiteID(2)
	c := New(ids.TxnID(5), ids.SpHandle(5), []ids.SiteID{self, peer}, ids.SiteID(9), OpenedBy{})

	_, err := c.Offer(Response{Source: self, Hashes: []uint64{1}, Aborted: false})
	require.NoError(t, err)

	out, err := c.Offer(Response{Source: peer, Hashes: []uint64{1}, Aborted: true})
	require.NoError(t, err)
	assert.Equal(t, Abort, out)
}

func TestOffer_RejectsUnexpectedSite(t *testing.T) {
	c := New(ids.TxnID(1), ids.SpHandle(1), []ids.SiteID{1}, ids.SiteID(9), OpenedBy{})
	_, err := c.Offer(Response{Source: ids.SiteID(77), Hashes: []uint64{1}})
	assert.Error(t, err)
}

func TestOffer_DuplicateResponseIsIdempotent(t *testing.T) {
	self, peer := ids.SiteID(1), ids.SiteID(2)
	c := New(ids.TxnID(1), ids.SpHandle(1), []ids.SiteID{self, peer}, ids.SiteID(9), OpenedBy{})

	_, err := c.Offer(Response{Source: self, Hashes: []uint64{1}})
	require.NoError(t, err)
	out, err := c.Offer(Response{Source: self, Hashes: []uint64{1}})
	require.NoError(t, err)
	assert.Equal(t, Waiting, out)
}

func TestUpdateReplicas_RemovesVanishedReplicasAndCanComplete(t *testing.T) {
	a, b, c2 := ids.SiteID(1), ids.SiteID(2), ids.SiteID(3)
	c := New(ids.TxnID(1), ids.SpHandle(1), []ids.SiteID{a, b, c2}, ids.SiteID(9), OpenedBy{})

	_, err := c.Offer(Response{Source: a, Hashes: []uint64{1}})
	require.NoError(t, err)

	// b and c2 vanish from membership before responding.
	out := c.UpdateReplicas([]ids.SiteID{a})
	assert.Equal(t, Done, out)
}

func TestUpdateReplicas_StillWaitingIfRemainingUnsatisfied(t *testing.T) {
	a, b, c2 := ids.SiteID(1), ids.SiteID(2), ids.SiteID(3)
	c := New(ids.TxnID(1), ids.SpHandle(1), []ids.SiteID{a, b, c2}, ids.SiteID(9), OpenedBy{})

	_, err := c.Offer(Response{Source: a, Hashes: []uint64{1}})
	require.NoError(t, err)

	out := c.UpdateReplicas([]ids.SiteID{a, b})
	assert.Equal(t, Waiting, out)
	assert.ElementsMatch(t, []ids.SiteID{a, b}, c.ExpectedReplicas())
}
