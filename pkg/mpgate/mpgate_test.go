package mpgate

import (
	"testing"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/stretchr/testify/assert"
)

// TestGate_DrainsInArrivalOrder covers scenario 6 from spec.md §8: a
// second fragment and the complete-transaction message queue behind the
// first fragment's pending durability, then drain in that arrival order.
func TestGate_DrainsInArrivalOrder(t *testing.T) {
	g := New()
	txn := ids.TxnID(900)

	g.Open(txn)
	assert.True(t, g.IsOpen(txn))

	g.Enqueue(txn, "fragment2")
	g.Enqueue(txn, "complete")

	drained := g.Drain(txn)
	assert.Equal(t, []Task{"fragment2", "complete"}, drained)
	assert.False(t, g.IsOpen(txn), "draining closes the gate")
}

func TestGate_OpenIsIdempotent(t *testing.T) {
	g := New()
	txn := ids.TxnID(1)

	g.Open(txn)
	g.Enqueue(txn, "a")
	g.Open(txn) // must not reset the queue
	g.Enqueue(txn, "b")

	assert.Equal(t, []Task{"a", "b"}, g.Drain(txn))
}

func TestGate_UnopenedTxnDrainsEmpty(t *testing.T) {
	g := New()
	assert.Empty(t, g.Drain(ids.TxnID(404)))
	assert.False(t, g.IsOpen(ids.TxnID(404)))
}
