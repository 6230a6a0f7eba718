package bufferedread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRelease_FIFOUpToGate covers scenario 4 from spec.md §8: a SAFE read
// gated on a write's commit is held until tau reaches its gate, and
// releases happen in enqueue order.
func TestRelease_FIFOUpToGate(t *testing.T) {
	l := New()
	l.Enqueue(Entry{Gate: 200, Dest: 1, Payload: []byte("r1")})
	l.Enqueue(Entry{Gate: 205, Dest: 2, Payload: []byte("r2")})
	l.Enqueue(Entry{Gate: 210, Dest: 3, Payload: []byte("r3")})

	assert.Empty(t, l.Release(199))
	assert.Equal(t, 3, l.Len())

	released := l.Release(205)
	assert.Len(t, released, 2)
	assert.Equal(t, []byte("r1"), released[0].Payload)
	assert.Equal(t, []byte("r2"), released[1].Payload)
	assert.Equal(t, 1, l.Len())

	released = l.Release(999)
	assert.Len(t, released, 1)
	assert.Equal(t, []byte("r3"), released[0].Payload)
	assert.Equal(t, 0, l.Len())
}

func TestRelease_EmptyLogIsNoOp(t *testing.T) {
	l := New()
	assert.Empty(t, l.Release(100))
}

func TestRelease_NothingCrossesGateNotYetReached(t *testing.T) {
	l := New()
	l.Enqueue(Entry{Gate: 500})
	assert.Empty(t, l.Release(499))
	assert.Equal(t, 1, l.Len())
}
