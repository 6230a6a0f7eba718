// Package bufferedread implements the SAFE-read buffer: a FIFO of pending
// read responses held until the preceding writes they depend on have
// cluster-committed, released in order as the truncation handle advances.
//
// Only the leader runs a BufferedReadLog; SAFE reads observed on a replica
// are forwarded directly (spec.md §4.1).
package bufferedread

import "github.com/Kernelock/voltdb/pkg/ids"

// Entry is one buffered read awaiting release.
type Entry struct {
	// Gate is the sp-handle that must be reached by τ before this entry may
	// be released: either the τ observed at enqueue time for an ordinary
	// SAFE read, or the transaction's first sp-handle for an MP read
	// (spec.md §4.4).
	Gate ids.SpHandle
	// Dest is the original initiator this response must be forwarded to.
	Dest ids.SiteID
	// Payload is the response to deliver once released.
	Payload []byte
}

// Log is a FIFO of buffered SAFE-read responses.
type Log struct {
	entries []Entry
}

// New creates an empty buffered-read log.
func New() *Log {
	return &Log{}
}

// Enqueue appends e to the tail of the FIFO.
func (l *Log) Enqueue(e Entry) {
	l.entries = append(l.entries, e)
}

// Len reports how many reads are currently buffered.
func (l *Log) Len() int {
	return len(l.entries)
}

// Release dequeues, in FIFO order, every entry whose gate is ≤ tau and
// returns them for delivery. Because the log is strictly FIFO and gates
// are non-decreasing as writes commit in order, this never reorders
// releases relative to enqueue order (spec.md §4.4, invariant P2 for the
// read-response stream specifically).
func (l *Log) Release(tau ids.SpHandle) []Entry {
	i := 0
	for ; i < len(l.entries); i++ {
		if l.entries[i].Gate > tau {
			break
		}
	}
	if i == 0 {
		return nil
	}
	released := make([]Entry, i)
	copy(released, l.entries[:i])
	l.entries = l.entries[i:]
	return released
}
