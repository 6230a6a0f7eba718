// Package replay implements the replay sequencer: it orders command-log
// replay messages and MP sentinels by unique-id so a partition reproduces
// exactly the schedule it originally produced, regardless of the order
// replay messages actually arrive over the transport.
//
// Ordering is a k-way merge over the sequencer's sources (the local
// command-log replay stream and, during an MP transaction replay, the MPI
// sentinel stream): each source is internally ordered by unique-id, but
// messages from different sources interleave unpredictably as they arrive.
// A message is safe to deliver only once every source has contributed at
// least one still-held message, because until then an as-yet-unseen
// message from a silent source could still turn out to sort earlier.
package replay

import (
	"container/heap"

	"github.com/Kernelock/voltdb/pkg/ids"
)

// Message is anything the sequencer can order; callers attach their own
// payload to Body. Source identifies which of the sequencer's input
// streams produced it.
type Message struct {
	U      ids.UniqueID
	Source ids.SiteID
	Body   any
}

// Sequencer orders messages from numSources concurrent, internally-ordered
// streams by unique-id, and recognizes duplicate unique-ids for dedup.
type Sequencer struct {
	numSources int
	held       msgHeap
	bySource   map[ids.SiteID]int
	seen       map[ids.UniqueID]struct{}

	lastSeenU  ids.UniqueID // replica bookkeeping only
	lastPolled ids.UniqueID
}

// New creates a Sequencer merging numSources concurrent unique-id-ordered
// streams. A plain (non-MP) replay stream has exactly one source.
func New(numSources int) *Sequencer {
	if numSources < 1 {
		numSources = 1
	}
	return &Sequencer{
		numSources: numSources,
		bySource:   make(map[ids.SiteID]int),
		seen:       make(map[ids.UniqueID]struct{}),
	}
}

// Offer submits m for ordering. accepted is false if m's unique-id is a
// duplicate already seen (the caller should synthesize an
// IGNORED_TRANSACTION response instead, per spec.md §4.5 / property P7).
// deliverable reports whether the merge now covers every source, meaning
// the caller should call Poll/Drain right away.
func (s *Sequencer) Offer(m Message) (accepted, deliverable bool) {
	if _, dup := s.seen[m.U]; dup {
		return false, false
	}
	s.seen[m.U] = struct{}{}
	heap.Push(&s.held, m)
	s.bySource[m.Source]++
	return true, s.coversAllSources()
}

// Dedupe reports whether u has already been seen by this sequencer.
func (s *Sequencer) Dedupe(u ids.UniqueID) bool {
	_, dup := s.seen[u]
	return dup
}

func (s *Sequencer) coversAllSources() bool {
	return len(s.bySource) >= s.numSources
}

// Poll dequeues and returns the globally lowest-U held message if every
// source is currently represented; otherwise it returns nil, since
// delivering now could still be overtaken by an unseen message from a
// silent source.
func (s *Sequencer) Poll() *Message {
	if !s.coversAllSources() {
		return nil
	}
	head := heap.Pop(&s.held).(Message)
	s.bySource[head.Source]--
	if s.bySource[head.Source] == 0 {
		delete(s.bySource, head.Source)
	}
	return &head
}

// Drain dequeues every message that is currently orderable, in unique-id
// order.
func (s *Sequencer) Drain() []Message {
	var out []Message
	for {
		m := s.Poll()
		if m == nil {
			break
		}
		out = append(out, *m)
	}
	return out
}

// UpdateLastSeenUniqueId lets a replica track replay progress without
// buffering anything itself (replicas do not need ordering, only
// bookkeeping, per spec.md §4.5).
func (s *Sequencer) UpdateLastSeenUniqueId(u ids.UniqueID) {
	if u > s.lastSeenU {
		s.lastSeenU = u
	}
}

// LastSeenUniqueId returns the highest unique-id a replica has observed.
func (s *Sequencer) LastSeenUniqueId() ids.UniqueID {
	return s.lastSeenU
}

// UpdateLastPolledUniqueId lets a replica track how far replay has been
// consumed, independent of the leader's own sequencing state.
func (s *Sequencer) UpdateLastPolledUniqueId(u ids.UniqueID) {
	if u > s.lastPolled {
		s.lastPolled = u
	}
}

// LastPolledUniqueId returns the highest unique-id a replica has
// acknowledged as consumed.
func (s *Sequencer) LastPolledUniqueId() ids.UniqueID {
	return s.lastPolled
}

// msgHeap is a min-heap of Message ordered by U, backing the sequencer's
// held set.
type msgHeap []Message

func (h msgHeap) Len() int           { return len(h) }
func (h msgHeap) Less(i, j int) bool { return h[i].U < h[j].U }
func (h msgHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *msgHeap) Push(x any)        { *h = append(*h, x.(Message)) }
func (h *msgHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
