// Package dupcounter implements the duplicate counter: the structure that
// collects matching responses from all replicas of a replicated operation
// and arbitrates determinism by hash comparison.
package dupcounter

import (
	"fmt"

	"github.com/Kernelock/voltdb/pkg/ids"
)

// Outcome is the result of offering a response, or of updating the
// expected replica set, to a Counter.
type Outcome int

const (
	// Waiting means the counter has not yet heard from every expected
	// replica.
	Waiting Outcome = iota
	// Done means every expected replica has responded with identical
	// hashes and status; the aggregated response is ready to forward.
	Done
	// Mismatch means two replicas reported different hash vectors for
	// what should have been identical work: a determinism violation.
	Mismatch
	// Abort means one replica reported success and another reported a
	// rollback for the same operation.
	Abort
)

func (o Outcome) String() string {
	switch o {
	case Waiting:
		return "WAITING"
	case Done:
		return "DONE"
	case Mismatch:
		return "MISMATCH"
	case Abort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// Response is one replica's reply to a replicated operation.
type Response struct {
	Source  ids.SiteID
	Hashes  []uint64
	Aborted bool
	Payload []byte // canonical result bytes, identical across non-aborted replicas
}

// OpenedBy identifies what kind of message opened a counter, needed only to
// adjudicate the tie-break described in spec.md §4.2: two counters may
// legitimately collide on the same {T,H} only when both were opened by
// complete-transaction messages from distinct coordinators, an artefact of
// leader migration.
type OpenedBy struct {
	IsCompleteTransaction bool
	CoordinatorID         ids.SiteID
}

// Counter collects responses for one {T,H} replicated operation.
type Counter struct {
	TxnID ids.TxnID
	H     ids.SpHandle

	expected []ids.SiteID
	received map[ids.SiteID]Response

	firstHashes []uint64
	lastPayload []byte
	anyAborted  bool

	// Dest is where the aggregated response should be forwarded once DONE.
	Dest ids.SiteID
	// OpenMessage is the notice that opened this counter, retained so a
	// second counter opened for the same {T,H} can be checked against the
	// complete-transaction tie-break.
	OpenMessage OpenedBy
}

// New creates a Counter expecting a response from every site in expected.
func New(txnID ids.TxnID, h ids.SpHandle, expected []ids.SiteID, dest ids.SiteID, opened OpenedBy) *Counter {
	cp := make([]ids.SiteID, len(expected))
	copy(cp, expected)
	return &Counter{
		TxnID:       txnID,
		H:           h,
		expected:    cp,
		received:    make(map[ids.SiteID]Response, len(cp)),
		Dest:        dest,
		OpenMessage: opened,
	}
}

// ExpectedReplicas returns a copy of the currently expected replica set.
func (c *Counter) ExpectedReplicas() []ids.SiteID {
	out := make([]ids.SiteID, len(c.expected))
	copy(out, c.expected)
	return out
}

// LastPayload returns the canonical payload to forward once DONE.
func (c *Counter) LastPayload() []byte {
	return c.lastPayload
}

// Offer records resp and reports whether the counter has reached a terminal
// state. Per spec.md §4.2:
//   - the first response seen fixes the expected hash vector and the
//     canonical forwarded payload;
//   - each subsequent response must carry an identical hash vector (and,
//     for writes, identical abort status), else Mismatch/Abort;
//   - once every expected replica has responded, the result is Done.
func (c *Counter) Offer(resp Response) (Outcome, error) {
	if !c.isExpected(resp.Source) {
		return Waiting, fmt.Errorf("dupcounter: response from unexpected site %v for {%v,%v}", resp.Source, c.TxnID, c.H)
	}
	if _, dup := c.received[resp.Source]; dup {
		// A retransmission of an already-seen response (FIFO transport can
		// still redeliver on reconnect); treat as idempotent.
		return c.currentOutcome(), nil
	}

	if len(c.received) == 0 {
		c.firstHashes = resp.Hashes
		c.lastPayload = resp.Payload
		c.anyAborted = resp.Aborted
	} else {
		if resp.Aborted != c.anyAborted {
			c.received[resp.Source] = resp
			return Abort, nil
		}
		if !hashesEqual(c.firstHashes, resp.Hashes) {
			c.received[resp.Source] = resp
			return Mismatch, nil
		}
		c.lastPayload = resp.Payload
	}

	c.received[resp.Source] = resp
	return c.currentOutcome(), nil
}

func (c *Counter) currentOutcome() Outcome {
	if len(c.received) >= len(c.expected) {
		return Done
	}
	return Waiting
}

func (c *Counter) isExpected(site ids.SiteID) bool {
	for _, s := range c.expected {
		if s == site {
			return true
		}
	}
	return false
}

// UpdateReplicas recomputes the expected set on a membership change:
// replicas that disappeared are removed. If the remaining set is already
// satisfied by responses already received, the counter becomes Done.
func (c *Counter) UpdateReplicas(newSet []ids.SiteID) Outcome {
	present := make(map[ids.SiteID]struct{}, len(newSet))
	for _, s := range newSet {
		present[s] = struct{}{}
	}

	kept := c.expected[:0]
	for _, s := range c.expected {
		if _, ok := present[s]; ok {
			kept = append(kept, s)
		} else {
			delete(c.received, s)
		}
	}
	c.expected = kept

	if len(c.expected) == 0 {
		// Every replica we were waiting on vanished with no response
		// recorded: spec.md §4.8 calls for a warning and for the counter to
		// be silently dropped by the caller on UpdateReplicas.
		return Waiting
	}
	return c.currentOutcome()
}

func hashesEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
