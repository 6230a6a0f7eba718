// Package trunc implements the repair-log truncation tracker: the
// component that advances the cluster-wide truncation handle (τ) and
// schedules piggy-backable truncation broadcasts.
package trunc

import "github.com/Kernelock/voltdb/pkg/ids"

// Broadcaster is the subset of the mailbox the tracker needs to schedule a
// dedicated RepairLogTruncation broadcast when no ordinary replicated
// message has piggy-backed a fresher τ by the time the deferred task runs.
type Broadcaster interface {
	BroadcastTruncation(tau ids.SpHandle)
}

// Tracker advances τ and amortises truncation broadcasts to roughly one
// per burst of commits (spec.md §4.3).
type Tracker struct {
	isLeader bool

	tau      ids.SpHandle
	lastSent ids.SpHandle

	broadcaster Broadcaster
	pending     bool
}

// New creates a Tracker. broadcaster may be nil; a scheduled broadcast
// then only records τ as sent.
func New(broadcaster Broadcaster) *Tracker {
	return &Tracker{broadcaster: broadcaster}
}

// SetLeader toggles whether this tracker belongs to the partition leader.
func (t *Tracker) SetLeader(isLeader bool) {
	t.isLeader = isLeader
}

// Tau returns the current truncation handle.
func (t *Tracker) Tau() ids.SpHandle {
	return t.tau
}

// LastSentTau returns the last τ value actually broadcast (or piggy-backed
// via PiggybackSent), used to decide whether a scheduled broadcast is still
// necessary when it runs.
func (t *Tracker) LastSentTau() ids.SpHandle {
	return t.lastSent
}

// Advance sets τ to h if h is greater, per spec.md §4.3. H ≤ τ is accepted
// silently, as occurs during promotion/rejoin. forceOnReplica schedules a
// broadcast even though this tracker is not (yet) the leader. Advance does
// not release buffered reads itself. It returns true if τ actually
// advanced.
func (t *Tracker) Advance(h ids.SpHandle, forceOnReplica bool) bool {
	if h <= t.tau {
		return false
	}
	t.tau = h

	if t.isLeader || forceOnReplica {
		t.schedule()
	}
	return true
}

// schedule marks a truncation broadcast as pending; RunScheduledBroadcast
// is expected to be invoked later (posted as a deferred task on the
// scheduler's event loop, per spec.md §5) and will suppress the broadcast
// if an ordinary replicated message has already piggy-backed a fresher τ.
func (t *Tracker) schedule() {
	t.pending = true
}

// HasPendingBroadcast reports whether a deferred broadcast task was
// scheduled and has not yet run.
func (t *Tracker) HasPendingBroadcast() bool {
	return t.pending
}

// PiggybackSent records that an outbound replicated message carried τ in
// its truncationHandleForReplicas field, which may suppress a later
// scheduled broadcast.
func (t *Tracker) PiggybackSent(tau ids.SpHandle) {
	if tau > t.lastSent {
		t.lastSent = tau
	}
}

// RunScheduledBroadcast executes a previously scheduled deferred broadcast
// task. Per spec.md §4.3, the broadcast is only actually sent if
// lastSentτ is still behind τ at the time the task runs; if a normal
// replicated message piggy-backed a fresher τ in the meantime, the
// broadcast is suppressed. Returns true if a broadcast was actually sent.
func (t *Tracker) RunScheduledBroadcast() bool {
	if !t.pending {
		return false
	}
	t.pending = false

	if t.lastSent >= t.tau {
		return false
	}
	if t.broadcaster != nil {
		t.broadcaster.BroadcastTruncation(t.tau)
	}
	t.lastSent = t.tau
	return true
}
