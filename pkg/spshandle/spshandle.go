// Package spshandle generates the monotonically increasing identifiers the
// scheduler stamps onto every transaction it schedules: the per-partition
// sp-handle (H) and the timestamp-bearing unique-id (U) the command log
// uses for idempotency and DR.
package spshandle

import (
	"fmt"
	"time"
)

// partitionBits is the number of low-order bits of a SpHandle reserved for
// the partition id, matching the bit-packing convention described in
// SPEC_FULL.md's data-model expansion.
const partitionBits = 14

const maxPartitionID = 1<<partitionBits - 1

// SpHandle is a 64-bit monotonically increasing identifier assigned by a
// partition leader. It strictly increases within a partition and is never
// reused (spec.md invariant 6).
type SpHandle int64

// PartitionID recovers the partition component encoded into H.
func (h SpHandle) PartitionID() int32 {
	return int32(h & maxPartitionID)
}

// Sequence recovers the monotonic counter component of H.
func (h SpHandle) Sequence() int64 {
	return int64(h) >> partitionBits
}

// Zero is the sentinel SpHandle meaning "no handle assigned yet".
const Zero SpHandle = 0

// UniqueID is the timestamp-component identifier the command log uses for
// idempotency and DR. Like SpHandle it packs a partition id into its low
// bits so replicas can tell which partition minted a given U.
type UniqueID int64

// PartitionID recovers the partition component encoded into U.
func (u UniqueID) PartitionID() int32 {
	return int32(u & maxPartitionID)
}

// Allocator is a monotonic SpHandle/UniqueID generator for one partition.
//
// It is not safe for concurrent use by design: SPEC_FULL.md §5 confines all
// mutation of scheduler state, including handle generation, to the
// partition's single dispatch goroutine.
type Allocator struct {
	partitionID int32
	lastSeq     int64
	lastUnique  int64

	maxSeenH SpHandle // advanced by non-leaders observing replicated writes
}

// NewAllocator constructs an Allocator for partitionID, which must fit in
// partitionBits.
func NewAllocator(partitionID int32) (*Allocator, error) {
	if partitionID < 0 || partitionID > maxPartitionID {
		return nil, fmt.Errorf("spshandle: partition id %d out of range [0,%d]", partitionID, maxPartitionID)
	}
	return &Allocator{partitionID: partitionID}, nil
}

// NextHandle returns the next strictly increasing SpHandle for this
// partition. Only the leader calls this (spec.md invariant 6).
func (a *Allocator) NextHandle() SpHandle {
	a.lastSeq++
	h := SpHandle(a.lastSeq<<partitionBits | int64(a.partitionID))
	if h > a.maxSeenH {
		a.maxSeenH = h
	}
	return h
}

// NextUniqueID returns a fresh unique-id derived from wall-clock time,
// guaranteed to be strictly greater than any previously minted value even
// under clock skew or multiple calls within the same millisecond.
func (a *Allocator) NextUniqueID() UniqueID {
	now := time.Now().UnixMilli()
	seq := now<<partitionBits | int64(a.partitionID)
	if seq <= a.lastUnique {
		seq = (a.lastUnique>>partitionBits+1)<<partitionBits | int64(a.partitionID)
	}
	a.lastUnique = seq
	return UniqueID(seq)
}

// AdoptUniqueID records u as seen, e.g. when for-replay initiates bring an
// upstream-assigned U into this allocator so future NextUniqueID calls
// remain strictly greater than anything already adopted.
func (a *Allocator) AdoptUniqueID(u UniqueID) {
	if int64(u) > a.lastUnique {
		a.lastUnique = int64(u)
	}
}

// AdvanceMaxSeenH advances maxSeenH to h if h is larger. Non-leaders call
// this when observing a leader-stamped SpHandle on a replica-copy message;
// it never decreases (spec.md invariant 6: "on a non-leader, maxSeenH only
// advances").
func (a *Allocator) AdvanceMaxSeenH(h SpHandle) {
	if h > a.maxSeenH {
		a.maxSeenH = h
	}
}

// MaxScheduledH returns the highest SpHandle this allocator has produced or
// observed. Reads and short-circuit reads are stamped with this value
// rather than minting a fresh handle.
func (a *Allocator) MaxScheduledH() SpHandle {
	return a.maxSeenH
}

// Reset rewinds the allocator's sequence counter to resume minting handles
// after seq (used during leader promotion, where the new leader must not
// reuse any handle the previous leader may have already assigned).
func (a *Allocator) Reset(seq int64) {
	if seq > a.lastSeq {
		a.lastSeq = seq
	}
}
