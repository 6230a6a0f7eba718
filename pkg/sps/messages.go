// Package sps implements the single-partition scheduler: the dispatch
// loop and state machine that assigns sp-handles, fans writes out to
// k-safety replicas, hash-compares responses for determinism, integrates
// with an asynchronous command log, participates in multi-partition
// transactions as a non-coordinating site, enforces FAST/SAFE read
// consistency, and drains cleanly across leader migration.
package sps

import "github.com/Kernelock/voltdb/pkg/ids"

// ResponseStatus tags a replicated response as ok, aborted, or
// misrouted (the MPI addressed a site that has since changed role).
type ResponseStatus int

const (
	StatusOK ResponseStatus = iota
	StatusAborted
	StatusMisrouted
)

// InitiateTask is the MPI/client entry point for a single-partition
// transaction (spec.md §6).
type InitiateTask struct {
	InitiatorID   ids.SiteID
	CoordinatorID ids.SiteID
	TruncHandle   ids.SpHandle
	T             ids.TxnID
	H             ids.SpHandle
	U             ids.UniqueID
	ReadOnly      bool
	// Safe distinguishes a SAFE read (held until preceding writes are
	// cluster-committed) from the default FAST/short-circuit read.
	Safe          bool
	SinglePart    bool
	Invocation    []byte
	CiHandle      int64
	ConnID        int64
	ForReplay     bool
	IsReplicaCopy bool
	// SysProc marks a cluster-everysite system procedure, which keeps
	// its caller-assigned T instead of being rewritten to H (spec.md
	// §4.1's "not a cluster-everysite system procedure" exception).
	SysProc bool
}

// InitiateResponse is the execution result for an InitiateTask.
type InitiateResponse struct {
	T           ids.TxnID
	H           ids.SpHandle
	SourceID    ids.SiteID
	InitiatorID ids.SiteID
	CiHandle    int64
	ReadOnly    bool
	Results     []byte
	Hashes      []uint64
	Aborted     bool
}

// FragmentTask is the MP coordinator's scatter message to a participant.
type FragmentTask struct {
	InitiatorID            ids.SiteID
	CoordinatorID          ids.SiteID
	T                      ids.TxnID
	H                      ids.SpHandle
	InvolvedPartitions     []ids.PartitionID
	SysProc                bool
	FragTaskType           string
	Final                  bool
	ReadOnly               bool
	// Safe distinguishes a SAFE read from the default FAST read, as for
	// InitiateTask.
	Safe                   bool
	IsReplicaCopy          bool
	ToReplica              bool
	HandleByOriginalLeader bool
}

// FragmentResponse is a participant's reply to a FragmentTask.
type FragmentResponse struct {
	T         ids.TxnID
	H         ids.SpHandle
	SourceID  ids.SiteID
	DestID    ids.SiteID
	Status    ResponseStatus
	Hashes    []uint64
	Misrouted bool
	Exception string
}

// CompleteTransactionMessage is the MPI's final-phase message for T.
type CompleteTransactionMessage struct {
	T             ids.TxnID
	H             ids.SpHandle
	CoordinatorID ids.SiteID
	ToLeader      bool
	Restart       bool
	ReadOnly      bool
	AckRequested  bool
}

// CompleteTransactionResponse acknowledges a CompleteTransactionMessage.
type CompleteTransactionResponse struct {
	T            ids.TxnID
	H            ids.SpHandle
	Restart      bool
	AckRequested bool
	SpiID        ids.SiteID
}

// BorrowTask is an MP read executed locally without replication.
type BorrowTask struct {
	Fragment  FragmentTask
	InputDeps map[string][]byte
}

// RepairLogTruncationMessage carries a dedicated (non-piggybacked)
// truncation-handle broadcast.
type RepairLogTruncationMessage struct {
	Tau ids.SpHandle
}

// Iv2LogFaultMessage tells a replica the leader wrote a viable-replay
// entry at HFault; the replica must write its own entry at the same H.
type Iv2LogFaultMessage struct {
	HFault ids.SpHandle
	U      ids.UniqueID
}

// DumpMessage requests a diagnostic plan dump.
type DumpMessage struct {
	Reason string
}

// DumpPlanThenExitMessage is sent to peers after a hash mismatch or
// protocol-invariant violation, immediately before process termination.
// DumpID correlates every replica's local diagnostic dump to the same
// fatal event across logs.
type DumpPlanThenExitMessage struct {
	ProcName string
	Reason   string
	DumpID   string
}

// DummyTransactionTask is a no-op ordered message used to flush the
// command-log pipeline and advance τ; handled identically to an SP
// write with no procedure.
type DummyTransactionTask struct {
	T ids.TxnID
	H ids.SpHandle
	U ids.UniqueID
}

// DummyTransactionResponse is the reply to a DummyTransactionTask.
type DummyTransactionResponse struct {
	T ids.TxnID
	H ids.SpHandle
}

// RepairMessage wraps any of the above message types for delivery to a
// specific set of sites that need to replay work they missed.
type RepairMessage struct {
	T           ids.TxnID
	H           ids.SpHandle
	NeedsRepair []ids.SiteID
	Inner       any
}
