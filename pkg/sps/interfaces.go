package sps

import (
	"context"

	"github.com/Kernelock/voltdb/pkg/ids"
)

// Mailbox is the transport/mailbox collaborator (spec.md §1, out of
// scope for this module beyond its interface; implemented by
// pkg/transport).
type Mailbox interface {
	Send(ctx context.Context, dest ids.SiteID, msg any) error
	Multicast(ctx context.Context, dests []ids.SiteID, msg any) error
}

// LogMode is the command log's durability mode (spec.md §6).
type LogMode int

const (
	ModeAsync LogMode = iota
	ModeSync
	ModeDisabled
)

// LogEntry is a to-be-durable command-log record.
type LogEntry struct {
	H       ids.SpHandle
	T       ids.TxnID
	U       ids.UniqueID
	Payload []byte
}

// FaultLogEntry is the viable-replay-fault-log record spec.md §6 names
// as the only on-disk state the SPS owns.
type FaultLogEntry struct {
	LeaderHSId  ids.SiteID
	ReplicaSet  []ids.SiteID
	PartitionID ids.PartitionID
	HFault      ids.SpHandle
}

// Future resolves when an asynchronously-logged entry becomes durable
// (or fails). It mirrors raft.ApplyFuture's Error()-after-blocking shape
// so the scheduler can attach a continuation exactly like a
// raft.Apply() caller would.
type Future interface {
	// Error blocks until the entry is durable (or the attempt failed)
	// and returns the outcome.
	Error() error
}

// CommandLog is the command-log collaborator (spec.md §1, §6; out of
// scope beyond its interface; implemented by pkg/commandlog).
type CommandLog interface {
	Append(ctx context.Context, entry LogEntry) Future
	AppendSync(ctx context.Context, entry LogEntry) error
	WriteFaultLog(ctx context.Context, f FaultLogEntry) error
	Mode() LogMode
}

// Response is what the (external) execution engine hands back for a
// dispatched task.
type Response struct {
	Hashes  []uint64
	Aborted bool
	Payload []byte
}

// BackPressureFuture is the one-shot completion signal a task's
// submitter can await; it carries no error beyond logging (spec.md §9).
type BackPressureFuture interface {
	Done() <-chan struct{}
}

// Task is handed to the (external) task queue for execution.
type Task struct {
	Kind string
	T    ids.TxnID
	H    ids.SpHandle
	Exec func(ctx context.Context) Response
}

// TaskQueue is the task-queue collaborator feeding the (external)
// execution engine (spec.md §1; implemented by pkg/taskqueue).
type TaskQueue interface {
	Offer(ctx context.Context, t Task) BackPressureFuture
}
