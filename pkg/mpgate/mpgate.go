// Package mpgate implements the MP durability gate: it holds follow-up
// fragments and the complete-transaction message for a multi-partition
// transaction whose first fragment was logged synchronously and has not
// yet been confirmed durable, draining them to the task queue in arrival
// order once durability is confirmed.
package mpgate

import "github.com/Kernelock/voltdb/pkg/ids"

// Task is whatever the scheduler hands to the task queue; mpgate only
// needs to preserve arrival order, not interpret the payload.
type Task any

// Gate maps T to a queue of held tasks.
type Gate struct {
	queues map[ids.TxnID][]Task
}

// New creates an empty durability gate.
func New() *Gate {
	return &Gate{queues: make(map[ids.TxnID][]Task)}
}

// Open creates a queue for t, called only when the first fragment of an MP
// transaction was logged synchronously and the command log did not accept
// it immediately (spec.md §4.6). Opening an already-open queue is a no-op.
func (g *Gate) Open(t ids.TxnID) {
	if _, ok := g.queues[t]; !ok {
		g.queues[t] = nil
	}
}

// IsOpen reports whether t has a pending durability queue.
func (g *Gate) IsOpen(t ids.TxnID) bool {
	_, ok := g.queues[t]
	return ok
}

// Enqueue appends task to t's held queue. The caller must have verified
// IsOpen(t) first; subsequent fragments and the complete-message for that
// T enqueue here instead of going straight to the task queue.
func (g *Gate) Enqueue(t ids.TxnID, task Task) {
	g.queues[t] = append(g.queues[t], task)
}

// Drain removes and returns t's held tasks in arrival order, closing the
// gate for t. Called from the durability callback.
func (g *Gate) Drain(t ids.TxnID) []Task {
	tasks := g.queues[t]
	delete(g.queues, t)
	return tasks
}
