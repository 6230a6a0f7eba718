package sps

import (
	"context"
	"sync"

	"github.com/Kernelock/voltdb/pkg/ids"
)

type sentMsg struct {
	Dest ids.SiteID
	Msg  any
}

type multicastMsg struct {
	Dests []ids.SiteID
	Msg   any
}

// fakeMailbox records every Send/Multicast instead of going over the
// wire, grounding the same test-double style as the teacher's table
// driven tests against an in-memory fake.
type fakeMailbox struct {
	mu         sync.Mutex
	sent       []sentMsg
	multicasts []multicastMsg
}

func (f *fakeMailbox) Send(ctx context.Context, dest ids.SiteID, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{Dest: dest, Msg: msg})
	return nil
}

func (f *fakeMailbox) Multicast(ctx context.Context, dests []ids.SiteID, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multicasts = append(f.multicasts, multicastMsg{Dests: dests, Msg: msg})
	return nil
}

type fakeBackPressure struct{ done chan struct{} }

func (f fakeBackPressure) Done() <-chan struct{} { return f.done }

// fakeTaskQueue records offered tasks in order, standing in for the
// external execution engine.
type fakeTaskQueue struct {
	mu      sync.Mutex
	offered []Task
}

func (f *fakeTaskQueue) Offer(ctx context.Context, t Task) BackPressureFuture {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offered = append(f.offered, t)
	done := make(chan struct{})
	close(done)
	return fakeBackPressure{done: done}
}

type fakeFuture struct{ err error }

func (f fakeFuture) Error() error { return f.err }

// fakeCommandLog is a no-op durable log whose Mode is fixed by the test.
type fakeCommandLog struct {
	mode LogMode
}

func (f *fakeCommandLog) Append(ctx context.Context, entry LogEntry) Future {
	return fakeFuture{}
}

func (f *fakeCommandLog) AppendSync(ctx context.Context, entry LogEntry) error {
	return nil
}

func (f *fakeCommandLog) WriteFaultLog(ctx context.Context, entry FaultLogEntry) error {
	return nil
}

func (f *fakeCommandLog) Mode() LogMode { return f.mode }
