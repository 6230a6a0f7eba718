// Package taskqueue implements the bounded, back-pressured task queue that
// feeds the (external) execution engine: sps.TaskQueue backed by a
// fixed-capacity channel and a small pool of worker goroutines, following
// the same stopCh-driven goroutine lifecycle the teacher uses for its
// background loops (pkg/scheduler.Scheduler.run, pkg/worker.HealthMonitor.monitorLoop).
package taskqueue

import (
	"context"
	"sync"

	"github.com/Kernelock/voltdb/pkg/log"
	"github.com/Kernelock/voltdb/pkg/sps"
	"github.com/rs/zerolog"
)

// Queue is a bounded sps.TaskQueue: Offer blocks the caller only long
// enough to enqueue, never to execute, and reports back-pressure through
// the returned BackPressureFuture rather than blocking Dispatch itself
// (spec.md §9's "a back-pressure future, not an error").
type Queue struct {
	tasks   chan queuedTask
	logger  zerolog.Logger
	wg      sync.WaitGroup
	stopCh  chan struct{}
	metrics Metrics
}

// Metrics receives queue depth observations; nil is valid.
type Metrics interface {
	SetTaskQueueDepth(n int)
}

type queuedTask struct {
	task sps.Task
	done chan struct{}
}

// backPressureFuture implements sps.BackPressureFuture.
type backPressureFuture struct {
	done <-chan struct{}
}

func (f backPressureFuture) Done() <-chan struct{} { return f.done }

// New creates a Queue with the given channel capacity and starts
// numWorkers goroutines draining it. Capacity bounds how many tasks may be
// outstanding before Offer itself blocks, which is the queue's only
// back-pressure signal upstream of task completion.
func New(capacity, numWorkers int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	q := &Queue{
		tasks:  make(chan queuedTask, capacity),
		logger: log.WithComponent("taskqueue"),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// SetMetrics wires a Metrics collector; may be called once before the
// queue is offered any tasks.
func (q *Queue) SetMetrics(m Metrics) {
	q.metrics = m
}

// Offer implements sps.TaskQueue. It enqueues t, blocking while the queue
// is full until space frees, ctx is done, or the queue is stopped. The
// returned future closes once t.Exec has run, or at once if t was not
// enqueued.
func (q *Queue) Offer(ctx context.Context, t sps.Task) sps.BackPressureFuture {
	done := make(chan struct{})
	select {
	case q.tasks <- queuedTask{task: t, done: done}:
		if q.metrics != nil {
			q.metrics.SetTaskQueueDepth(len(q.tasks))
		}
	case <-ctx.Done():
		close(done)
	case <-q.stopCh:
		close(done)
	}
	return backPressureFuture{done: done}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case qt, ok := <-q.tasks:
			if !ok {
				return
			}
			q.run(qt)
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) run(qt queuedTask) {
	defer close(qt.done)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Str("kind", qt.task.Kind).Msg("task execution panicked")
		}
	}()
	if qt.task.Exec == nil {
		return
	}
	qt.task.Exec(context.Background())
}

// Stop signals every worker to exit once its current task completes and
// waits for them to return. Tasks still buffered in the channel are
// dropped; callers that need a clean drain should stop offering new work
// first.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}
