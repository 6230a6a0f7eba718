package taskqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kernelock/voltdb/pkg/sps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_OfferRunsTask(t *testing.T) {
	q := New(4, 2)
	defer q.Stop()

	var ran int32
	future := q.Offer(context.Background(), sps.Task{Kind: "test", Exec: func(ctx context.Context) sps.Response {
		atomic.AddInt32(&ran, 1)
		return sps.Response{}
	}})

	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("task never completed")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestQueue_OfferRespectsContextCancellation(t *testing.T) {
	// A single worker busy on a blocking task, plus one task already
	// occupying the queue's only buffered slot, means the channel send in
	// Offer cannot proceed; an already-cancelled context must still return
	// immediately instead of blocking forever.
	q := New(1, 1)
	defer q.Stop()

	started := make(chan struct{})
	blocker := make(chan struct{})
	q.Offer(context.Background(), sps.Task{Kind: "blocker", Exec: func(ctx context.Context) sps.Response {
		close(started)
		<-blocker
		return sps.Response{}
	}})
	<-started // the worker has now dequeued blocker, freeing the buffer slot
	q.Offer(context.Background(), sps.Task{Kind: "filler"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan sps.BackPressureFuture, 1)
	go func() { done <- q.Offer(ctx, sps.Task{Kind: "cancelled"}) }()

	select {
	case f := <-done:
		require.NotNil(t, f)
	case <-time.After(time.Second):
		t.Fatal("Offer blocked past an already-cancelled context")
	}
	close(blocker)
}
