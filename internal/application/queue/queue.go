// Package queue holds the request queue and the single worker that drains
// it: one unbounded FIFO, one processing lock, cooperative
// cancellation at every suspension point.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// Queue is an unbounded FIFO of QueueItem ordered by EnqueueSeq. A
// mutex+condition-variable pair is used instead of a buffered channel
// because the queue must stay unbounded — a channel would need an
// arbitrary capacity picked up front.
type Queue struct {
	mu sync.Mutex
	cond *sync.Cond
	items []*entity.QueueItem
	seq uint64
	closed bool

	length atomic.Int64 // lock-free read for /v1/queue and /health
}

func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends ctx to the tail, stamping it with the next sequence number.
func (q *Queue) Enqueue(ctx *entity.RequestContext) *entity.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	item := &entity.QueueItem{Ctx: ctx, EnqueueSeq: q.seq, EnqueuedAt: ctx.ReceivedAt}
	q.items = append(q.items, item)
	q.length.Add(1)
	q.cond.Signal()
	return item
}

// Dequeue blocks until an item is available, the queue is closed, or
// drainCtx is done. The worker's periodic wake-up to service
// cancellation/shutdown is achieved by the caller passing a context with a
// short deadline and looping, rather than this method polling internally.
func (q *Queue) Dequeue(drainCtx context.Context) (*entity.QueueItem, bool) {
	woken := make(chan struct{})
	stop := context.AfterFunc(drainCtx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		close(woken)
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		select {
		case <-woken:
			return nil, false
		default:
		}
		if drainCtx.Err() != nil {
			return nil, false
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	q.length.Add(-1)
	return item, true
}

// Close wakes every blocked Dequeue so the worker can exit on shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the current queue depth, for /v1/queue and /health.
func (q *Queue) Len() int {
	return int(q.length.Load())
}
