// Package memory provides the in-process trigger queue between the scheduler
// and the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// ErrClosed is returned by Dequeue once Close has drained the queue.
var ErrClosed = collector.ErrQueueClosed

// Queue is a bounded in-memory queue. Producers never block.
type Queue struct {
	ch      chan collector.Trigger
	closeMu sync.RWMutex
	closed  bool
}

var _ collector.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan collector.Trigger, capacity),
	}
}

// TryEnqueue pushes a trigger only if there is room. It reports false when the
// queue is full or closed.
func (q *Queue) TryEnqueue(trigger collector.Trigger) bool {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- trigger:
		return true
	default:
		return false
	}
}

// Dequeue pops the next trigger, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (collector.Trigger, error) {
	select {
	case <-ctx.Done():
		return collector.Trigger{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case trigger, ok := <-q.ch:
		if !ok {
			return collector.Trigger{}, ErrClosed
		}
		return trigger, nil
	}
}

// Len reports the number of buffered triggers.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
