// Package memory provides the in-process capture queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// Queue is a bounded in-memory queue with context-aware operations.
// Targets are dequeued in the order they were enqueued.
type Queue struct {
	ch      chan capture.Target
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan capture.Target, capacity),
	}
}

// Enqueue pushes a target into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, target capture.Target) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return capture.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- target:
		return nil
	}
}

// Dequeue pops the next target. Once the queue is closed and drained it
// returns capture.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (capture.Target, error) {
	if err := ctx.Err(); err != nil {
		return capture.Target{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return capture.Target{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case target, ok := <-q.ch:
		if !ok {
			return capture.Target{}, capture.ErrQueueClosed
		}
		return target, nil
	}
}

// Len reports how many targets are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops further enqueues; pending targets remain dequeueable.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
