// Package queue defines the contract for enqueuing and consuming jobs.
//
// The in-memory implementation is a bounded buffered channel shared by the
// fit workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/spectre/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 4096
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full or closed and the job was not enqueued.
	Enqueue(ctx context.Context, job T) bool

	// Offer adds a job to the queue and reports why it was refused.
	Offer(ctx context.Context, job T) error

	// Dequeue returns a channel that will receive jobs as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	jobs     chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue[int] = (*InMemoryQueue[int])(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	o := options{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize < o.capacity {
		o.bufferSize = o.capacity
	}

	q := &InMemoryQueue[T]{
		jobs:     make(chan T, o.bufferSize),
		capacity: o.capacity,
	}

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueDepth(0)

	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, job T) bool {
	return q.Offer(ctx, job) == nil
}

// Offer adds a job to the queue without blocking. It returns ErrClosed,
// ErrFull or the context error when the job was not enqueued.
func (q *InMemoryQueue[T]) Offer(ctx context.Context, job T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	if len(q.jobs) >= q.capacity {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return ErrFull
	}

	select {
	case q.jobs <- job:
		metrics.UpdateQueueDepth(len(q.jobs))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive jobs as they become available.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				select {
				case out <- job:
					metrics.UpdateQueueDepth(len(q.jobs))
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue[T]) Len(ctx context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueDepth(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.jobs)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
