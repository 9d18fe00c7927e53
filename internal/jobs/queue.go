package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// ErrQueueFull is returned by TryEnqueue when the queue has no room.
var ErrQueueFull = errors.New("queue is full")

// MemoryQueue is a bounded in-memory queue with context-aware operations.
type MemoryQueue struct {
	ch      chan harvest.JobRequest
	closeMu sync.Mutex
	closed  bool
}

// NewMemoryQueue constructs a new queue with the provided capacity.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		ch: make(chan harvest.JobRequest, capacity),
	}
}

// Enqueue pushes a job into the queue without blocking. A full queue is an
// error so the caller can fall back to another queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, job harvest.JobRequest) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *MemoryQueue) Dequeue(ctx context.Context) (harvest.JobRequest, error) {
	select {
	case <-ctx.Done():
		return harvest.JobRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return harvest.JobRequest{}, errors.New("queue closed")
		}
		return job, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *MemoryQueue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
