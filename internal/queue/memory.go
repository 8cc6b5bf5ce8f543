package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process queue for local runs without Redis.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   []Job
	signal chan struct{}
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

// Push enqueues a job.
func (q *MemoryQueue) Push(_ context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return nil
}

// Pop waits up to timeout for a job. It returns nil, nil when none arrived.
func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if job := q.take(); job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil //nolint:nilnil // empty queue is not an error
		case <-q.signal:
		}
	}
}

// Len returns the number of waiting jobs.
func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) take() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}

	job := q.jobs[0]
	q.jobs = q.jobs[1:]

	return &job
}
