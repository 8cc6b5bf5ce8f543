// Package queue carries asynchronous regeneration jobs over a Redis list.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/lueurxax/insights-engine/internal/platform/observability"
)

// Job is one queued regeneration request. The invocation row already exists in pending state.
type Job struct {
	InvocationID    string    `json:"invocationId"`
	SubjectKey      string    `json:"subjectKey"`
	Category        string    `json:"category"`
	InvestorKey     string    `json:"investorKey,omitempty"`
	Model           string    `json:"model,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	ExpectedVersion int       `json:"expectedVersion"`
	EnqueuedAt      time.Time `json:"enqueuedAt"`
}

// Queue pushes to the head of a list and pops from its tail.
type Queue interface {
	Push(ctx context.Context, job Job) error
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
	Len(ctx context.Context) (int64, error)
}

// RedisQueue is a FIFO queue on a Redis list.
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

// NewRedisQueue creates a queue on the list named key.
func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Push enqueues a job.
func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}

	return nil
}

// Pop blocks up to timeout for the next job. It returns nil, nil when the queue stayed empty.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // empty queue is not an error
	}

	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}

	return decodeJob(result)
}

// Len returns the number of waiting jobs and records it as a gauge.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}

	observability.QueueDepth.Set(float64(n))

	return n, nil
}

// decodeJob parses a BRPOP reply: [key, payload].
func decodeJob(reply []string) (*Job, error) {
	if len(reply) != 2 {
		return nil, fmt.Errorf("unexpected pop reply of %d elements", len(reply))
	}

	var job Job
	if err := json.Unmarshal([]byte(reply[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}

	return &job, nil
}
