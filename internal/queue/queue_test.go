package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Job{InvocationID: "a"}))
	require.NoError(t, q.Push(ctx, Job{InvocationID: "b"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", first.InvocationID)
	assert.False(t, first.EnqueuedAt.IsZero())

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", second.InvocationID)
}

func TestMemoryQueue_PopTimesOut(t *testing.T) {
	q := NewMemoryQueue()

	job, err := q.Pop(context.Background(), 10*time.Millisecond)

	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestMemoryQueue_PopWakesOnPush(t *testing.T) {
	q := NewMemoryQueue()
	done := make(chan *Job, 1)

	go func() {
		job, _ := q.Pop(context.Background(), 5*time.Second)
		done <- job
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(context.Background(), Job{InvocationID: "late"}))

	select {
	case job := <-done:
		require.NotNil(t, job)
		assert.Equal(t, "late", job.InvocationID)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}

func TestMemoryQueue_PopHonorsContext(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeJob(t *testing.T) {
	job, err := decodeJob([]string{"insights:queue:regenerate", `{"invocationId":"x","subjectKey":"AAPL","category":"FairValue","expectedVersion":2}`})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", job.SubjectKey)
	assert.Equal(t, 2, job.ExpectedVersion)

	_, err = decodeJob([]string{"only-key"})
	assert.Error(t, err)

	_, err = decodeJob([]string{"k", "not json"})
	assert.Error(t, err)
}

// TestRedisQueue runs against a real server when REDIS_TEST_URL is set.
func TestRedisQueue(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	key := "insights:test:queue:" + time.Now().Format("150405.000000")

	defer client.Del(ctx, key)

	q := NewRedisQueue(client, key)

	require.NoError(t, q.Push(ctx, Job{InvocationID: "1", SubjectKey: "AAPL"}))
	require.NoError(t, q.Push(ctx, Job{InvocationID: "2", SubjectKey: "MSFT"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	job, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", job.InvocationID)
}
