package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

func TestMemoryQueue_EnqueueReceiveDelete(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	msg := model.JobMessage{JobID: "j1", ProjectID: "p1", Stage: model.StageProfile}
	require.NoError(t, q.Enqueue(ctx, msg))

	deliveries, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, msg, deliveries[0].Message)

	pending, inflight := q.Depth()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, inflight)

	require.NoError(t, q.Delete(ctx, deliveries[0].Receipt))
	pending, inflight = q.Depth()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 0, inflight)
}

func TestMemoryQueue_ReceiveTimesOutEmpty(t *testing.T) {
	q := NewMemory()
	start := time.Now()
	deliveries, err := q.Receive(context.Background(), 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, deliveries)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMemoryQueue_ReceiveWakesOnEnqueue(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(ctx, model.JobMessage{JobID: "j1"})
	}()

	deliveries, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "j1", deliveries[0].Message.JobID)
}

func TestMemoryQueue_RedeliverSimulatesVisibilityExpiry(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.JobMessage{JobID: "j1"}))
	first, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	q.Redeliver()

	second, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "j1", second[0].Message.JobID)
	assert.NotEqual(t, first[0].Receipt, second[0].Receipt)
}

func TestMemoryQueue_ReceiveRespectsMax(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, model.JobMessage{JobID: id}))
	}

	deliveries, err := q.Receive(ctx, 2, time.Second)
	require.NoError(t, err)
	assert.Len(t, deliveries, 2)

	pending, _ := q.Depth()
	assert.Equal(t, 1, pending)
}

func TestMemoryQueue_ContextCancel(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := q.Receive(ctx, 1, time.Minute)
	assert.Error(t, err)
}
