package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestMemoryQueue_EnqueueDequeueAck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue(10, time.Minute, testLogger())
	defer func() { _ = q.Close() }()

	msg := NewMessage(uuid.New())
	require.NoError(t, q.Enqueue(ctx, msg))

	delivery, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.TaskID, delivery.Message().TaskID)

	require.NoError(t, delivery.Ack())

	// Acked message is gone: a second dequeue blocks until timeout.
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_QueueFull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue(2, time.Minute, testLogger())
	defer func() { _ = q.Close() }()

	require.NoError(t, q.Enqueue(ctx, NewMessage(uuid.New())))
	require.NoError(t, q.Enqueue(ctx, NewMessage(uuid.New())))

	err := q.Enqueue(ctx, NewMessage(uuid.New()))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMemoryQueue_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue(2, time.Minute, testLogger())

	require.NoError(t, q.Close())
	// Closing twice is safe.
	require.NoError(t, q.Close())

	err := q.Enqueue(ctx, NewMessage(uuid.New()))
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue(2, time.Minute, testLogger())
	defer func() { _ = q.Close() }()

	msg := NewMessage(uuid.New())

	received := make(chan Message, 1)
	go func() {
		delivery, err := q.Dequeue(ctx)
		if err == nil {
			received <- delivery.Message()
			_ = delivery.Ack()
		}
	}()

	// Give the consumer a moment to block, then publish.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, msg))

	select {
	case got := <-received:
		assert.Equal(t, msg.TaskID, got.TaskID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for blocked dequeue to receive message")
	}
}

func TestMemoryQueue_RedeliveryAfterVisibilityTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue(10, 50*time.Millisecond, testLogger())
	defer func() { _ = q.Close() }()

	msg := NewMessage(uuid.New())
	require.NoError(t, q.Enqueue(ctx, msg))

	// Dequeue without acking: the delivery must come back.
	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.TaskID, first.Message().TaskID)

	redeliverCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	second, err := q.Dequeue(redeliverCtx)
	require.NoError(t, err, "unacknowledged message should be redelivered")
	assert.Equal(t, msg.TaskID, second.Message().TaskID)
	require.NoError(t, second.Ack())

	// Late ack of the original delivery is a harmless no-op.
	assert.NoError(t, first.Ack())
}

func TestMemoryQueue_AckPreventsRedelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue(10, 30*time.Millisecond, testLogger())
	defer func() { _ = q.Close() }()

	require.NoError(t, q.Enqueue(ctx, NewMessage(uuid.New())))

	delivery, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, delivery.Ack())

	// Wait past several sweep intervals; nothing should come back.
	shortCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_Depth(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue(10, time.Minute, testLogger())
	defer func() { _ = q.Close() }()

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Zero(t, depth)

	require.NoError(t, q.Enqueue(ctx, NewMessage(uuid.New())))
	require.NoError(t, q.Enqueue(ctx, NewMessage(uuid.New())))

	depth, err = q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	// A dequeued message is in flight, not waiting.
	delivery, err := q.Dequeue(ctx)
	require.NoError(t, err)

	depth, err = q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	require.NoError(t, delivery.Ack())
}

func TestNewMessage(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	msg := NewMessage(taskID)

	assert.Equal(t, taskID, msg.TaskID)
	assert.WithinDuration(t, time.Now().UTC(), msg.EnqueuedAt, time.Second)
}
