// Package queue provides the at-least-once delivery channel carrying
// execution messages from submission to the worker pool. A message may be
// redelivered if a worker crashes or fails to acknowledge within the
// visibility timeout; consumers must therefore be idempotent with respect to
// the task store's transition guard.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by queue implementations.
var (
	// ErrEnqueue is returned when a message cannot be handed to the broker.
	// Callers must surface this rather than leaving an orphaned pending task.
	ErrEnqueue = errors.New("failed to enqueue execution message")

	// ErrQueueClosed is returned when operating on a closed queue.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrQueueFull is returned when the queue buffer has no capacity left.
	ErrQueueFull = errors.New("task queue is full")
)

// Message is the execution payload: the task id plus enough to reconstruct
// nothing else. Task details are always re-fetched from the store so queued
// data can never drift from the record of truth.
type Message struct {
	TaskID     uuid.UUID `json:"task_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewMessage creates an execution message for the given task.
func NewMessage(taskID uuid.UUID) Message {
	return Message{
		TaskID:     taskID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Delivery is one received message. The underlying message is not permanently
// removed until Ack is called; unacknowledged deliveries become eligible for
// redelivery after the visibility timeout.
type Delivery interface {
	// Message returns the delivered execution message.
	Message() Message

	// Ack permanently removes the message from the queue. Workers call this
	// only after the corresponding task store mutation has committed.
	Ack() error
}

// DepthReporter is implemented by queues that can report how many messages
// are waiting for a consumer. Used for gauge instrumentation only; the value
// is a snapshot and may be stale by the time it is read.
type DepthReporter interface {
	Depth() (int, error)
}

// Queue is the transport between the API gateway and the worker pool.
// Implementations provide at-least-once delivery; no cross-task ordering is
// guaranteed.
// Version: 1.0
type Queue interface {
	// Enqueue adds an execution message to the queue.
	// Returns an error wrapping ErrEnqueue, ErrQueueFull or ErrQueueClosed
	// when the message could not be accepted.
	Enqueue(ctx context.Context, msg Message) error

	// Dequeue blocks until a message is available or the context is done.
	Dequeue(ctx context.Context) (Delivery, error)

	// Close shuts the queue down, preventing further submission.
	Close() error
}
