package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sweepDivisor controls how often the redelivery sweep runs relative to the
// visibility timeout.
const sweepDivisor = 4

// MemoryQueue is an in-process Queue backed by a buffered channel. Deliveries
// are tracked in an in-flight table and redelivered after the visibility
// timeout when not acknowledged, giving single-process deployments the same
// at-least-once semantics the NATS driver provides across machines.
type MemoryQueue struct {
	mu       sync.Mutex
	messages chan Message
	inflight map[uuid.UUID]inflightMessage
	closed   bool

	visibility time.Duration
	logger     *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// inflightMessage is a delivered but unacknowledged message.
type inflightMessage struct {
	msg      Message
	deadline time.Time
}

// NewMemoryQueue creates a memory queue with the given buffer size and
// visibility timeout and starts its redelivery sweep.
func NewMemoryQueue(size int, visibility time.Duration, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &MemoryQueue{
		messages:   make(chan Message, size),
		inflight:   make(map[uuid.UUID]inflightMessage),
		visibility: visibility,
		logger:     logger.With(slog.String("component", "memory_queue")),
		done:       make(chan struct{}),
	}

	if visibility > 0 {
		q.wg.Add(1)
		go q.redeliveryLoop()
	}

	return q
}

// Ensure MemoryQueue implements the Queue interface
var (
	_ Queue         = (*MemoryQueue)(nil)
	_ DepthReporter = (*MemoryQueue)(nil)
)

// Enqueue adds a message to the queue.
// Returns ErrQueueClosed after Close and ErrQueueFull when the buffer has no
// capacity; callers must not block submission on a slow consumer.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()

	if closed {
		return ErrQueueClosed
	}

	select {
	case q.messages <- msg:
		q.logger.Debug("message enqueued",
			slog.String("task_id", msg.TaskID.String()),
			slog.Int("queue_len", len(q.messages)),
			slog.Int("queue_cap", cap(q.messages)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrEnqueue, ctx.Err())
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.messages))
	}
}

// Dequeue blocks until a message is available, the queue closes, or the
// context is done. The returned delivery stays invisible to other consumers
// until acknowledged or until the visibility timeout expires.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrQueueClosed
	case msg := <-q.messages:
		token := uuid.New()

		q.mu.Lock()
		q.inflight[token] = inflightMessage{
			msg:      msg,
			deadline: time.Now().Add(q.visibility),
		}
		q.mu.Unlock()

		return &memoryDelivery{queue: q, token: token, msg: msg}, nil
	}
}

// Close shuts the queue down and stops the redelivery sweep.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
	q.logger.Info("task queue closed")
	return nil
}

// Depth reports the number of buffered messages waiting for a consumer.
// In-flight deliveries are excluded: they are being worked on, not waiting.
func (q *MemoryQueue) Depth() (int, error) {
	return len(q.messages), nil
}

// ack removes a delivered message from the in-flight table. Acknowledging a
// message that was already redelivered is a no-op.
func (q *MemoryQueue) ack(token uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, token)
}

// redeliveryLoop periodically returns expired in-flight messages to the
// channel so a live worker can claim them again.
func (q *MemoryQueue) redeliveryLoop() {
	defer q.wg.Done()

	interval := q.visibility / sweepDivisor
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			q.redeliverExpired()
		}
	}
}

// redeliverExpired moves every expired in-flight message back onto the
// channel. When the buffer is full the message keeps its in-flight slot with
// a fresh deadline and is retried on a later sweep.
func (q *MemoryQueue) redeliverExpired() {
	now := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	for token, entry := range q.inflight {
		if entry.deadline.After(now) {
			continue
		}

		select {
		case q.messages <- entry.msg:
			delete(q.inflight, token)
			q.logger.Warn("redelivering unacknowledged message",
				slog.String("task_id", entry.msg.TaskID.String()))
		default:
			entry.deadline = now.Add(q.visibility)
			q.inflight[token] = entry
			q.logger.Error("cannot redeliver message, queue is full",
				slog.String("task_id", entry.msg.TaskID.String()))
		}
	}
}

// memoryDelivery is one delivery from a MemoryQueue.
type memoryDelivery struct {
	queue *MemoryQueue
	token uuid.UUID
	msg   Message
}

// Message returns the delivered execution message.
func (d *memoryDelivery) Message() Message {
	return d.msg
}

// Ack permanently removes the message from the queue.
func (d *memoryDelivery) Ack() error {
	d.queue.ack(d.token)
	return nil
}
