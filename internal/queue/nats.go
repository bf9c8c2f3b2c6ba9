package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/finsight/finsight-api/internal/config"
)

// fetchWait bounds each pull request so Dequeue can notice context
// cancellation between fetches.
const fetchWait = 5 * time.Second

// NATSQueue is a Queue backed by a NATS JetStream work-queue stream. Messages
// are pulled by a shared durable consumer with explicit acknowledgment, so
// redelivery after AckWait and load balancing across worker processes come
// from the broker itself.
type NATSQueue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	stream  string
	subject string
	logger  *slog.Logger
}

// NewNATSQueue connects to the broker, ensures the stream exists, and binds
// a durable pull consumer whose AckWait equals the configured visibility
// timeout.
func NewNATSQueue(cfg config.QueueConfig, logger *slog.Logger) (*NATSQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "nats_queue"))

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("finsight-api"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Work-queue retention: a message is removed once one consumer acks it.
	if _, err := js.StreamInfo(cfg.NATSStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			conn.Close()
			return nil, fmt.Errorf("failed to look up stream %s: %w", cfg.NATSStream, err)
		}

		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.NATSStream,
			Subjects:  []string{cfg.NATSSubject},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.NATSStream, err)
		}

		logger.Info("created JetStream stream",
			slog.String("stream", cfg.NATSStream),
			slog.String("subject", cfg.NATSSubject))
	}

	sub, err := js.PullSubscribe(cfg.NATSSubject, cfg.NATSDurable,
		nats.AckWait(cfg.VisibilityTimeout),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.NATSSubject, err)
	}

	return &NATSQueue{
		conn:    conn,
		js:      js,
		sub:     sub,
		stream:  cfg.NATSStream,
		subject: cfg.NATSSubject,
		logger:  logger,
	}, nil
}

// Ensure NATSQueue implements the Queue interface
var (
	_ Queue         = (*NATSQueue)(nil)
	_ DepthReporter = (*NATSQueue)(nil)
)

// Enqueue publishes the message to the stream.
// Returns an error wrapping ErrEnqueue if the broker rejects or cannot
// receive the publish.
func (q *NATSQueue) Enqueue(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal message: %v", ErrEnqueue, err)
	}

	if _, err := q.js.Publish(q.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	q.logger.Debug("message enqueued", slog.String("task_id", msg.TaskID.String()))
	return nil
}

// Dequeue pulls the next message, blocking until one arrives or the context
// is done. Malformed payloads are terminated rather than left to redeliver
// forever.
func (q *NATSQueue) Dequeue(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchWait)
		msgs, err := q.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to fetch message: %w", err)
		}
		if len(msgs) == 0 {
			continue
		}

		raw := msgs[0]

		var msg Message
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			q.logger.Error("discarding malformed queue message",
				slog.String("error", err.Error()))
			_ = raw.Term()
			continue
		}

		return &natsDelivery{msg: msg, raw: raw}, nil
	}
}

// Depth reports the number of messages in the stream. With work-queue
// retention a message leaves the stream when acked, so this is the backlog
// plus in-flight deliveries.
func (q *NATSQueue) Depth() (int, error) {
	info, err := q.js.StreamInfo(q.stream)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream info for %s: %w", q.stream, err)
	}
	return int(info.State.Msgs), nil
}

// Close drains the connection, letting in-flight acks complete.
func (q *NATSQueue) Close() error {
	if err := q.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// natsDelivery is one delivery from a NATSQueue.
type natsDelivery struct {
	msg Message
	raw *nats.Msg
}

// Message returns the delivered execution message.
func (d *natsDelivery) Message() Message {
	return d.msg
}

// Ack permanently removes the message from the stream.
func (d *natsDelivery) Ack() error {
	return d.raw.AckSync()
}
