package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/finsight/finsight-api/internal/analysis"
	"github.com/finsight/finsight-api/internal/domain"
	"github.com/finsight/finsight-api/internal/queue"
	"github.com/finsight/finsight-api/internal/store"
)

// processDelivery executes one queue delivery end to end.
//
// Ordering matters here: the result is committed to the store before the
// delivery is acknowledged. If the process dies in between, the queue
// redelivers and the claim transition rejects the duplicate, so a task result
// becomes visible exactly once even though delivery is at-least-once.
func (p *Pool) processDelivery(ctx context.Context, logger *slog.Logger, delivery queue.Delivery) {
	msg := delivery.Message()
	logger = logger.With(slog.String("task_id", msg.TaskID.String()))

	task, err := p.store.Transition(ctx, msg.TaskID,
		[]domain.TaskStatus{domain.TaskStatusPending},
		domain.TaskStatusProcessing,
		store.TransitionOptions{IncrementAttempts: true},
	)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			// Another worker already claimed this task, or it has reached a
			// terminal state. The duplicate delivery is discarded.
			logger.DebugContext(ctx, "task already claimed, discarding delivery")
			p.ack(ctx, logger, delivery)
		case errors.Is(err, store.ErrTaskNotFound):
			logger.WarnContext(ctx, "task no longer exists, discarding delivery")
			p.ack(ctx, logger, delivery)
		default:
			// Store unavailable: leave the delivery unacked so the queue
			// redelivers it after the visibility timeout.
			logger.ErrorContext(ctx, "failed to claim task",
				slog.String("error", err.Error()))
		}
		return
	}

	logger.InfoContext(ctx, "task claimed",
		slog.Int("attempt", task.AttemptCount),
		slog.Int("max_attempts", p.cfg.MaxAttempts))

	report, analysisErr := p.analyze(ctx, logger, task)
	if analysisErr != nil {
		p.settleFailure(ctx, logger, delivery, task, analysisErr)
		return
	}

	p.settleSuccess(ctx, logger, delivery, task, report)
}

// analyze loads the stored document and runs the engine against it.
func (p *Pool) analyze(ctx context.Context, logger *slog.Logger, task *domain.AnalysisTask) (*analysis.Report, error) {
	doc, err := p.loader.Load(ctx, task.DocumentPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report, err := p.engine.Analyze(ctx, doc, task.Query)
	p.metrics.ObserveAnalysisDuration(time.Since(start))
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "analysis completed",
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

// settleSuccess commits the report and acknowledges the delivery.
func (p *Pool) settleSuccess(ctx context.Context, logger *slog.Logger, delivery queue.Delivery, task *domain.AnalysisTask, report *analysis.Report) {
	payload, err := json.Marshal(report)
	if err != nil {
		p.settleFailure(ctx, logger, delivery, task, err)
		return
	}

	_, err = p.store.Transition(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusProcessing},
		domain.TaskStatusCompleted,
		store.TransitionOptions{Result: payload},
	)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrTaskNotFound) {
			// A recovery sweep reclaimed the task while we were analyzing.
			// Its retry will produce the result; ours is discarded.
			logger.WarnContext(ctx, "lost task ownership before commit, discarding result")
			p.ack(ctx, logger, delivery)
			return
		}
		logger.ErrorContext(ctx, "failed to commit result, leaving delivery for redelivery",
			slog.String("error", err.Error()))
		return
	}

	p.metrics.TaskCompleted()
	p.ack(ctx, logger, delivery)
	p.cleanupDocument(ctx, logger, task)
	logger.InfoContext(ctx, "task completed")
}

// settleFailure requeues the task for another attempt, or marks it failed
// once the attempt ceiling is reached. Content blocked by the model's safety
// filters fails immediately since a retry cannot change the document.
func (p *Pool) settleFailure(ctx context.Context, logger *slog.Logger, delivery queue.Delivery, task *domain.AnalysisTask, cause error) {
	retryable := task.AttemptCount < p.cfg.MaxAttempts &&
		!errors.Is(cause, analysis.ErrContentBlocked)

	logger.WarnContext(ctx, "analysis attempt failed",
		slog.Int("attempt", task.AttemptCount),
		slog.Bool("retryable", retryable),
		slog.String("error", cause.Error()))

	if !retryable {
		_, err := p.store.Transition(ctx, task.ID,
			[]domain.TaskStatus{domain.TaskStatusProcessing},
			domain.TaskStatusFailed,
			store.TransitionOptions{ErrorMessage: cause.Error()},
		)
		if err != nil {
			if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrTaskNotFound) {
				p.ack(ctx, logger, delivery)
				return
			}
			logger.ErrorContext(ctx, "failed to mark task failed",
				slog.String("error", err.Error()))
			return
		}
		p.metrics.TaskFailed()
		p.ack(ctx, logger, delivery)
		p.cleanupDocument(ctx, logger, task)
		logger.ErrorContext(ctx, "task failed permanently",
			slog.Int("attempts", task.AttemptCount))
		return
	}

	// The attempt error is logged above but never persisted here: the error
	// field is written exactly once, on the terminal failed transition, so a
	// pending task never carries an error visible to clients.
	_, err := p.store.Transition(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusProcessing},
		domain.TaskStatusPending,
		store.TransitionOptions{},
	)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrTaskNotFound) {
			p.ack(ctx, logger, delivery)
			return
		}
		logger.ErrorContext(ctx, "failed to requeue task",
			slog.String("error", err.Error()))
		return
	}

	if err := p.queue.Enqueue(ctx, queue.NewMessage(task.ID)); err != nil {
		// The task is pending but not in the queue. Leaving the delivery
		// unacked lets the visibility timeout redeliver it, and the recovery
		// sweep covers the case where this process dies first.
		logger.ErrorContext(ctx, "failed to enqueue retry, relying on redelivery",
			slog.String("error", err.Error()))
		return
	}

	p.metrics.TaskRetried()
	p.ack(ctx, logger, delivery)
	logger.InfoContext(ctx, "task requeued for retry",
		slog.Int("next_attempt", task.AttemptCount+1))
}

// ack acknowledges a delivery, logging failures. A failed ack only costs a
// redundant redelivery, which the claim transition absorbs.
func (p *Pool) ack(ctx context.Context, logger *slog.Logger, delivery queue.Delivery) {
	if err := delivery.Ack(); err != nil {
		logger.WarnContext(ctx, "failed to ack delivery",
			slog.String("error", err.Error()))
	}
}

// cleanupDocument removes the stored document for a terminal task when
// cleanup is enabled.
func (p *Pool) cleanupDocument(ctx context.Context, logger *slog.Logger, task *domain.AnalysisTask) {
	if !p.cfg.CleanupDocuments || p.cleaner == nil {
		return
	}
	if err := p.cleaner.Remove(task.DocumentPath); err != nil {
		logger.WarnContext(ctx, "failed to remove stored document",
			slog.String("path", task.DocumentPath),
			slog.String("error", err.Error()))
	}
}
