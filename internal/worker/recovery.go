package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/finsight-api/internal/domain"
	"github.com/finsight/finsight-api/internal/queue"
	"github.com/finsight/finsight-api/internal/store"
)

// Recover returns orphaned tasks to the queue. It is called once at startup,
// before the pool begins consuming.
//
// Tasks stuck in processing belonged to a worker that died mid-attempt; they
// are reset to pending and re-enqueued. Tasks already pending are re-enqueued
// unconditionally: with the in-memory queue a restart loses every buffered
// message, and with a durable queue the duplicate delivery is absorbed by the
// claim transition.
func (p *Pool) Recover(ctx context.Context) error {
	orphaned, err := p.store.FindByStatus(ctx, domain.TaskStatusProcessing, 0)
	if err != nil {
		return fmt.Errorf("failed to find orphaned processing tasks: %w", err)
	}
	for _, task := range orphaned {
		p.rescue(ctx, task.ID, "processing")
	}

	pending, err := p.store.FindByStatus(ctx, domain.TaskStatusPending, 0)
	if err != nil {
		return fmt.Errorf("failed to find pending tasks: %w", err)
	}
	for _, task := range pending {
		if err := p.queue.Enqueue(ctx, queue.NewMessage(task.ID)); err != nil {
			p.logger.ErrorContext(ctx, "failed to re-enqueue pending task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		p.metrics.TaskRecovered()
	}

	if len(orphaned) > 0 || len(pending) > 0 {
		p.logger.InfoContext(ctx, "recovery sweep finished",
			slog.Int("orphaned", len(orphaned)),
			slog.Int("pending", len(pending)))
	}
	return nil
}

// monitorStuckTasks periodically rescues tasks that have sat in processing
// longer than the configured age. This covers workers that died without the
// whole process restarting, such as a single crashed worker binary in a
// multi-instance deployment.
func (p *Pool) monitorStuckTasks(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.StuckTaskCheckInterval)
	defer ticker.Stop()

	p.logger.Debug("stuck task monitor started",
		slog.Duration("interval", p.cfg.StuckTaskCheckInterval),
		slog.Duration("age", p.cfg.StuckTaskAge))

	p.reportQueueDepth(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepStuckTasks(ctx)
			p.reportQueueDepth(ctx)
		}
	}
}

// reportQueueDepth samples the queue backlog into the depth gauge when the
// driver can report it.
func (p *Pool) reportQueueDepth(ctx context.Context) {
	reporter, ok := p.queue.(queue.DepthReporter)
	if !ok {
		return
	}

	depth, err := reporter.Depth()
	if err != nil {
		p.logger.DebugContext(ctx, "failed to read queue depth",
			slog.String("error", err.Error()))
		return
	}
	p.metrics.SetQueueDepth(depth)
}

func (p *Pool) sweepStuckTasks(ctx context.Context) {
	stuck, err := p.store.FindByStatus(ctx, domain.TaskStatusProcessing, p.cfg.StuckTaskAge)
	if err != nil {
		p.logger.ErrorContext(ctx, "stuck task sweep failed",
			slog.String("error", err.Error()))
		return
	}

	for _, task := range stuck {
		p.logger.WarnContext(ctx, "rescuing stuck task",
			slog.String("task_id", task.ID.String()),
			slog.Time("updated_at", task.UpdatedAt))
		p.rescue(ctx, task.ID, "stuck")
	}
}

// rescue resets a processing task to pending and puts it back on the queue.
// A conflict means someone else settled the task first, which is fine.
func (p *Pool) rescue(ctx context.Context, taskID uuid.UUID, reason string) {
	_, err := p.store.Transition(ctx, taskID,
		[]domain.TaskStatus{domain.TaskStatusProcessing},
		domain.TaskStatusPending,
		store.TransitionOptions{},
	)
	if err != nil {
		if !store.IsConflictError(err) && !store.IsNotFoundError(err) {
			p.logger.ErrorContext(ctx, "failed to reset task",
				slog.String("task_id", taskID.String()),
				slog.String("reason", reason),
				slog.String("error", err.Error()))
		}
		return
	}

	if err := p.queue.Enqueue(ctx, queue.NewMessage(taskID)); err != nil {
		p.logger.ErrorContext(ctx, "failed to re-enqueue rescued task",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
		return
	}
	p.metrics.TaskRecovered()
}
