package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/finsight/finsight-api/internal/analysis"
	"github.com/finsight/finsight-api/internal/metrics"
	"github.com/finsight/finsight-api/internal/queue"
	"github.com/finsight/finsight-api/internal/store"
)

// DocumentCleaner removes stored documents once a task reaches a terminal
// state. Implemented by the intake layer.
type DocumentCleaner interface {
	Remove(ref string) error
}

// Config holds the pool's tunables.
type Config struct {
	// Count is the number of concurrent worker goroutines.
	Count int

	// MaxAttempts is the total number of execution attempts a task is
	// allowed before it is marked failed.
	MaxAttempts int

	// StuckTaskAge is how long a task may sit in the processing state before
	// the monitor considers it orphaned.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval is how often the monitor sweeps for stuck tasks.
	StuckTaskCheckInterval time.Duration

	// CleanupDocuments removes the stored document once its task reaches a
	// terminal state.
	CleanupDocuments bool
}

// Pool runs a fixed set of workers against the task queue.
type Pool struct {
	queue   queue.Queue
	store   store.TaskStore
	engine  analysis.Engine
	loader  analysis.Loader
	cleaner DocumentCleaner
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool wires a worker pool. cleaner and m may be nil; cleanup and metrics
// are then skipped.
func NewPool(
	q queue.Queue,
	taskStore store.TaskStore,
	engine analysis.Engine,
	loader analysis.Loader,
	cleaner DocumentCleaner,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Pool{
		queue:   q,
		store:   taskStore,
		engine:  engine,
		loader:  loader,
		cleaner: cleaner,
		metrics: m,
		logger:  logger.With(slog.String("component", "worker_pool")),
		cfg:     cfg,
	}
}

// Start launches the workers and the stuck-task monitor. Workers run until
// Stop is called or the parent context is canceled.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)

		p.logger.InfoContext(ctx, "starting worker pool",
			slog.Int("workers", p.cfg.Count),
			slog.Int("max_attempts", p.cfg.MaxAttempts))

		for i := 0; i < p.cfg.Count; i++ {
			p.wg.Add(1)
			go p.run(ctx, i)
		}

		if p.cfg.StuckTaskCheckInterval > 0 && p.cfg.StuckTaskAge > 0 {
			p.wg.Add(1)
			go p.monitorStuckTasks(ctx)
		}
	})
}

// Stop signals all workers to finish their current task and waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

// run is a single worker loop: dequeue, process, repeat.
func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With(slog.Int("worker_id", id))
	logger.DebugContext(ctx, "worker started")

	for {
		delivery, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, queue.ErrQueueClosed) {
				logger.DebugContext(ctx, "worker shutting down")
				return
			}
			logger.ErrorContext(ctx, "dequeue failed",
				slog.String("error", err.Error()))
			continue
		}

		p.processDelivery(ctx, logger, delivery)
	}
}
