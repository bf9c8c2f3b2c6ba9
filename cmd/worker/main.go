// Package main implements a standalone worker binary that consumes analysis
// tasks from a NATS JetStream queue. It lets the worker fleet scale
// independently of the API server; the in-memory queue driver is refused
// here since its messages never leave the server process.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/finsight/finsight-api/internal/analysis"
	"github.com/finsight/finsight-api/internal/config"
	"github.com/finsight/finsight-api/internal/intake"
	"github.com/finsight/finsight-api/internal/metrics"
	"github.com/finsight/finsight-api/internal/platform/gemini"
	"github.com/finsight/finsight-api/internal/platform/logger"
	"github.com/finsight/finsight-api/internal/queue"
	"github.com/finsight/finsight-api/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if cfg.Queue.Driver != config.QueueDriverNATS {
		return fmt.Errorf("worker binary requires queue.driver=nats, got %q", cfg.Queue.Driver)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	taskQueue, err := queue.NewNATSQueue(cfg.Queue, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer func() { _ = taskQueue.Close() }()

	documentIntake, err := intake.New(cfg.Intake.DataDir, cfg.Intake.MaxUploadBytes, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize document intake: %w", err)
	}

	engine, err := gemini.NewEngine(ctx, appLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis engine: %w", err)
	}

	taskStore := newTaskStore(db, appLogger)
	m := metrics.New(prometheus.DefaultRegisterer)

	var cleaner worker.DocumentCleaner
	if cfg.Intake.CleanupAfterAnalysis {
		cleaner = documentIntake
	}
	pool := worker.NewPool(taskQueue, taskStore, engine, analysis.NewFileLoader(appLogger), cleaner, m, appLogger, worker.Config{
		Count:                  cfg.Worker.Count,
		MaxAttempts:            cfg.Worker.MaxAttempts,
		StuckTaskAge:           cfg.Worker.StuckTaskAge,
		StuckTaskCheckInterval: cfg.Worker.StuckTaskCheckInterval,
		CleanupDocuments:       cfg.Intake.CleanupAfterAnalysis,
	})

	// Recovery on the dedicated worker re-enqueues into the shared durable
	// stream; duplicate deliveries are absorbed by the claim transition.
	if err := pool.Recover(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	pool.Start(ctx)
	slog.Info("worker started",
		"workers", cfg.Worker.Count,
		"stream", cfg.Queue.NATSStream)

	<-ctx.Done()
	slog.Info("shutting down")
	pool.Stop()
	return nil
}
