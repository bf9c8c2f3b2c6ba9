package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/finsight/finsight-api/internal/analysis"
	"github.com/finsight/finsight-api/internal/config"
	"github.com/finsight/finsight-api/internal/intake"
	"github.com/finsight/finsight-api/internal/metrics"
	"github.com/finsight/finsight-api/internal/platform/gemini"
	"github.com/finsight/finsight-api/internal/platform/logger"
	"github.com/finsight/finsight-api/internal/platform/postgres"
	"github.com/finsight/finsight-api/internal/queue"
	"github.com/finsight/finsight-api/internal/service"
	"github.com/finsight/finsight-api/internal/worker"
)

// application holds the wired dependency graph for the server binary.
type application struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	taskQueue queue.Queue
	pool      *worker.Pool
	router    http.Handler
}

// newApplication loads configuration and wires every component: database,
// migrations, queue, intake, analysis engine, worker pool, service and
// router. With migrateOnly set, wiring stops after the migrations.
func newApplication(ctx context.Context, migrateOnly bool) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := setupDatabase(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	app := &application{cfg: cfg, logger: appLogger, db: db}
	if migrateOnly {
		return app, nil
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	taskStore := postgres.NewPostgresTaskStore(db, appLogger)

	taskQueue, err := buildQueue(cfg.Queue, appLogger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.taskQueue = taskQueue

	documentIntake, err := intake.New(cfg.Intake.DataDir, cfg.Intake.MaxUploadBytes, appLogger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize document intake: %w", err)
	}

	engine, err := gemini.NewEngine(ctx, appLogger, cfg.LLM)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize analysis engine: %w", err)
	}
	loader := analysis.NewFileLoader(appLogger)

	analysisService, err := service.NewAnalysisService(taskStore, taskQueue, documentIntake, m, appLogger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize analysis service: %w", err)
	}

	var cleaner worker.DocumentCleaner
	if cfg.Intake.CleanupAfterAnalysis {
		cleaner = documentIntake
	}
	app.pool = worker.NewPool(taskQueue, taskStore, engine, loader, cleaner, m, appLogger, worker.Config{
		Count:                  cfg.Worker.Count,
		MaxAttempts:            cfg.Worker.MaxAttempts,
		StuckTaskAge:           cfg.Worker.StuckTaskAge,
		StuckTaskCheckInterval: cfg.Worker.StuckTaskCheckInterval,
		CleanupDocuments:       cfg.Intake.CleanupAfterAnalysis,
	})

	app.router = buildRouter(analysisService, cfg.Server)

	slog.Info("application initialized",
		"port", cfg.Server.Port,
		"queue_driver", cfg.Queue.Driver,
		"workers", cfg.Worker.Count)

	return app, nil
}

// buildQueue constructs the configured queue driver.
func buildQueue(cfg config.QueueConfig, appLogger *slog.Logger) (queue.Queue, error) {
	switch cfg.Driver {
	case config.QueueDriverNATS:
		q, err := queue.NewNATSQueue(cfg, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return q, nil
	case config.QueueDriverMemory:
		return queue.NewMemoryQueue(cfg.BufferSize, cfg.VisibilityTimeout, appLogger), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

// Close releases the application's resources in reverse wiring order.
func (a *application) Close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.taskQueue != nil {
		if err := a.taskQueue.Close(); err != nil {
			a.logger.Warn("failed to close task queue", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
}
