package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/finsight-api/internal/domain"
	"github.com/finsight/finsight-api/internal/platform/logger"
	"github.com/finsight/finsight-api/internal/store"
)

// taskColumns is the column list shared by every query that scans a full task row.
const taskColumns = `id, file_name, document_path, query, status, result, error_message,
		attempt_count, created_at, updated_at, completed_at`

// Default and maximum page sizes for List.
const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	dbConn *sql.DB
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	conn, _ := db.(*sql.DB)
	return &PostgresTaskStore{
		db:     db,
		dbConn: conn,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// DB returns the underlying database connection, or nil when the store is
// bound to a transaction. Callers use it with store.RunInTransaction.
func (s *PostgresTaskStore) DB() *sql.DB {
	return s.dbConn
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create
// It saves a new task to the database, handling domain validation.
// Returns validation errors from the domain AnalysisTask if data is invalid.
// Returns store.ErrDuplicate if the task ID has already been issued.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.AnalysisTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO tasks (id, file_name, document_path, query, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.FileName,
		task.DocumentPath,
		task.Query,
		task.Status,
		task.AttemptCount,
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	log.Info("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("file_name", task.FileName),
		slog.String("status", string(task.Status)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// It retrieves a task by its unique ID.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}

		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}

	return task, nil
}

// Transition implements store.TaskStore.Transition
// It atomically moves the task to the target status only if its current status
// is a member of the expected set, using a single conditional UPDATE. This is
// what makes concurrent workers safe: of two workers racing on a redelivered
// message, exactly one UPDATE matches a row, the other observes ErrConflict
// and mutates nothing.
func (s *PostgresTaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from []domain.TaskStatus,
	to domain.TaskStatus,
	opts store.TransitionOptions,
) (*domain.AnalysisTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(from) == 0 {
		return nil, store.NewStoreError("task", "transition", "expected status set cannot be empty", nil)
	}
	if !to.IsValid() {
		return nil, domain.ErrInvalidTaskStatus
	}

	fromStatuses := make([]string, len(from))
	for i, st := range from {
		fromStatuses[i] = string(st)
	}

	attemptIncrement := 0
	if opts.IncrementAttempts {
		attemptIncrement = 1
	}

	var result any
	if len(opts.Result) > 0 {
		result = []byte(opts.Result)
	}

	now := time.Now().UTC()

	query := `
		UPDATE tasks
		SET status = $2,
		    result = COALESCE($3, result),
		    error_message = CASE WHEN $4 <> '' THEN $4 ELSE error_message END,
		    attempt_count = attempt_count + $5,
		    updated_at = $6,
		    completed_at = CASE WHEN $7 THEN $6 ELSE completed_at END
		WHERE id = $1 AND status = ANY($8)
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(
		ctx,
		query,
		id,
		to,
		result,
		opts.ErrorMessage,
		attemptIncrement,
		now,
		to.IsTerminal(),
		fromStatuses,
	))

	if err == nil {
		log.Debug("task transitioned",
			slog.String("task_id", id.String()),
			slog.String("to_status", string(to)),
			slog.Int("attempt_count", task.AttemptCount))
		return task, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to transition task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("to_status", string(to)))
		return nil, MapError(err)
	}

	// Zero rows matched: either the task does not exist, or its current
	// status is outside the expected set (a concurrent transition won).
	var exists bool
	checkErr := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists)
	if checkErr != nil {
		log.Error("failed to check task existence after transition miss",
			slog.String("error", checkErr.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(checkErr)
	}

	if !exists {
		return nil, store.ErrTaskNotFound
	}

	log.Debug("task transition conflict",
		slog.String("task_id", id.String()),
		slog.String("to_status", string(to)))
	return nil, fmt.Errorf("%w: task %s is not in any of the expected states", store.ErrConflict, id)
}

// List implements store.TaskStore.List
// It retrieves tasks ordered by created_at descending with the id as a stable
// tiebreaker, so a page fetched at a given offset never skips or duplicates
// rows already committed before the read began.
func (s *PostgresTaskStore) List(ctx context.Context, offset, limit int) ([]*domain.AnalysisTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		log.Error("failed to list tasks",
			slog.String("error", err.Error()),
			slog.Int("offset", offset),
			slog.Int("limit", limit))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// FindByStatus implements store.TaskStore.FindByStatus
// It retrieves tasks in the given status, oldest first, optionally restricted
// to tasks whose updated_at is older than the supplied duration. Used by the
// worker pool's startup recovery and stuck-task sweeps.
func (s *PostgresTaskStore) FindByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Duration,
) ([]*domain.AnalysisTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		query string
		args  []any
	)

	if olderThan > 0 {
		query = `
			SELECT ` + taskColumns + `
			FROM tasks
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC, id ASC
		`
		args = []any{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = `
			SELECT ` + taskColumns + `
			FROM tasks
			WHERE status = $1
			ORDER BY created_at ASC, id ASC
		`
		args = []any{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to find tasks by status",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// Delete implements store.TaskStore.Delete
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %v", store.ErrDeleteFailed, err)
	}

	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	log.Info("task deleted", slog.String("task_id", id.String()))
	return nil
}

// WithTx implements store.TaskStore.WithTx
// It returns a new store instance bound to the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		dbConn: s.dbConn,
		logger: s.logger,
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask maps one task row onto a domain.AnalysisTask.
func scanTask(row rowScanner) (*domain.AnalysisTask, error) {
	var (
		task         domain.AnalysisTask
		status       string
		result       []byte
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.FileName,
		&task.DocumentPath,
		&task.Query,
		&status,
		&result,
		&errorMessage,
		&task.AttemptCount,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.Result = result
	task.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}

	return &task, nil
}

// collectTasks drains rows into a task slice.
func collectTasks(rows *sql.Rows) ([]*domain.AnalysisTask, error) {
	var tasks []*domain.AnalysisTask

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}
