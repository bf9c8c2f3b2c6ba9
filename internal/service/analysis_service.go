// Package service provides the application-level use cases for submitting
// documents for analysis and reading back task state and results.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finsight/finsight-api/internal/domain"
	"github.com/finsight/finsight-api/internal/metrics"
	"github.com/finsight/finsight-api/internal/queue"
	"github.com/finsight/finsight-api/internal/store"
)

// DefaultQuery is used when a submission does not include a question.
const DefaultQuery = "Analyze this financial document for investment insights"

// DocumentIntake defines the intake operations the service needs: persisting
// an uploaded document and removing it again.
type DocumentIntake interface {
	// Store validates and persists an uploaded document, returning its
	// storage reference.
	Store(ctx context.Context, r io.Reader, declaredName string) (string, error)

	// Remove deletes a stored document. Removing an already-deleted
	// document is not an error.
	Remove(ref string) error
}

// Common sentinel errors for AnalysisService
var (
	// ErrTaskNotFound indicates that the requested task does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrTaskNotFound = errors.New("analysis task not found")

	// ErrTaskNotReady indicates the task exists but has not reached a
	// terminal state yet. API layer should map this to HTTP 202 Accepted.
	ErrTaskNotReady = errors.New("analysis task is still being processed")

	// ErrTaskActive indicates the task cannot be deleted because it is
	// still pending or processing. API layer should map this to HTTP 409.
	ErrTaskActive = errors.New("analysis task is still active")
)

// AnalysisService provides the task pipeline's application operations.
type AnalysisService interface {
	// SubmitAnalysis stores the uploaded document, creates a pending task
	// and enqueues it for processing. An empty query falls back to
	// DefaultQuery.
	SubmitAnalysis(ctx context.Context, document io.Reader, fileName, query string) (*domain.AnalysisTask, error)

	// GetTask retrieves the current state of a task.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error)

	// GetTaskResult retrieves a task once it has reached a terminal state.
	// Returns ErrTaskNotReady while the task is pending or processing.
	GetTaskResult(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error)

	// ListTasks returns tasks ordered newest first.
	ListTasks(ctx context.Context, offset, limit int) ([]*domain.AnalysisTask, error)

	// DeleteTask removes a terminal task and its stored document.
	// Returns ErrTaskActive when the task is still pending or processing.
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

// AnalysisServiceError wraps errors from the analysis service with context.
type AnalysisServiceError struct {
	// Operation is the operation that failed (e.g., "submit_analysis")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for AnalysisServiceError.
func (e *AnalysisServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("analysis service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *AnalysisServiceError) Unwrap() error {
	return e.Err
}

// NewAnalysisServiceError creates a new AnalysisServiceError.
// It returns known sentinel errors directly without wrapping.
func NewAnalysisServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrTaskNotReady) ||
		errors.Is(err, ErrTaskActive) {
		return err
	}

	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	return &AnalysisServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// analysisServiceImpl implements the AnalysisService interface
type analysisServiceImpl struct {
	taskStore store.TaskStore
	taskQueue queue.Queue
	intake    DocumentIntake
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewAnalysisService creates a new AnalysisService.
// It returns an error if any of the required dependencies are nil.
func NewAnalysisService(
	taskStore store.TaskStore,
	taskQueue queue.Queue,
	intake DocumentIntake,
	m *metrics.Metrics,
	logger *slog.Logger,
) (AnalysisService, error) {
	if taskStore == nil {
		return nil, &AnalysisServiceError{
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}
	if taskQueue == nil {
		return nil, &AnalysisServiceError{
			Operation: "create_service",
			Message:   "taskQueue cannot be nil",
		}
	}
	if intake == nil {
		return nil, &AnalysisServiceError{
			Operation: "create_service",
			Message:   "intake cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &analysisServiceImpl{
		taskStore: taskStore,
		taskQueue: taskQueue,
		intake:    intake,
		metrics:   m,
		logger:    logger.With("component", "analysis_service"),
	}, nil
}

// SubmitAnalysis runs the submission flow: persist document, create the
// pending task row, enqueue. The task row is the source of truth, so an
// enqueue failure marks the task failed rather than leaving it pending
// with no delivery behind it.
func (s *analysisServiceImpl) SubmitAnalysis(
	ctx context.Context,
	document io.Reader,
	fileName, query string,
) (*domain.AnalysisTask, error) {
	if query == "" {
		query = DefaultQuery
	}

	docPath, err := s.intake.Store(ctx, document, fileName)
	if err != nil {
		s.logger.Warn("document intake rejected upload",
			"error", err,
			"file_name", fileName)
		return nil, NewAnalysisServiceError("submit_analysis", "failed to store document", err)
	}

	task, err := domain.NewAnalysisTask(fileName, docPath, query)
	if err != nil {
		s.removeDocument(docPath)
		return nil, NewAnalysisServiceError("submit_analysis", "failed to create task", err)
	}

	if err := s.taskStore.Create(ctx, task); err != nil {
		s.logger.Error("failed to persist task",
			"error", err,
			"task_id", task.ID)
		s.removeDocument(docPath)
		return nil, NewAnalysisServiceError("submit_analysis", "failed to save task", err)
	}

	if err := s.taskQueue.Enqueue(ctx, queue.NewMessage(task.ID)); err != nil {
		s.logger.Error("failed to enqueue task",
			"error", err,
			"task_id", task.ID)

		// Settle the row so clients polling the task see a terminal state
		// instead of a forever-pending one.
		_, terr := s.taskStore.Transition(ctx, task.ID,
			[]domain.TaskStatus{domain.TaskStatusPending},
			domain.TaskStatusFailed,
			store.TransitionOptions{ErrorMessage: "failed to enqueue task for processing"},
		)
		if terr != nil {
			s.logger.Error("failed to mark unenqueued task as failed",
				"error", terr,
				"task_id", task.ID)
		}
		s.removeDocument(docPath)
		return nil, NewAnalysisServiceError("submit_analysis", "failed to enqueue task", err)
	}

	s.metrics.TaskSubmitted()
	s.logger.Info("analysis task submitted",
		"task_id", task.ID,
		"file_name", fileName)

	return task, nil
}

// GetTask retrieves a task by its ID.
func (s *analysisServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error) {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, NewAnalysisServiceError("get_task", "failed to retrieve task", err)
	}
	return task, nil
}

// GetTaskResult retrieves a task once it has settled.
func (s *analysisServiceImpl) GetTaskResult(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		return nil, ErrTaskNotReady
	}
	return task, nil
}

// ListTasks returns tasks ordered newest first.
func (s *analysisServiceImpl) ListTasks(ctx context.Context, offset, limit int) ([]*domain.AnalysisTask, error) {
	tasks, err := s.taskStore.List(ctx, offset, limit)
	if err != nil {
		return nil, NewAnalysisServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

// transactionalStore is implemented by stores that expose their database
// connection for multi-statement transactions.
type transactionalStore interface {
	DB() *sql.DB
}

// DeleteTask removes a settled task and its stored document. Active tasks
// are refused: deleting a row out from under a worker would turn its final
// transition into a spurious not-found. When the store is database-backed,
// the status check and delete run in one transaction so a task cannot be
// reclaimed between them.
func (s *analysisServiceImpl) DeleteTask(ctx context.Context, id uuid.UUID) error {
	var documentPath string

	deleteFn := func(ctx context.Context, taskStore store.TaskStore) error {
		task, err := taskStore.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				return ErrTaskNotFound
			}
			return NewAnalysisServiceError("delete_task", "failed to retrieve task", err)
		}
		if !task.Status.IsTerminal() {
			return ErrTaskActive
		}
		documentPath = task.DocumentPath

		if err := taskStore.Delete(ctx, id); err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				return ErrTaskNotFound
			}
			return NewAnalysisServiceError("delete_task", "failed to delete task", err)
		}
		return nil
	}

	var err error
	if txStore, ok := s.taskStore.(transactionalStore); ok && txStore.DB() != nil {
		err = store.RunInTransaction(ctx, txStore.DB(), func(ctx context.Context, tx *sql.Tx) error {
			return deleteFn(ctx, s.taskStore.WithTx(tx))
		})
	} else {
		err = deleteFn(ctx, s.taskStore)
	}
	if err != nil {
		return err
	}

	s.removeDocument(documentPath)
	s.logger.Info("analysis task deleted", "task_id", id)
	return nil
}

func (s *analysisServiceImpl) removeDocument(ref string) {
	if err := s.intake.Remove(ref); err != nil {
		s.logger.Warn("failed to remove stored document",
			"error", err,
			"path", ref)
	}
}
