package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/finsight-api/internal/domain"
)

// TransitionOptions carries the optional mutations applied alongside a status
// transition. Exactly one of Result/ErrorMessage is expected to be set when
// moving to a terminal status, and neither otherwise.
type TransitionOptions struct {
	// Result is the opaque analysis payload, set only on the transition to
	// completed.
	Result json.RawMessage

	// ErrorMessage is the human-readable failure detail, set only on the
	// transition to failed.
	ErrorMessage string

	// IncrementAttempts bumps the task's attempt counter atomically with the
	// transition. Workers set this when claiming a task for execution.
	IncrementAttempts bool
}

// TaskStore defines the interface for analysis task persistence.
// It is the single source of truth for task state: workers request mutations
// through Transition rather than holding private copies of task rows.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task to the store with its initial pending status.
	// It handles domain validation internally.
	// Returns ErrDuplicate if the task ID has already been issued.
	Create(ctx context.Context, task *domain.AnalysisTask) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	// Safe to call concurrently with in-flight mutation; returns the most
	// recently committed state.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisTask, error)

	// Transition atomically moves the task to the given status only if its
	// current status is a member of from. This is the integrity-critical
	// primitive: two workers racing on a redelivered message cannot both
	// succeed, the loser observes ErrConflict and must discard its delivery.
	// Returns ErrTaskNotFound if the task does not exist and ErrConflict if
	// the current status is outside the expected set.
	Transition(
		ctx context.Context,
		id uuid.UUID,
		from []domain.TaskStatus,
		to domain.TaskStatus,
		opts TransitionOptions,
	) (*domain.AnalysisTask, error)

	// List retrieves tasks ordered by created_at descending, with the task ID
	// as a stable tiebreaker so pages never skip or duplicate rows under
	// concurrent inserts.
	List(ctx context.Context, offset, limit int) ([]*domain.AnalysisTask, error)

	// FindByStatus retrieves tasks in the given status, oldest first. When
	// olderThan is positive only tasks whose updated_at is older than that
	// duration are returned. Used by worker recovery and stuck-task sweeps.
	FindByStatus(
		ctx context.Context,
		status domain.TaskStatus,
		olderThan time.Duration,
	) ([]*domain.AnalysisTask, error)

	// Delete removes a task record. Returns ErrTaskNotFound if the task does
	// not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
