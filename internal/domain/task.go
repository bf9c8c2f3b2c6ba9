package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of an analysis task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Common validation errors for AnalysisTask
var (
	ErrEmptyTaskID           = errors.New("task ID cannot be empty")
	ErrEmptyTaskDocumentPath = errors.New("task document path cannot be empty")
	ErrEmptyTaskFileName     = errors.New("task file name cannot be empty")
	ErrEmptyTaskQuery        = errors.New("task query cannot be empty")
	ErrInvalidTaskStatus     = errors.New("invalid task status")
)

// AnalysisTask represents one submitted document-analysis request and its
// lifecycle record. It is the single source of truth for client-visible
// status: the stored row, not any in-flight worker state, answers status
// and result queries.
type AnalysisTask struct {
	ID           uuid.UUID       `json:"id"`
	FileName     string          `json:"file_name"`
	DocumentPath string          `json:"document_path"`
	Query        string          `json:"query"`
	Status       TaskStatus      `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewAnalysisTask creates a new AnalysisTask for the given stored document and
// query. It generates a new UUID for the task ID, sets the status to pending,
// and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewAnalysisTask(fileName, documentPath, query string) (*AnalysisTask, error) {
	now := time.Now().UTC()
	task := &AnalysisTask{
		ID:           uuid.New(),
		FileName:     fileName,
		DocumentPath: documentPath,
		Query:        query,
		Status:       TaskStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the AnalysisTask has valid data.
// Returns an error if any field fails validation.
func (t *AnalysisTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.FileName == "" {
		return ErrEmptyTaskFileName
	}

	if t.DocumentPath == "" {
		return ErrEmptyTaskDocumentPath
	}

	if t.Query == "" {
		return ErrEmptyTaskQuery
	}

	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}

	return nil
}

// IsTerminal reports whether the task has reached a final state.
// Terminal states are sticky: no further transitions occur.
func (t *AnalysisTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsValid checks if the given status is a valid TaskStatus.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is completed or failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether the status may move forward to next.
// Transitions form a DAG: pending -> processing -> {completed, failed}.
// processing -> pending is allowed only as part of a retry requeue.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed || next == TaskStatusPending
	default:
		return false
	}
}
