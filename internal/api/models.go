package api

import (
	"encoding/json"
	"time"

	"github.com/finsight/finsight-api/internal/domain"
)

// SubmitAnalysisRequest is the validated form of a POST /analyze submission.
// The document bytes travel separately as the multipart file body.
type SubmitAnalysisRequest struct {
	FileName string `validate:"required,max=255"`
	Query    string `validate:"max=2000"`
}

// TaskResponse represents the API view of an analysis task.
type TaskResponse struct {
	ID           string          `json:"id"`
	FileName     string          `json:"file_name"`
	Query        string          `json:"query"`
	Status       string          `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// TaskListResponse is the paginated envelope for task listings.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
	Count  int            `json:"count"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// taskToResponse converts a domain.AnalysisTask to a TaskResponse.
func taskToResponse(task *domain.AnalysisTask) TaskResponse {
	return TaskResponse{
		ID:           task.ID.String(),
		FileName:     task.FileName,
		Query:        task.Query,
		Status:       string(task.Status),
		AttemptCount: task.AttemptCount,
		Result:       task.Result,
		Error:        task.ErrorMessage,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		CompletedAt:  task.CompletedAt,
	}
}
