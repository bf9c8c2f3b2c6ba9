package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisTask(t *testing.T) {
	t.Parallel()

	t.Run("valid task", func(t *testing.T) {
		t.Parallel()

		task, err := NewAnalysisTask("report.pdf", "data/analysis_abc.pdf", "summarize risk")
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, task.ID)
		assert.Equal(t, "report.pdf", task.FileName)
		assert.Equal(t, "data/analysis_abc.pdf", task.DocumentPath)
		assert.Equal(t, "summarize risk", task.Query)
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.Zero(t, task.AttemptCount)
		assert.Nil(t, task.Result)
		assert.Empty(t, task.ErrorMessage)
		assert.WithinDuration(t, time.Now().UTC(), task.CreatedAt, time.Second)
		assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	})

	t.Run("unique IDs across tasks", func(t *testing.T) {
		t.Parallel()

		t1, err := NewAnalysisTask("a.pdf", "data/a.pdf", "q")
		require.NoError(t, err)
		t2, err := NewAnalysisTask("a.pdf", "data/a.pdf", "q")
		require.NoError(t, err)

		assert.NotEqual(t, t1.ID, t2.ID)
	})

	t.Run("validation failures", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			name     string
			fileName string
			docPath  string
			query    string
			wantErr  error
		}{
			{"empty file name", "", "data/a.pdf", "q", ErrEmptyTaskFileName},
			{"empty document path", "a.pdf", "", "q", ErrEmptyTaskDocumentPath},
			{"empty query", "a.pdf", "data/a.pdf", "", ErrEmptyTaskQuery},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				task, err := NewAnalysisTask(tc.fileName, tc.docPath, tc.query)
				assert.Nil(t, task)
				assert.ErrorIs(t, err, tc.wantErr)
			})
		}
	})
}

func TestAnalysisTask_Validate(t *testing.T) {
	t.Parallel()

	task, err := NewAnalysisTask("report.pdf", "data/analysis_abc.pdf", "q")
	require.NoError(t, err)

	t.Run("nil ID rejected", func(t *testing.T) {
		bad := *task
		bad.ID = uuid.Nil
		assert.ErrorIs(t, bad.Validate(), ErrEmptyTaskID)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		bad := *task
		bad.Status = TaskStatus("queued")
		assert.ErrorIs(t, bad.Validate(), ErrInvalidTaskStatus)
	})
}

func TestTaskStatus_IsValid(t *testing.T) {
	t.Parallel()

	valid := []TaskStatus{TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "status %q should be valid", s)
	}

	assert.False(t, TaskStatus("").IsValid())
	assert.False(t, TaskStatus("done").IsValid())
}

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskStatusPending, TaskStatusProcessing, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusPending, TaskStatusFailed, false},
		{TaskStatusProcessing, TaskStatusCompleted, true},
		{TaskStatusProcessing, TaskStatusFailed, true},
		// retry requeue
		{TaskStatusProcessing, TaskStatusPending, true},
		// terminal states are sticky
		{TaskStatusCompleted, TaskStatusProcessing, false},
		{TaskStatusCompleted, TaskStatusPending, false},
		{TaskStatusFailed, TaskStatusProcessing, false},
		{TaskStatusFailed, TaskStatusPending, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
}
