package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finsight-api/internal/domain"
	"github.com/finsight/finsight-api/internal/intake"
	"github.com/finsight/finsight-api/internal/service"
)

// stubAnalysisService returns canned values per method.
type stubAnalysisService struct {
	submitTask *domain.AnalysisTask
	submitErr  error
	getTask    *domain.AnalysisTask
	getErr     error
	resultTask *domain.AnalysisTask
	resultErr  error
	listTasks  []*domain.AnalysisTask
	listErr    error
	deleteErr  error

	lastFileName string
	lastQuery    string
	lastOffset   int
	lastLimit    int
}

var _ service.AnalysisService = (*stubAnalysisService)(nil)

func (s *stubAnalysisService) SubmitAnalysis(_ context.Context, _ io.Reader, fileName, query string) (*domain.AnalysisTask, error) {
	s.lastFileName = fileName
	s.lastQuery = query
	return s.submitTask, s.submitErr
}

func (s *stubAnalysisService) GetTask(context.Context, uuid.UUID) (*domain.AnalysisTask, error) {
	return s.getTask, s.getErr
}

func (s *stubAnalysisService) GetTaskResult(context.Context, uuid.UUID) (*domain.AnalysisTask, error) {
	return s.resultTask, s.resultErr
}

func (s *stubAnalysisService) ListTasks(_ context.Context, offset, limit int) ([]*domain.AnalysisTask, error) {
	s.lastOffset = offset
	s.lastLimit = limit
	return s.listTasks, s.listErr
}

func (s *stubAnalysisService) DeleteTask(context.Context, uuid.UUID) error {
	return s.deleteErr
}

func newTestRouter(svc service.AnalysisService) http.Handler {
	h := NewAnalysisHandler(svc)
	r := chi.NewRouter()
	r.Post("/analyze", h.SubmitAnalysis)
	r.Get("/task/{id}", h.GetTask)
	r.Get("/task/{id}/result", h.GetTaskResult)
	r.Get("/results", h.ListTasks)
	r.Delete("/task/{id}", h.DeleteTask)
	r.Get("/health", h.Health)
	return r
}

func newTask(t *testing.T, status domain.TaskStatus) *domain.AnalysisTask {
	t.Helper()
	task, err := domain.NewAnalysisTask("report.pdf", "/data/report.pdf", "How risky?")
	require.NoError(t, err)
	task.Status = status
	return task
}

// multipartUpload builds a multipart body with a file part and optional query.
func multipartUpload(t *testing.T, fileName, query string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4\n%%EOF\n"))
	require.NoError(t, err)

	if query != "" {
		require.NoError(t, writer.WriteField("query", query))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmitAnalysisHandler(t *testing.T) {
	t.Parallel()

	t.Run("accepts a valid upload with 202", func(t *testing.T) {
		t.Parallel()

		svc := &stubAnalysisService{submitTask: newTask(t, domain.TaskStatusPending)}
		router := newTestRouter(svc)

		body, contentType := multipartUpload(t, "q3.pdf", "Is revenue growing?")
		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "q3.pdf", svc.lastFileName)
		assert.Equal(t, "Is revenue growing?", svc.lastQuery)

		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(domain.TaskStatusPending), resp.Status)
		assert.NotEmpty(t, resp.ID)
	})

	t.Run("rejects a request without a file part", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubAnalysisService{})

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		require.NoError(t, writer.WriteField("query", "no file here"))
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an oversized query field", func(t *testing.T) {
		t.Parallel()

		svc := &stubAnalysisService{submitTask: newTask(t, domain.TaskStatusPending)}
		router := newTestRouter(svc)

		body, contentType := multipartUpload(t, "q3.pdf", strings.Repeat("x", 2001))
		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.lastFileName, "service must not be called for an invalid request")
	})

	t.Run("maps unsupported format to 415", func(t *testing.T) {
		t.Parallel()

		svc := &stubAnalysisService{
			submitErr: fmt.Errorf("intake: %w", intake.ErrUnsupportedFormat),
		}
		router := newTestRouter(svc)

		body, contentType := multipartUpload(t, "notes.txt", "")
		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp["error"], "PDF")
	})

	t.Run("maps oversize upload to 413", func(t *testing.T) {
		t.Parallel()

		svc := &stubAnalysisService{
			submitErr: fmt.Errorf("intake: %w", intake.ErrDocumentTooLarge),
		}
		router := newTestRouter(svc)

		body, contentType := multipartUpload(t, "huge.pdf", "")
		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestGetTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("returns the task", func(t *testing.T) {
		t.Parallel()

		task := newTask(t, domain.TaskStatusProcessing)
		router := newTestRouter(&stubAnalysisService{getTask: task})

		req := httptest.NewRequest(http.MethodGet, "/task/"+task.ID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, task.ID.String(), resp.ID)
		assert.Equal(t, "processing", resp.Status)
	})

	t.Run("rejects a malformed ID", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubAnalysisService{})
		req := httptest.NewRequest(http.MethodGet, "/task/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps unknown task to 404", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubAnalysisService{getErr: service.ErrTaskNotFound})
		req := httptest.NewRequest(http.MethodGet, "/task/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetTaskResultHandler(t *testing.T) {
	t.Parallel()

	t.Run("returns 202 with current status while processing", func(t *testing.T) {
		t.Parallel()

		task := newTask(t, domain.TaskStatusProcessing)
		router := newTestRouter(&stubAnalysisService{
			resultErr: service.ErrTaskNotReady,
			getTask:   task,
		})

		req := httptest.NewRequest(http.MethodGet, "/task/"+task.ID.String()+"/result", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "processing", resp.Status)
	})

	t.Run("returns the result once completed", func(t *testing.T) {
		t.Parallel()

		task := newTask(t, domain.TaskStatusCompleted)
		task.Result = []byte(`{"analysis":"solid","metrics":{}}`)
		router := newTestRouter(&stubAnalysisService{resultTask: task})

		req := httptest.NewRequest(http.MethodGet, "/task/"+task.ID.String()+"/result", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "completed", resp.Status)
		assert.JSONEq(t, `{"analysis":"solid","metrics":{}}`, string(resp.Result))
	})

	t.Run("includes the failure message for a failed task", func(t *testing.T) {
		t.Parallel()

		task := newTask(t, domain.TaskStatusFailed)
		task.ErrorMessage = "analysis failed after 3 attempts"
		router := newTestRouter(&stubAnalysisService{resultTask: task})

		req := httptest.NewRequest(http.MethodGet, "/task/"+task.ID.String()+"/result", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "failed", resp.Status)
		assert.Equal(t, "analysis failed after 3 attempts", resp.Error)
	})
}

func TestListTasksHandler(t *testing.T) {
	t.Parallel()

	t.Run("passes pagination parameters through", func(t *testing.T) {
		t.Parallel()

		svc := &stubAnalysisService{
			listTasks: []*domain.AnalysisTask{
				newTask(t, domain.TaskStatusCompleted),
				newTask(t, domain.TaskStatusPending),
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/results?offset=5&limit=20", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, svc.lastOffset)
		assert.Equal(t, 20, svc.lastLimit)

		var resp TaskListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.Len(t, resp.Tasks, 2)
	})

	t.Run("rejects a negative offset", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubAnalysisService{})
		req := httptest.NewRequest(http.MethodGet, "/results?offset=-1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a non-numeric limit", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubAnalysisService{})
		req := httptest.NewRequest(http.MethodGet, "/results?limit=ten", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("deletes a settled task with 204", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubAnalysisService{})
		req := httptest.NewRequest(http.MethodDelete, "/task/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("maps an active task to 409", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubAnalysisService{deleteErr: service.ErrTaskActive})
		req := httptest.NewRequest(http.MethodDelete, "/task/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubAnalysisService{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
