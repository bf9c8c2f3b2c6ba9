package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finsight/finsight-api/internal/api/shared"
	"github.com/finsight/finsight-api/internal/service"
)

// maxMultipartMemory caps how much of a multipart upload is buffered in
// memory before spilling to temp files.
const maxMultipartMemory = 8 << 20 // 8 MiB

// AnalysisHandler handles analysis task HTTP requests
type AnalysisHandler struct {
	analysisService service.AnalysisService
}

// NewAnalysisHandler creates a new AnalysisHandler
func NewAnalysisHandler(analysisService service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
	}
}

// SubmitAnalysis handles POST /analyze requests. The request is a multipart
// form with a "file" part holding the document and an optional "query" field.
func (h *AnalysisHandler) SubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Request must be multipart/form-data with a file part")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing file upload in 'file' field")
		return
	}
	defer func() { _ = file.Close() }()

	req := SubmitAnalysisRequest{
		FileName: header.Filename,
		Query:    r.FormValue("query"),
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid analysis request")
		return
	}

	task, err := h.analysisService.SubmitAnalysis(r.Context(), file, req.FileName, req.Query)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	// 202: processing happens asynchronously, poll /task/{id} for progress.
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(task))
}

// GetTask handles GET /task/{id} requests.
func (h *AnalysisHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDFromRequest(w, r)
	if !ok {
		return
	}

	task, err := h.analysisService.GetTask(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// GetTaskResult handles GET /task/{id}/result requests. While the task is
// still pending or processing it responds 202 with the current status, so
// clients can poll this endpoint alone.
func (h *AnalysisHandler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDFromRequest(w, r)
	if !ok {
		return
	}

	task, err := h.analysisService.GetTaskResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotReady) {
			current, gerr := h.analysisService.GetTask(r.Context(), id)
			if gerr == nil {
				shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(current))
				return
			}
		}
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListTasks handles GET /results requests with optional offset and limit
// query parameters.
func (h *AnalysisHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid offset parameter")
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	tasks, err := h.analysisService.ListTasks(r.Context(), offset, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, taskToResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks:  responses,
		Offset: offset,
		Limit:  limit,
		Count:  len(responses),
	})
}

// DeleteTask handles DELETE /task/{id} requests. Only settled tasks can be
// deleted; active ones respond 409.
func (h *AnalysisHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.analysisService.DeleteTask(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health requests.
func (h *AnalysisHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

// taskIDFromRequest extracts and parses the {id} URL parameter. It writes a
// 400 response and returns false when the ID is not a valid UUID.
func (h *AnalysisHandler) taskIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam reads a non-negative integer query parameter, returning
// fallback when the parameter is absent.
func parseIntParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.New("invalid integer parameter")
	}
	return value, nil
}
