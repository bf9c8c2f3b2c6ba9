package api

import (
	"errors"
	"net/http"

	"github.com/finsight/finsight-api/internal/domain"
	"github.com/finsight/finsight-api/internal/intake"
	"github.com/finsight/finsight-api/internal/service"
	"github.com/finsight/finsight-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrTaskActive),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict

	// Still processing
	case errors.Is(err, service.ErrTaskNotReady):
		return http.StatusAccepted

	// Upload validation errors
	case errors.Is(err, intake.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, intake.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, intake.ErrEmptyDocument),
		errors.Is(err, intake.ErrValidation),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, service.ErrTaskActive):
		return "Task is still being processed and cannot be deleted"

	case errors.Is(err, service.ErrTaskNotReady):
		return "Task result is not ready yet"

	case errors.Is(err, intake.ErrDocumentTooLarge):
		return "Uploaded document exceeds the size limit"

	case errors.Is(err, intake.ErrUnsupportedFormat):
		return "Unsupported document format, only PDF is accepted"

	case errors.Is(err, intake.ErrEmptyDocument):
		return "Uploaded document is empty"

	case errors.Is(err, intake.ErrValidation),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}
