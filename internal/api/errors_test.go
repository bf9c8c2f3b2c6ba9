package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsight/finsight-api/internal/intake"
	"github.com/finsight/finsight-api/internal/service"
	"github.com/finsight/finsight-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"task not found", service.ErrTaskNotFound, http.StatusNotFound},
		{"store task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"task active", service.ErrTaskActive, http.StatusConflict},
		{"transition conflict", store.ErrConflict, http.StatusConflict},
		{"task not ready", service.ErrTaskNotReady, http.StatusAccepted},
		{"document too large", intake.ErrDocumentTooLarge, http.StatusRequestEntityTooLarge},
		{"unsupported format", intake.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{"empty document", intake.ErrEmptyDocument, http.StatusBadRequest},
		{"wrapped intake error", fmt.Errorf("submit: %w", intake.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{"unknown error", errors.New("something broke"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	// Internal details must never reach the client.
	internal := errors.New("pq: connection to 10.0.0.5:5432 refused")
	msg := GetSafeErrorMessage(internal)
	assert.Equal(t, "An unexpected error occurred", msg)
	assert.NotContains(t, msg, "10.0.0.5")

	assert.Equal(t, "Task not found", GetSafeErrorMessage(service.ErrTaskNotFound))
	assert.Equal(t,
		"Unsupported document format, only PDF is accepted",
		GetSafeErrorMessage(fmt.Errorf("wrapped: %w", intake.ErrUnsupportedFormat)))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}
