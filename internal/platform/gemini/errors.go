package gemini

import "errors"

// Errors specific to the Gemini engine implementation. Callers should match
// on the analysis package sentinels these wrap.
var (
	// ErrNilDocument is returned when Analyze is called without a document
	ErrNilDocument = errors.New("document cannot be nil")

	// ErrAllRetriesFailed is returned when every API attempt failed
	ErrAllRetriesFailed = errors.New("all Gemini API attempts failed")
)
