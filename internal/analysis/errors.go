package analysis

import "errors"

// Common errors returned by the analysis package
var (
	// ErrAnalysisFailed is returned when document analysis fails for any general reason
	ErrAnalysisFailed = errors.New("failed to analyze document")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during document analysis")

	// ErrInvalidConfig is returned when the engine configuration is invalid
	ErrInvalidConfig = errors.New("invalid analysis engine configuration")

	// ErrEmptyQuery is returned when the analysis query is empty
	ErrEmptyQuery = errors.New("analysis query cannot be empty")

	// ErrDocumentUnreadable is returned when a stored document cannot be loaded
	ErrDocumentUnreadable = errors.New("stored document cannot be read")
)
