package analysis

import (
	"context"
	"strings"
)

// Document is an in-memory representation of a stored document, ready to be
// sent to an analysis engine.
type Document struct {
	// Name is the original file name the document was submitted under.
	Name string

	// MIMEType is the detected media type of the document content.
	MIMEType string

	// Data is the raw document content.
	Data []byte
}

// Metrics holds the structured financial figures extracted from a document.
// Pointer fields are nil when the model could not determine a value from the
// document content.
type Metrics struct {
	// Revenue is the reported revenue, in the document's currency.
	Revenue *float64 `json:"revenue"`

	// ProfitMargin is the net profit margin as a fraction (0.15 = 15%).
	ProfitMargin *float64 `json:"profit_margin"`

	// DebtRatio is total debt divided by total assets.
	DebtRatio *float64 `json:"debt_ratio"`

	// PERatio is the price-to-earnings ratio.
	PERatio *float64 `json:"pe_ratio"`

	// Recommendation is the model's investment recommendation,
	// one of "buy", "hold" or "sell".
	Recommendation string `json:"recommendation"`

	// RiskLevel is the model's risk assessment, one of "low", "medium" or "high".
	RiskLevel string `json:"risk_level"`
}

// Report is the result of analyzing a single document against a query.
type Report struct {
	// Analysis is the model's narrative answer to the query.
	Analysis string `json:"analysis"`

	// Metrics holds the structured figures extracted alongside the narrative.
	Metrics Metrics `json:"metrics"`
}

// Validate checks that a report returned by an engine is usable.
func (r *Report) Validate() error {
	if strings.TrimSpace(r.Analysis) == "" {
		return ErrInvalidResponse
	}
	return nil
}

// Engine defines the interface for analyzing documents with an AI model.
// This interface serves as a boundary between the application core and
// external AI/LLM services, following the hexagonal architecture pattern.
type Engine interface {
	// Analyze runs the given query against the document and returns a
	// structured report. It returns an error if the analysis fails for any
	// reason (see errors.go for specific types).
	Analyze(ctx context.Context, doc *Document, query string) (*Report, error)
}

// Loader materializes a stored document from its reference (a path or key
// produced by the intake layer) into an in-memory Document.
type Loader interface {
	// Load reads the document identified by ref. It returns
	// ErrDocumentUnreadable if the document is missing or cannot be read.
	Load(ctx context.Context, ref string) (*Document, error)
}
