// Package intake validates and persists uploaded documents, producing stable
// file references that workers can consume. It sits between the HTTP surface
// and the task pipeline: nothing downstream ever touches raw upload data.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Validation errors returned by Store. All of them wrap ErrValidation so
// callers can treat the whole family as a 400-class rejection.
var (
	ErrValidation        = errors.New("document validation failed")
	ErrEmptyDocument     = fmt.Errorf("%w: document is empty", ErrValidation)
	ErrDocumentTooLarge  = fmt.Errorf("%w: document exceeds size limit", ErrValidation)
	ErrUnsupportedFormat = fmt.Errorf("%w: only PDF documents are supported", ErrValidation)
)

// pdfMIMEType is the only accepted document content type.
const pdfMIMEType = "application/pdf"

// Intake validates uploads and writes them to durable storage.
type Intake struct {
	dataDir  string
	maxBytes int64
	logger   *slog.Logger
}

// New creates an Intake writing into dataDir, rejecting payloads larger than
// maxBytes. The directory is created if it does not exist.
func New(dataDir string, maxBytes int64, logger *slog.Logger) (*Intake, error) {
	if dataDir == "" {
		return nil, errors.New("data directory cannot be empty")
	}
	if maxBytes <= 0 {
		return nil, errors.New("max upload size must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	return &Intake{
		dataDir:  dataDir,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "intake")),
	}, nil
}

// Store validates the uploaded document and writes it to durable storage.
// The stored name is derived from a fresh UUID rather than the declared name,
// so concurrent uploads of same-named files never collide. Returns the stored
// file reference consumable by workers.
func (i *Intake) Store(ctx context.Context, r io.Reader, declaredName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !strings.EqualFold(filepath.Ext(declaredName), ".pdf") {
		return "", ErrUnsupportedFormat
	}

	// Read one byte past the ceiling so oversized payloads are detected
	// without buffering arbitrarily large bodies.
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read uploaded document: %w", err)
	}

	if len(data) == 0 {
		return "", ErrEmptyDocument
	}
	if int64(len(data)) > i.maxBytes {
		return "", ErrDocumentTooLarge
	}

	// The declared name is not trusted: sniff the actual content.
	if !mimetype.Detect(data).Is(pdfMIMEType) {
		return "", ErrUnsupportedFormat
	}

	ref := filepath.Join(i.dataDir, fmt.Sprintf("analysis_%s.pdf", uuid.New()))
	if err := os.WriteFile(ref, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to persist document: %w", err)
	}

	i.logger.Info("document stored",
		slog.String("ref", ref),
		slog.String("declared_name", declaredName),
		slog.Int("size_bytes", len(data)))

	return ref, nil
}

// Remove deletes a stored document. Missing files are not an error: cleanup
// may run more than once for the same task under queue redelivery.
func (i *Intake) Remove(ref string) error {
	if ref == "" {
		return nil
	}

	if err := os.Remove(ref); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to remove document %s: %w", ref, err)
	}

	i.logger.Debug("document removed", slog.String("ref", ref))
	return nil
}
