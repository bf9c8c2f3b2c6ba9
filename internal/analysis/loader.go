package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// FileLoader loads documents from the local filesystem. Document references
// are absolute paths produced by the intake layer.
type FileLoader struct {
	logger *slog.Logger
}

var _ Loader = (*FileLoader)(nil)

// NewFileLoader creates a FileLoader. A nil logger falls back to the default.
func NewFileLoader(logger *slog.Logger) *FileLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLoader{logger: logger.With(slog.String("component", "file_loader"))}
}

// Load reads the file at ref into memory and detects its media type.
func (l *FileLoader) Load(ctx context.Context, ref string) (*Document, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to read stored document",
			slog.String("path", ref),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrDocumentUnreadable)
	}

	doc := &Document{
		Name:     filepath.Base(ref),
		MIMEType: mimetype.Detect(data).String(),
		Data:     data,
	}

	l.logger.DebugContext(ctx, "document loaded",
		slog.String("name", doc.Name),
		slog.String("mime_type", doc.MIMEType),
		slog.Int("size_bytes", len(doc.Data)))

	return doc, nil
}
