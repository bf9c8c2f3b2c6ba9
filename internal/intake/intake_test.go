package intake

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF is the smallest payload mimetype recognizes as application/pdf.
var minimalPDF = []byte("%PDF-1.4\n%%EOF\n")

func newTestIntake(t *testing.T, maxBytes int64) *Intake {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	i, err := New(t.TempDir(), maxBytes, logger)
	require.NoError(t, err)
	return i
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates data directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "data")
		_, err := New(dir, 1024, nil)
		require.NoError(t, err)

		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	})

	t.Run("rejects empty data dir", func(t *testing.T) {
		t.Parallel()
		_, err := New("", 1024, nil)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive size limit", func(t *testing.T) {
		t.Parallel()
		_, err := New(t.TempDir(), 0, nil)
		assert.Error(t, err)
	})
}

func TestIntake_Store(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stores valid PDF", func(t *testing.T) {
		t.Parallel()
		i := newTestIntake(t, 1024)

		ref, err := i.Store(ctx, bytes.NewReader(minimalPDF), "report.pdf")
		require.NoError(t, err)

		assert.Contains(t, filepath.Base(ref), "analysis_")
		assert.True(t, strings.HasSuffix(ref, ".pdf"))

		stored, readErr := os.ReadFile(ref)
		require.NoError(t, readErr)
		assert.Equal(t, minimalPDF, stored)
	})

	t.Run("same declared name never collides", func(t *testing.T) {
		t.Parallel()
		i := newTestIntake(t, 1024)

		ref1, err := i.Store(ctx, bytes.NewReader(minimalPDF), "report.pdf")
		require.NoError(t, err)
		ref2, err := i.Store(ctx, bytes.NewReader(minimalPDF), "report.pdf")
		require.NoError(t, err)

		assert.NotEqual(t, ref1, ref2)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		t.Parallel()
		i := newTestIntake(t, 1024)

		_, err := i.Store(ctx, bytes.NewReader(nil), "report.pdf")
		assert.ErrorIs(t, err, ErrEmptyDocument)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects oversized payload", func(t *testing.T) {
		t.Parallel()
		i := newTestIntake(t, 8)

		_, err := i.Store(ctx, bytes.NewReader(minimalPDF), "report.pdf")
		assert.ErrorIs(t, err, ErrDocumentTooLarge)
	})

	t.Run("rejects non-PDF extension", func(t *testing.T) {
		t.Parallel()
		i := newTestIntake(t, 1024)

		_, err := i.Store(ctx, bytes.NewReader(minimalPDF), "report.docx")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("rejects PDF extension with non-PDF content", func(t *testing.T) {
		t.Parallel()
		i := newTestIntake(t, 1024)

		_, err := i.Store(ctx, strings.NewReader("plain text pretending"), "report.pdf")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("accepts case-insensitive extension", func(t *testing.T) {
		t.Parallel()
		i := newTestIntake(t, 1024)

		_, err := i.Store(ctx, bytes.NewReader(minimalPDF), "REPORT.PDF")
		assert.NoError(t, err)
	})
}

func TestIntake_Remove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	i := newTestIntake(t, 1024)

	ref, err := i.Store(ctx, bytes.NewReader(minimalPDF), "report.pdf")
	require.NoError(t, err)

	require.NoError(t, i.Remove(ref))
	_, statErr := os.Stat(ref)
	assert.True(t, os.IsNotExist(statErr))

	// Removing again is a no-op, cleanup can run twice under redelivery.
	assert.NoError(t, i.Remove(ref))
	assert.NoError(t, i.Remove(""))
}
