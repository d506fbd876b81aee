package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/workdir"
	"github.com/ternarybob/assay/internal/worker"
)

// writeTestPDF renders markdown to a PDF file under dir.
func writeTestPDF(t *testing.T, dir, name, markdown string) string {
	t.Helper()
	data, err := NewRenderer(arbor.NewLogger()).ConvertMarkdownToPDF(markdown, name)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newTestExtractor(t *testing.T) *TextExtractor {
	t.Helper()
	logger := arbor.NewLogger()
	return NewTextExtractor(logger, workdir.NewManager(t.TempDir(), logger), DefaultLayoutParams())
}

func TestExtractText_SinglePage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPDF(t, dir, "single.pdf", "# Quarterly Report\n\nRevenue grew in every region.")

	text, err := newTestExtractor(t).ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.Contains(t, text, "Quarterly Report")
	assert.Contains(t, text, "Revenue grew in every region.")
	assert.Less(t, strings.Index(text, "Quarterly"), strings.Index(text, "Revenue"))
}

func TestExtractPages(t *testing.T) {
	dir := t.TempDir()
	var md strings.Builder
	md.WriteString("# First\n\n")
	for i := 0; i < 120; i++ {
		md.WriteString("Filler paragraph to force a page break.\n\n")
	}
	md.WriteString("Closing line.")
	path := writeTestPDF(t, dir, "multi.pdf", md.String())

	extractor := newTestExtractor(t)
	pages, err := extractor.ExtractPages(context.Background(), path)
	require.NoError(t, err)
	require.Greater(t, len(pages), 1)
	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
	}
	assert.Contains(t, pages[0].Text, "First")
	assert.Contains(t, pages[len(pages)-1].Text, "Closing line.")

	first, err := extractor.ExtractPageRange(context.Background(), path, 1, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = extractor.ExtractPageRange(context.Background(), path, 3, 2)
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
}

func TestExtractText_Unreadable(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.pdf")
	require.NoError(t, os.WriteFile(corrupt, []byte("%PDF-1.4\nthis is not really a pdf"), 0644))

	extractor := newTestExtractor(t)
	text, err := extractor.ExtractText(context.Background(), corrupt)
	require.Error(t, err)
	assert.Empty(t, text)
	assert.True(t, errors.Is(err, apperr.ErrDocumentUnreadable))

	_, err = extractor.ExtractText(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.True(t, errors.Is(err, apperr.ErrIO))
}

func TestExtractText_FallsBackToPageByPage(t *testing.T) {
	path := writeTestPDF(t, t.TempDir(), "fallback.pdf", "# Invoice\n\nTotal due: 42")

	tests := []struct {
		name   string
		layout func(outDir string) error
	}{
		{"layout pass fails", func(string) error { return errors.New("corrupt xref stream") }},
		{"layout pass yields nothing", func(string) error { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := newTestExtractor(t)
			var perPage int
			extractor.extractContent = func(in, outDir string, pages []string, conf *model.Configuration) error {
				if pages == nil {
					return tt.layout(outDir)
				}
				perPage++
				return api.ExtractContentFile(in, outDir, pages, conf)
			}

			text, err := extractor.ExtractText(context.Background(), path)
			require.NoError(t, err)
			assert.Contains(t, text, "Invoice")
			assert.Contains(t, text, "Total due: 42")
			assert.Equal(t, 1, perPage)
		})
	}
}

func TestExtractText_BothPathsFail(t *testing.T) {
	path := writeTestPDF(t, t.TempDir(), "locked.pdf", "secret")

	extractor := newTestExtractor(t)
	extractor.extractContent = func(in, outDir string, pages []string, conf *model.Configuration) error {
		if pages == nil {
			return errors.New("layout decode failed")
		}
		return errors.New("page decode failed")
	}

	text, err := extractor.ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Empty(t, text)
	assert.True(t, errors.Is(err, apperr.ErrDocumentUnreadable))
	assert.Contains(t, err.Error(), "layout decode failed")
	assert.Contains(t, err.Error(), "page decode failed")
}

func TestExtractText_InvalidParams(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPDF(t, dir, "p.pdf", "text")

	params := DefaultLayoutParams()
	params.BoxesFlow = 3
	_, err := newTestExtractor(t).ExtractTextWithParams(context.Background(), path, params)
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
}

func TestGetMetadata(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPDF(t, dir, "meta.pdf", "hello")

	meta, err := newTestExtractor(t).GetMetadata(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.PageCount)
	assert.False(t, meta.IsEncrypted)
	assert.Greater(t, meta.FileSize, int64(0))
}

func TestExtractText_ScratchDirRemoved(t *testing.T) {
	logger := arbor.NewLogger()
	root := t.TempDir()
	extractor := NewTextExtractor(logger, workdir.NewManager(root, logger), DefaultLayoutParams())

	path := writeTestPDF(t, t.TempDir(), "a.pdf", "hello")
	_, err := extractor.ExtractText(context.Background(), path)
	require.NoError(t, err)

	corrupt := filepath.Join(t.TempDir(), "bad.pdf")
	require.NoError(t, os.WriteFile(corrupt, []byte("junk"), 0644))
	_, _ = extractor.ExtractText(context.Background(), corrupt)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTextExtractorBatch(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"} {
		writeTestPDF(t, in, name, "Document "+name)
	}
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.pdf"), []byte("nope"), 0644))

	pool := worker.NewPool(arbor.NewLogger(), worker.WithConcurrency(2))
	report, err := newTestExtractor(t).Batch(context.Background(), pool, in, out, false)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "DocumentUnreadable", failures[0].Kind)

	saved, err := os.ReadFile(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(saved), "Document a.pdf")
}
