// -----------------------------------------------------------------------
// PDF Text Extractor - layout-aware text with a page-by-page fallback
// Uses pdfcpu to decode page content streams
// -----------------------------------------------------------------------

package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/workdir"
	"github.com/ternarybob/assay/internal/worker"
)

// contentFilePattern matches the per-page files written by pdfcpu content extraction.
var contentFilePattern = regexp.MustCompile(`Content_page_(\d+)`)

// TextExtractor implements interfaces.PDFExtractor using pdfcpu
type TextExtractor struct {
	logger   arbor.ILogger
	workdir  *workdir.Manager
	params   LayoutParams
	validate *validator.Validate

	// extractContent writes decoded content streams of the selected pages
	// (all when nil) to outDir.
	extractContent func(inFile, outDir string, pages []string, conf *model.Configuration) error
}

// Compile-time interface assertion
var _ interfaces.PDFExtractor = (*TextExtractor)(nil)

// NewTextExtractor creates a PDF text extractor with the given layout parameters
func NewTextExtractor(logger arbor.ILogger, wd *workdir.Manager, params LayoutParams) *TextExtractor {
	return &TextExtractor{
		logger:   logger,
		workdir:  wd,
		params:   params,
		validate: validator.New(),

		extractContent: api.ExtractContentFile,
	}
}

// ExtractText returns the text of all pages in reading order, pages separated
// by a blank line.
func (e *TextExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	return e.ExtractTextWithParams(ctx, path, e.params)
}

// ExtractTextWithParams is ExtractText with explicit layout parameters.
func (e *TextExtractor) ExtractTextWithParams(ctx context.Context, path string, params LayoutParams) (string, error) {
	pages, err := e.extract(ctx, path, params)
	if err != nil {
		return "", err
	}
	return joinPages(pages), nil
}

// ExtractPages returns the text of each page in document order.
func (e *TextExtractor) ExtractPages(ctx context.Context, path string) ([]interfaces.PageContent, error) {
	return e.extract(ctx, path, e.params)
}

// ExtractPageRange returns pages start..end (1-indexed, inclusive).
func (e *TextExtractor) ExtractPageRange(ctx context.Context, path string, startPage, endPage int) ([]interfaces.PageContent, error) {
	pages, err := e.ExtractPages(ctx, path)
	if err != nil {
		return nil, err
	}

	if startPage < 1 {
		startPage = 1
	}
	if endPage > len(pages) {
		endPage = len(pages)
	}
	if startPage > endPage {
		return nil, apperr.InvalidParameter("invalid page range: start %d > end %d", startPage, endPage)
	}
	return pages[startPage-1 : endPage], nil
}

// GetMetadata retrieves page count, size and encryption state.
func (e *TextExtractor) GetMetadata(ctx context.Context, path string) (*interfaces.PDFMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.IO(path, err)
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, apperr.DocumentUnreadable(path, err)
	}

	metadata := &interfaces.PDFMetadata{
		Path:        path,
		PageCount:   pdfCtx.PageCount,
		FileSize:    info.Size(),
		IsEncrypted: pdfCtx.Encrypt != nil,
	}

	e.logger.Debug().
		Str("path", path).
		Int("page_count", metadata.PageCount).
		Int64("file_size", metadata.FileSize).
		Bool("encrypted", metadata.IsEncrypted).
		Msg("Extracted PDF metadata")

	return metadata, nil
}

// Batch extracts every PDF under dir. When outDir is set each text is saved
// as <name>.txt there; the item output is the saved path or the character count.
func (e *TextExtractor) Batch(ctx context.Context, pool *worker.Pool, dir, outDir string, recursive bool) (*models.BatchReport, error) {
	files, err := worker.FindFiles(dir, recursive, ".pdf")
	if err != nil {
		return nil, err
	}

	return pool.Run(ctx, "pdf-text", files, func(ctx context.Context, path string) (interface{}, error) {
		text, err := e.ExtractText(ctx, path)
		if err != nil {
			return nil, err
		}
		if outDir == "" {
			return len([]rune(text)), nil
		}
		out := worker.OutputPath(dir, path, outDir, ".txt")
		if err := worker.SaveText(text, out); err != nil {
			return nil, err
		}
		return out, nil
	}), nil
}

// extract runs the layout path and falls back to the page-by-page path when
// it fails or yields only whitespace.
func (e *TextExtractor) extract(ctx context.Context, path string, params LayoutParams) ([]interfaces.PageContent, error) {
	if err := e.validate.Struct(params); err != nil {
		return nil, apperr.InvalidParameter("invalid layout parameters: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.IO(path, err)
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, apperr.DocumentUnreadable(path, err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return nil, apperr.New(apperr.KindDocumentUnreadable, path, "document has no pages", nil)
	}

	dir, err := e.workdir.Create("pdf-text")
	if err != nil {
		return nil, apperr.IO(e.workdir.Root(), err)
	}
	defer dir.Remove()

	pages, primaryErr := e.extractLayout(ctx, path, dir.Join("layout"), pageCount, params)
	if primaryErr == nil && strings.TrimSpace(joinPages(pages)) != "" {
		return pages, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Err(primaryErr).
		Str("path", path).
		Msg("Layout extraction produced no text, falling back to page extraction")

	pages, fallbackErr := e.extractPageByPage(ctx, path, dir.Join("pages"), pageCount)
	if fallbackErr != nil {
		if primaryErr == nil {
			primaryErr = errors.New("no text")
		}
		return nil, apperr.DocumentUnreadable(path,
			fmt.Errorf("layout extraction: %v; page extraction: %w", primaryErr, fallbackErr))
	}
	return pages, nil
}

// extractLayout decodes all content streams in one pass and assembles each
// page with layout analysis.
func (e *TextExtractor) extractLayout(ctx context.Context, path, outDir string, pageCount int, params LayoutParams) ([]interfaces.PageContent, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	if err := e.extractContent(path, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	streams, err := readContentFiles(outDir)
	if err != nil {
		return nil, err
	}

	pages := make([]interfaces.PageContent, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var runs []textRun
		scanContent(streams[pageNum], contentVisitor{
			onRun: func(r textRun) { runs = append(runs, r) },
		})
		pages = append(pages, interfaces.PageContent{
			PageNumber: pageNum,
			Text:       layoutText(runs, params),
		})
	}
	return pages, nil
}

// extractPageByPage decodes each page on its own and dumps text in stream
// order. A page that fails is left empty; only a failure on every page is an
// error.
func (e *TextExtractor) extractPageByPage(ctx context.Context, path, outDir string, pageCount int) ([]interfaces.PageContent, error) {
	conf := model.NewDefaultConfiguration()
	pages := make([]interfaces.PageContent, 0, pageCount)
	var lastErr error
	succeeded := 0

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageDir := filepath.Join(outDir, strconv.Itoa(pageNum))
		page := interfaces.PageContent{PageNumber: pageNum}

		err := os.MkdirAll(pageDir, 0755)
		if err == nil {
			err = e.extractContent(path, pageDir, []string{strconv.Itoa(pageNum)}, conf)
		}
		if err != nil {
			lastErr = err
			e.logger.Warn().Err(err).Str("path", path).Int("page", pageNum).Msg("Failed to extract page content")
			pages = append(pages, page)
			continue
		}

		streams, err := readContentFiles(pageDir)
		if err != nil {
			lastErr = err
			pages = append(pages, page)
			continue
		}

		raw := &rawText{}
		scanContent(streams[pageNum], raw.visitor())
		page.Text = raw.String()
		pages = append(pages, page)
		succeeded++
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("no page could be extracted: %w", lastErr)
	}
	return pages, nil
}

// readContentFiles maps page numbers to their decoded content streams. Pages
// with several streams get them concatenated in file name order.
func readContentFiles(dir string) (map[int][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read content dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	streams := make(map[int][]byte)
	for _, name := range names {
		m := contentFilePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		pageNum, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		streams[pageNum] = append(append(streams[pageNum], data...), '\n')
	}
	return streams, nil
}

// joinPages concatenates non-empty page texts with a blank line between them.
func joinPages(pages []interfaces.PageContent) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
