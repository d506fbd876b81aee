// -----------------------------------------------------------------------
// Document Merger - concatenates extracted documents under section headers
// -----------------------------------------------------------------------

package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/worker"
)

// Titles used by MergeJobAndCV.
const (
	JobTitle = "JOB DESCRIPTION"
	CVTitle  = "RESUME"
)

// Options controls a merge.
type Options struct {
	// Separator between sections; DefaultSeparator when empty.
	Separator string
	// OutputPath, when set, receives the merged text.
	OutputPath string
}

// Merger reads each section with the extractor registered for its file
// extension and joins the results.
type Merger struct {
	logger     arbor.ILogger
	extractors map[string]interfaces.TextExtractor
	renderer   interfaces.PDFService
}

// NewMerger wires the PDF and DOCX extractors; .txt and .md files are read
// as UTF-8 directly.
func NewMerger(logger arbor.ILogger, pdfText, docxText interfaces.TextExtractor, renderer interfaces.PDFService) *Merger {
	plain := plainText{}
	return &Merger{
		logger: logger,
		extractors: map[string]interfaces.TextExtractor{
			".pdf":      pdfText,
			".docx":     docxText,
			".doc":      docxText,
			".txt":      plain,
			".md":       plain,
			".markdown": plain,
		},
		renderer: renderer,
	}
}

// Supports reports whether path has an extension the merger can read.
func (m *Merger) Supports(path string) bool {
	_, ok := m.extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Merge extracts every section in order and formats them into one document.
// Any section failing aborts the merge with DocumentUnreadable naming that
// file; no partial document is returned or written.
func (m *Merger) Merge(ctx context.Context, spec models.MergeSpec, opts Options) (string, error) {
	if len(spec.Sections) == 0 {
		return "", apperr.InvalidParameter("nothing to merge")
	}

	m.logger.Info().Int("documents", len(spec.Sections)).Msg("Merging documents")

	sections := make([]Section, 0, len(spec.Sections))
	for i, s := range spec.Sections {
		title := s.Title
		if title == "" {
			title = fmt.Sprintf("DOCUMENT %d", i+1)
		}

		text, err := m.read(ctx, s.Path)
		if err != nil {
			m.logger.Error().Err(err).Str("path", s.Path).Int("section", i+1).Msg("Failed to read merge section")
			return "", apperr.New(apperr.KindDocumentUnreadable, s.Path, "cannot merge", err)
		}
		m.logger.Debug().Str("path", s.Path).Str("title", title).Int("chars", len(text)).Msg("Read merge section")

		sections = append(sections, Section{Title: title, Text: text})
	}

	merged := Format(sections, opts.Separator)
	if opts.OutputPath != "" {
		if err := Save(merged, opts.OutputPath); err != nil {
			return "", err
		}
		m.logger.Info().Str("path", opts.OutputPath).Msg("Merged document saved")
	}
	return merged, nil
}

// MergeJobAndCV merges a job description and a CV under the fixed titles.
func (m *Merger) MergeJobAndCV(ctx context.Context, job, cv string, opts Options) (string, error) {
	return m.Merge(ctx, models.MergeSpec{Sections: []models.MergeSection{
		{Path: job, Title: JobTitle},
		{Path: cv, Title: CVTitle},
	}}, opts)
}

// Save writes a merged document to path.
func Save(text, path string) error {
	return worker.SaveText(text, path)
}

// RenderPDF renders a merged document with one heading per section. Text
// that is not a merged document becomes a single section named title.
func (m *Merger) RenderPDF(text, title string) ([]byte, error) {
	sections, err := Split(text)
	if err != nil {
		sections = []Section{{Title: title, Text: text}}
	}
	data, err := m.renderer.ConvertMarkdownToPDF(toMarkdown(sections), title)
	if err != nil {
		return nil, apperr.New(apperr.KindIOError, "", "render PDF", err)
	}
	return data, nil
}

// SavePDF renders text and writes the PDF to path.
func (m *Merger) SavePDF(text, title, path string) error {
	data, err := m.RenderPDF(text, title)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.IO(path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperr.IO(path, err)
	}
	return nil
}

func (m *Merger) read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := m.extractors[ext]
	if !ok || extractor == nil {
		return "", fmt.Errorf("unsupported document format %q", ext)
	}
	return extractor.ExtractText(ctx, path)
}

// plainText reads UTF-8 text files.
type plainText struct{}

func (plainText) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.IO(path, err)
	}
	if !utf8.Valid(data) {
		return "", apperr.Newf(apperr.KindDocumentUnreadable, path, "not valid UTF-8")
	}
	return string(data), nil
}

// markdownEscaper backslash-escapes the characters that would otherwise
// start markdown constructs.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`,
	`#`, `\#`, `+`, `\+`, `-`, `\-`, `.`, `\.`, `!`, `\!`, `|`, `\|`,
	`<`, `\<`, `>`, `\>`, `~`, `\~`,
)

// toMarkdown writes each section as a level-one heading followed by its
// lines. Leading indentation is dropped so no line becomes a code block.
func toMarkdown(sections []Section) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# ")
		b.WriteString(markdownEscaper.Replace(strings.TrimSpace(s.Title)))
		b.WriteString("\n\n")

		lines := strings.Split(strings.ReplaceAll(s.Text, "\r\n", "\n"), "\n")
		for j, line := range lines {
			line = strings.TrimLeft(line, " \t")
			if j > 0 {
				b.WriteString("\n")
			}
			b.WriteString(markdownEscaper.Replace(line))
		}
	}
	return b.String()
}
