package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/models"
)

// stubExtractor returns canned text per path, or an error for listed paths.
type stubExtractor struct {
	texts map[string]string
	fail  map[string]error
	calls []string
}

func (s *stubExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	s.calls = append(s.calls, path)
	if err, ok := s.fail[path]; ok {
		return "", err
	}
	return s.texts[path], nil
}

// captureRenderer records the markdown it was asked to render.
type captureRenderer struct {
	markdown string
	title    string
	err      error
}

func (c *captureRenderer) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	c.markdown, c.title = markdown, title
	if c.err != nil {
		return nil, c.err
	}
	return []byte("%PDF-1.3 fake"), nil
}

func writeText(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func newTestMerger(pdfText, docxText *stubExtractor, renderer *captureRenderer) *Merger {
	if pdfText == nil {
		pdfText = &stubExtractor{}
	}
	if docxText == nil {
		docxText = &stubExtractor{}
	}
	if renderer == nil {
		renderer = &captureRenderer{}
	}
	return NewMerger(arbor.NewLogger(), pdfText, docxText, renderer)
}

func TestMerge_Format(t *testing.T) {
	dir := t.TempDir()
	a := writeText(t, dir, "a.txt", "alpha text")
	b := writeText(t, dir, "b.md", "beta text")

	merged, err := newTestMerger(nil, nil, nil).Merge(context.Background(), models.MergeSpec{Sections: []models.MergeSection{
		{Path: a, Title: "A"},
		{Path: b, Title: "B"},
	}}, Options{})
	require.NoError(t, err)

	rule := strings.Repeat("=", 50)
	want := rule + "\nA\n" + rule + "\n\nalpha text" +
		"\n\n" + rule + "\n\n" +
		rule + "\nB\n" + rule + "\n\nbeta text" +
		"\n\n" + rule + "\nEND OF DOCUMENT\n" + rule
	assert.Equal(t, want, merged)
}

func TestMerge_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	textA := "First line\n\nSecond paragraph with ==== inside.\n"
	textB := "Résumé\n" + strings.Repeat("=", 50) + "\nnot a header"
	a := writeText(t, dir, "a.txt", textA)
	b := writeText(t, dir, "b.txt", textB)

	merged, err := newTestMerger(nil, nil, nil).Merge(context.Background(), models.MergeSpec{Sections: []models.MergeSection{
		{Path: a, Title: "A"},
		{Path: b, Title: "B"},
	}}, Options{})
	require.NoError(t, err)

	sections, err := Split(merged)
	require.NoError(t, err)
	assert.Equal(t, []Section{{Title: "A", Text: textA}, {Title: "B", Text: textB}}, sections)
}

func TestFormatSplit_CustomSeparator(t *testing.T) {
	sections := []Section{{Title: "ONE", Text: "1"}, {Title: "TWO", Text: ""}, {Title: "THREE", Text: "3\n\n3"}}
	merged := Format(sections, "\n---\n")

	got, err := SplitWithSeparator(merged, "\n---\n")
	require.NoError(t, err)
	assert.Equal(t, sections, got)
}

func TestSplit_NotMerged(t *testing.T) {
	_, err := Split("just some text")
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))

	_, err = Split("no header" + Footer)
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
}

func TestMerge_DispatchesByExtension(t *testing.T) {
	pdfText := &stubExtractor{texts: map[string]string{"/in/job.pdf": "pdf body"}}
	docxText := &stubExtractor{texts: map[string]string{"/in/cv.DOCX": "docx body"}}
	m := newTestMerger(pdfText, docxText, nil)

	merged, err := m.MergeJobAndCV(context.Background(), "/in/job.pdf", "/in/cv.DOCX", Options{})
	require.NoError(t, err)

	sections, err := Split(merged)
	require.NoError(t, err)
	assert.Equal(t, []Section{
		{Title: JobTitle, Text: "pdf body"},
		{Title: CVTitle, Text: "docx body"},
	}, sections)
	assert.Equal(t, []string{"/in/job.pdf"}, pdfText.calls)
	assert.Equal(t, []string{"/in/cv.DOCX"}, docxText.calls)
}

func TestMerge_FailureNamesFileAndWritesNothing(t *testing.T) {
	dir := t.TempDir()
	good := writeText(t, dir, "good.txt", "fine")
	bad := filepath.Join(dir, "bad.pdf")
	pdfText := &stubExtractor{fail: map[string]error{bad: apperr.DocumentUnreadable(bad, errors.New("xref broken"))}}
	out := filepath.Join(dir, "out", "merged.txt")

	merged, err := newTestMerger(pdfText, nil, nil).Merge(context.Background(), models.MergeSpec{Sections: []models.MergeSection{
		{Path: good, Title: "GOOD"},
		{Path: bad, Title: "BAD"},
	}}, Options{OutputPath: out})

	require.Error(t, err)
	assert.Empty(t, merged)
	assert.True(t, errors.Is(err, apperr.ErrDocumentUnreadable))
	assert.Contains(t, err.Error(), bad)
	assert.NoFileExists(t, out)
}

func TestMerge_Errors(t *testing.T) {
	dir := t.TempDir()
	m := newTestMerger(nil, nil, nil)

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.txt")},
		{"unsupported format", writeText(t, dir, "sheet.xlsx", "x")},
		{"invalid utf8", writeText(t, dir, "latin1.txt", "caf\xe9")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Merge(context.Background(), models.MergeSpec{Sections: []models.MergeSection{{Path: tt.path, Title: "X"}}}, Options{})
			assert.True(t, errors.Is(err, apperr.ErrDocumentUnreadable))
			assert.Equal(t, apperr.KindDocumentUnreadable, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.path)
		})
	}

	_, err := m.Merge(context.Background(), models.MergeSpec{}, Options{})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
}

func TestMerge_SavesAndDefaultsTitles(t *testing.T) {
	dir := t.TempDir()
	a := writeText(t, dir, "a.txt", "x")
	out := filepath.Join(dir, "nested", "merged.txt")

	merged, err := newTestMerger(nil, nil, nil).Merge(context.Background(), models.MergeSpec{Sections: []models.MergeSection{{Path: a}}}, Options{OutputPath: out})
	require.NoError(t, err)

	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, merged, string(saved))
	assert.Contains(t, merged, "\nDOCUMENT 1\n")
}

func TestRenderPDF(t *testing.T) {
	renderer := &captureRenderer{}
	m := newTestMerger(nil, nil, renderer)
	merged := Format([]Section{
		{Title: "JOB DESCRIPTION", Text: "# not a heading\n    indented\n1. item *bold*"},
		{Title: "RESUME", Text: "Ten years"},
	}, "")

	data, err := m.RenderPDF(merged, "Combined")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "Combined", renderer.title)
	assert.Equal(t,
		"# JOB DESCRIPTION\n\n\\# not a heading\nindented\n1\\. item \\*bold\\*\n\n# RESUME\n\nTen years",
		renderer.markdown)
}

func TestRenderPDF_PlainText(t *testing.T) {
	renderer := &captureRenderer{}
	out := filepath.Join(t.TempDir(), "doc.pdf")

	require.NoError(t, newTestMerger(nil, nil, renderer).SavePDF("loose text", "Notes", out))
	assert.Equal(t, "# Notes\n\nloose text", renderer.markdown)
	assert.FileExists(t, out)

	renderer.err = errors.New("font missing")
	_, err := newTestMerger(nil, nil, renderer).RenderPDF("x", "y")
	assert.Error(t, err)
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "JOB POSTING", TitleFromPath("/tmp/job_posting.pdf"))
	assert.Equal(t, "CV", TitleFromPath("cv.docx"))
	assert.Equal(t, ".HIDDEN", TitleFromPath(".hidden"))
}
