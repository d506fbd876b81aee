package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/app"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/common"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/toolrunner"
)

// useTestApp installs an application backed by a fake tool runner and
// captures batch summaries.
func useTestApp(t *testing.T) *bytes.Buffer {
	t.Helper()
	savedConfig, savedLogger, savedApp, savedOut := config, logger, application, summaryOut

	config = common.NewDefaultConfig()
	config.TempDir = t.TempDir()
	logger = arbor.NewLogger()
	a, err := app.NewWithRunner(config, logger, toolrunner.NewFakeRunner())
	require.NoError(t, err)
	application = a

	var summary bytes.Buffer
	summaryOut = &summary

	t.Cleanup(func() {
		_ = a.Close()
		config, logger, application, summaryOut = savedConfig, savedLogger, savedApp, savedOut
	})
	return &summary
}

func writePDF(t *testing.T, path, markdown string) {
	t.Helper()
	data, err := application.Renderer.ConvertMarkdownToPDF(markdown, filepath.Base(path))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestRunBatch_PartialFailureIsNotAnError(t *testing.T) {
	summary := useTestApp(t)
	dir := t.TempDir()
	writePDF(t, filepath.Join(dir, "good.pdf"), "Quarterly figures")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("not a pdf"), 0644))

	batchCmd.SetContext(context.Background())
	err := runBatch(batchCmd, []string{"pdf-text", dir})
	require.NoError(t, err)

	assert.Contains(t, summary.String(), "pdf-text: 2 files, 1 succeeded, 1 failed")
	assert.Contains(t, summary.String(), "FAILED")
	assert.Contains(t, summary.String(), "broken.pdf")
}

func TestRunBatch_RejectsUnusableInput(t *testing.T) {
	useTestApp(t)
	batchCmd.SetContext(context.Background())

	err := runBatch(batchCmd, []string{"pdf-text", filepath.Join(t.TempDir(), "missing")})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))

	err = runBatch(batchCmd, []string{"shred", t.TempDir()})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
}

func TestWriteSummary(t *testing.T) {
	report := &models.BatchReport{
		Operation: "audio",
		RunID:     "run-1",
		Items: []models.BatchItem{
			{Path: "a.mp4", Output: "a.wav"},
			{Path: "b.mp4", Error: "NoAudioTrack (b.mp4): no audio stream"},
		},
		Succeeded: 1,
		Failed:    1,
	}

	var buf bytes.Buffer
	writeSummary(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "audio: 2 files, 1 succeeded, 1 failed (50.0%)")
	assert.Contains(t, out, "  FAILED b.mp4: NoAudioTrack")
	assert.Contains(t, out, "run id: run-1")
	assert.NotContains(t, out, "a.mp4")
}

type recordingClient struct {
	method string
	text   string
	path   string
}

func (c *recordingClient) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	c.method = "Analyze"
	return &models.AnalysisResult{}, nil
}

func (c *recordingClient) AnalyzeFile(ctx context.Context, assistantID, path string) (*models.AnalysisResult, error) {
	c.method, c.path = "AnalyzeFile", path
	return &models.AnalysisResult{}, nil
}

func (c *recordingClient) AnalyzeBytes(ctx context.Context, assistantID string, data []byte) (*models.AnalysisResult, error) {
	c.method = "AnalyzeBytes"
	return &models.AnalysisResult{}, nil
}

func (c *recordingClient) AnalyzeText(ctx context.Context, assistantID, text string) (*models.AnalysisResult, error) {
	c.method, c.text = "AnalyzeText", text
	return &models.AnalysisResult{}, nil
}

func TestAnalyzePath_Routing(t *testing.T) {
	useTestApp(t)
	dir := t.TempDir()

	pdfPath := filepath.Join(dir, "job.pdf")
	writePDF(t, pdfPath, "Senior Go engineer")
	client := &recordingClient{}
	_, err := analyzePath(context.Background(), client, pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "AnalyzeText", client.method)
	assert.Contains(t, client.text, "Senior Go engineer")

	imgPath := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(imgPath, []byte("\x89PNG\r\n\x1a\n"), 0644))
	client = &recordingClient{}
	_, err = analyzePath(context.Background(), client, imgPath)
	require.NoError(t, err)
	assert.Equal(t, "AnalyzeFile", client.method)
	assert.Equal(t, imgPath, client.path)
}

type stubPDF struct{}

func (stubPDF) ExtractText(ctx context.Context, path string) (string, error) {
	return "page one\n\npage two", nil
}

func (stubPDF) ExtractPages(ctx context.Context, path string) ([]interfaces.PageContent, error) {
	return []interfaces.PageContent{{PageNumber: 1, Text: "page one"}, {PageNumber: 2, Text: "page two"}}, nil
}

func (stubPDF) GetMetadata(ctx context.Context, path string) (*interfaces.PDFMetadata, error) {
	return &interfaces.PDFMetadata{Path: path, PageCount: 2}, nil
}

func TestDescribePDF(t *testing.T) {
	useTestApp(t)
	saved := pdfTextOpts
	t.Cleanup(func() { pdfTextOpts = saved })

	out := filepath.Join(t.TempDir(), "pages.json")
	pdfTextOpts.pages, pdfTextOpts.metadata = true, false
	pdfTextOpts.output, pdfTextOpts.format = out, "json"
	require.NoError(t, describePDF(context.Background(), stubPDF{}, "doc.pdf"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var pages []interfaces.PageContent
	require.NoError(t, json.Unmarshal(data, &pages))
	require.Len(t, pages, 2)
	assert.Equal(t, "page two", pages[1].Text)

	pdfTextOpts.metadata = true
	require.NoError(t, describePDF(context.Background(), stubPDF{}, "doc.pdf"))
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"page_count": 2`)
}
