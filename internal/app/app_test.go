package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/common"
	"github.com/ternarybob/assay/internal/toolrunner"
	"github.com/ternarybob/assay/internal/worker"
)

func newTestApp(t *testing.T, mutate func(*common.Config)) *App {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.TempDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	a, err := NewWithRunner(cfg, arbor.NewLogger(), toolrunner.NewFakeRunner())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_WiresServices(t *testing.T) {
	a := newTestApp(t, nil)

	assert.NotNil(t, a.PDFText)
	assert.NotNil(t, a.PDFImage)
	assert.NotNil(t, a.DOCX)
	assert.NotNil(t, a.Merger)
	assert.NotNil(t, a.Frames)
	assert.NotNil(t, a.Audio)
	assert.NotNil(t, a.Converter)
	assert.Nil(t, a.History)
	assert.Equal(t, a.Config.TempDir, a.Workdir.Root())
	assert.True(t, a.Merger.Supports("cv.docx"))
}

func TestOptionsFollowConfig(t *testing.T) {
	a := newTestApp(t, func(c *common.Config) {
		c.PDF.LineMargin = 0.8
		c.PDF.DetectVertical = false
		c.Video.FPS = 0.2
		c.Video.Quality = 5
		c.Video.AudioFormat = "mp3"
		c.Merge.Delimiter = "\n---\n"
	})

	params := a.LayoutParams()
	assert.Equal(t, 0.8, params.LineMargin)
	assert.False(t, params.DetectVertical)

	frames := a.FrameOptions()
	assert.Equal(t, 0.2, frames.FPS)
	assert.Equal(t, 5, frames.Quality)

	audio := a.AudioOptions()
	assert.Equal(t, "mp3", audio.Format)
	assert.Equal(t, 16000, audio.SampleRate)

	opts := a.MergeOptions("out.txt")
	assert.Equal(t, "\n---\n", opts.Separator)
	assert.Equal(t, "out.txt", opts.OutputPath)
}

func TestPool(t *testing.T) {
	a := newTestApp(t, func(c *common.Config) { c.Batch.Concurrency = 3 })

	assert.Equal(t, 3, a.Pool(0).Concurrency())
	assert.Equal(t, 5, a.Pool(5).Concurrency())
	assert.Equal(t, worker.MaxConcurrency, a.Pool(50).Concurrency())
}

func TestPool_RecordsHistory(t *testing.T) {
	a := newTestApp(t, func(c *common.Config) {
		c.Storage.Badger.Enabled = true
		c.Storage.Badger.Path = filepath.Join(t.TempDir(), "history")
	})
	require.NotNil(t, a.History)

	ctx := context.Background()
	report := a.Pool(1).Run(ctx, "noop", []string{"a", "b"}, func(ctx context.Context, path string) (interface{}, error) {
		return path, nil
	})
	require.NotEmpty(t, report.RunID)

	run, err := a.History.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "noop", run.Operation)
	assert.Equal(t, 2, run.Succeeded)
}

func TestClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("ASSAY_API_KEY", "")

	a := newTestApp(t, nil)
	_, err := a.Client()
	assert.Error(t, err)

	a.Config.API.APIKey = "secret"
	client, err := a.Client()
	require.NoError(t, err)
	assert.NotNil(t, client)
}
