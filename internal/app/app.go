// -----------------------------------------------------------------------
// App - wires configuration into the extractors, converters and client
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/assistant"
	"github.com/ternarybob/assay/internal/common"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/services/docx"
	"github.com/ternarybob/assay/internal/services/merge"
	"github.com/ternarybob/assay/internal/services/pdf"
	"github.com/ternarybob/assay/internal/services/video"
	"github.com/ternarybob/assay/internal/storage"
	"github.com/ternarybob/assay/internal/toolrunner"
	"github.com/ternarybob/assay/internal/workdir"
	"github.com/ternarybob/assay/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Runner  interfaces.ToolRunner
	Workdir *workdir.Manager
	History interfaces.HistoryStorage // nil when history is disabled

	// Document services
	PDFText  *pdf.TextExtractor
	PDFImage *pdf.ImageConverter
	Renderer *pdf.Renderer
	DOCX     *docx.Extractor
	Merger   *merge.Merger

	// Media services
	Frames    *video.FrameExtractor
	Audio     *video.AudioExtractor
	Converter *video.Converter
}

// New initializes the application with all dependencies. The tool runner
// resolves binaries from config.Tools, falling back to PATH.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	return NewWithRunner(cfg, logger, toolrunner.NewExecRunner(logger, cfg.ToolPaths()))
}

// NewWithRunner is New with an explicit tool runner.
func NewWithRunner(cfg *common.Config, logger arbor.ILogger, runner interfaces.ToolRunner) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Runner:  runner,
		Workdir: workdir.NewManager(cfg.TempDir, logger),
	}

	if err := a.initHistory(); err != nil {
		return nil, err
	}
	a.initServices()

	logger.Debug().
		Str("workdir", a.Workdir.Root()).
		Bool("history", a.History != nil).
		Msg("Application initialization complete")

	return a, nil
}

func (a *App) initHistory() error {
	history, err := storage.NewHistoryStorage(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	a.History = history
	return nil
}

func (a *App) initServices() {
	a.PDFText = pdf.NewTextExtractor(a.Logger, a.Workdir, a.LayoutParams())
	a.PDFImage = pdf.NewImageConverter(a.Logger, a.Runner, a.Workdir)
	a.Renderer = pdf.NewRenderer(a.Logger)
	a.DOCX = docx.NewExtractor(a.Logger)
	a.Merger = merge.NewMerger(a.Logger, a.PDFText, a.DOCX, a.Renderer)

	a.Frames = video.NewFrameExtractor(a.Logger, a.Runner, a.Workdir)
	a.Audio = video.NewAudioExtractor(a.Logger, a.Runner, a.Workdir)
	a.Converter = video.NewConverter(a.Logger, a.Runner, a.Workdir)
}

// LayoutParams returns the configured PDF layout parameters.
func (a *App) LayoutParams() pdf.LayoutParams {
	c := a.Config.PDF
	return pdf.LayoutParams{
		LineMargin:     c.LineMargin,
		CharMargin:     c.CharMargin,
		WordMargin:     c.WordMargin,
		BoxesFlow:      c.BoxesFlow,
		DetectVertical: c.DetectVertical,
	}
}

// FrameOptions returns the configured frame sampling defaults.
func (a *App) FrameOptions() video.FrameOptions {
	return video.FrameOptions{FPS: a.Config.Video.FPS, Quality: a.Config.Video.Quality}
}

// AudioOptions returns the configured audio extraction defaults.
func (a *App) AudioOptions() video.AudioOptions {
	v := a.Config.Video
	return video.AudioOptions{Format: v.AudioFormat, SampleRate: v.SampleRate, Channels: v.Channels}
}

// MergeOptions returns merge options using the configured delimiter.
func (a *App) MergeOptions(outputPath string) merge.Options {
	return merge.Options{Separator: a.Config.Merge.Delimiter, OutputPath: outputPath}
}

// Pool builds a worker pool from the batch configuration. concurrency > 0
// overrides the configured worker count.
func (a *App) Pool(concurrency int) *worker.Pool {
	if concurrency <= 0 {
		concurrency = a.Config.Batch.Concurrency
	}
	opts := []worker.Option{
		worker.WithConcurrency(concurrency),
		worker.WithDelay(a.Config.Batch.DelayDuration()),
	}
	if a.History != nil {
		opts = append(opts, worker.WithHistory(a.History))
	}
	return worker.NewPool(a.Logger, opts...)
}

// Client creates the analysis API client. It fails when no API key is
// configured.
func (a *App) Client() (interfaces.AnalysisClient, error) {
	key, err := a.Config.ResolveAPIKey()
	if err != nil {
		return nil, err
	}
	return assistant.NewClient(key,
		assistant.WithBaseURL(a.Config.API.URL),
		assistant.WithTimeout(a.Config.API.RequestTimeout()),
		assistant.WithDefaultAssistant(a.Config.API.AssistantID),
		assistant.WithLogger(a.Logger),
	), nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			return fmt.Errorf("failed to close history: %w", err)
		}
		a.Logger.Debug().Msg("History closed")
	}
	return nil
}
