package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/services/video"
	"github.com/ternarybob/assay/internal/worker"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Submit a file or text to the assistant and print the result",
	Long: `Submits one payload to the analysis API. Images and audio are sent as-is with
their detected type; PDF and DOCX files are converted to text first. --text sends
a literal string instead of a file. Exactly one request is made; failures are
not retried.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var analyzeOpts struct {
	text   string
	output string
	format string
	field  string
}

var batchCmd = &cobra.Command{
	Use:   "batch <operation> <dir>",
	Short: "Run an operation over every matching file in a directory",
	Long: `Runs one of pdf-text, docx-text, pdf-image, audio or analyze over a directory
with a bounded worker pool. A failing file is recorded and the rest continue;
only an unusable directory or invalid options fail the command. Runs are
stored in the history database when it is enabled.`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"pdf-text", "docx-text", "pdf-image", "audio", "analyze"},
	RunE:      runBatch,
}

var batchOpts struct {
	output      string
	report      string
	recursive   bool
	concurrency int
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeOpts.text, "text", "", "Analyze this text instead of a file")
	f.StringVarP(&analyzeOpts.output, "output", "o", "", "Write the result here; stdout when empty")
	f.StringVar(&analyzeOpts.format, "format", "json", "Result format: json or yaml")
	f.StringVar(&analyzeOpts.field, "field", "", "Print only this top-level result field")

	f = batchCmd.Flags()
	f.StringVarP(&batchOpts.output, "output", "o", "", "Output directory for extracted files")
	f.StringVar(&batchOpts.report, "report", "", "Save the full report (.json or .yaml)")
	f.BoolVarP(&batchOpts.recursive, "recursive", "r", false, "Recurse into sub-directories (default from config)")
	f.IntVar(&batchOpts.concurrency, "concurrency", 0, "Parallel workers, max 10 (default from config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if (len(args) == 0) == (analyzeOpts.text == "") {
		return apperr.InvalidParameter("give either a file or --text")
	}

	client, err := application.Client()
	if err != nil {
		return err
	}

	var result *models.AnalysisResult
	if analyzeOpts.text != "" {
		result, err = client.AnalyzeText(ctx, "", analyzeOpts.text)
	} else {
		result, err = analyzePath(ctx, client, args[0])
	}
	if err != nil {
		return err
	}

	if analyzeOpts.field != "" {
		var v interface{}
		if err := result.Field(analyzeOpts.field, &v); err != nil {
			return err
		}
		return writeValue(analyzeOpts.output, analyzeOpts.format, v)
	}
	return writeValue(analyzeOpts.output, analyzeOpts.format, result)
}

// analyzePath submits a file. Documents go as extracted text, video as its
// audio track, everything else with its detected type.
func analyzePath(ctx context.Context, client interfaces.AnalysisClient, path string) (*models.AnalysisResult, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case application.Merger.Supports(path) && ext != ".txt" && ext != ".md" && ext != ".markdown":
		text, err := extractDocument(ctx, path)
		if err != nil {
			return nil, err
		}
		return client.AnalyzeText(ctx, "", text)
	case isVideo(ext):
		opts := application.AudioOptions()
		audio, err := application.Audio.ExtractFile(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return client.Analyze(ctx, models.AnalysisRequest{
			Type:     models.DataTypeAudio,
			Data:     audio,
			MIMEType: video.MIMEType(opts.Format),
		})
	}
	return client.AnalyzeFile(ctx, "", path)
}

func extractDocument(ctx context.Context, path string) (string, error) {
	var extractor interfaces.TextExtractor = application.DOCX
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		extractor = application.PDFText
	}
	return extractor.ExtractText(ctx, path)
}

func isVideo(ext string) bool {
	for _, v := range video.Extensions {
		if ext == v {
			return true
		}
	}
	return false
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	operation, dir := args[0], args[1]
	if !isDir(dir) {
		return apperr.InvalidParameter("%s is not a directory", dir)
	}

	recursive := batchOpts.recursive
	if !cmd.Flags().Changed("recursive") {
		recursive = config.Batch.Recursive
	}
	pool := application.Pool(batchOpts.concurrency)

	var (
		report *models.BatchReport
		err    error
	)
	switch operation {
	case "pdf-text":
		report, err = application.PDFText.Batch(ctx, pool, dir, batchOpts.output, recursive)
	case "docx-text":
		report, err = application.DOCX.Batch(ctx, pool, dir, batchOpts.output, recursive)
	case "pdf-image":
		if batchOpts.output == "" {
			return apperr.InvalidParameter("pdf-image needs --output")
		}
		opts, optsErr := imageOptions()
		if optsErr != nil {
			return optsErr
		}
		report, err = application.PDFImage.Batch(ctx, pool, dir, batchOpts.output, recursive, false, opts)
	case "audio":
		outDir := batchOpts.output
		if outDir == "" {
			outDir = dir
		}
		report, err = application.Audio.Batch(ctx, pool, dir, outDir, recursive, application.AudioOptions())
	case "analyze":
		report, err = batchAnalyze(ctx, pool, dir, recursive)
	default:
		return apperr.InvalidParameter("unknown batch operation %q (%s)", operation, strings.Join(cmd.ValidArgs, ", "))
	}
	if err != nil {
		return err
	}

	return printReport(report, batchOpts.report)
}

// batchAnalyze submits every supported file under dir. All workers share one
// client and therefore one connection pool.
func batchAnalyze(ctx context.Context, pool *worker.Pool, dir string, recursive bool) (*models.BatchReport, error) {
	client, err := application.Client()
	if err != nil {
		return nil, err
	}
	exts := append([]string{".pdf", ".docx", ".txt", ".md", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".wav", ".mp3", ".m4a", ".ogg", ".flac"}, video.Extensions...)
	files, err := worker.FindFiles(dir, recursive, exts...)
	if err != nil {
		return nil, err
	}

	return pool.Run(ctx, "analyze", files, func(ctx context.Context, path string) (interface{}, error) {
		result, err := analyzePath(ctx, client, path)
		if err != nil {
			return nil, err
		}
		if batchOpts.output == "" {
			return result, nil
		}
		out := worker.OutputPath(dir, path, batchOpts.output, ".json")
		data, err := result.MarshalJSON()
		if err != nil {
			return nil, err
		}
		if err := worker.SaveText(string(data), out); err != nil {
			return nil, err
		}
		return out, nil
	}), nil
}
