package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/services/merge"
	"github.com/ternarybob/assay/internal/services/pdf"
)

var pdfTextCmd = &cobra.Command{
	Use:   "pdf-text <file.pdf|dir>",
	Short: "Extract text from a PDF, or every PDF in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runPDFText,
}

var pdfTextOpts struct {
	output    string
	recursive bool
	pages     bool
	metadata  bool
	format    string
}

var pdfImageCmd = &cobra.Command{
	Use:   "pdf-image <file.pdf|dir>",
	Short: "Rasterise PDF pages to images",
	Args:  cobra.ExactArgs(1),
	RunE:  runPDFImage,
}

var pdfImageOpts struct {
	output    string
	dpi       int
	format    string
	prefix    string
	single    bool
	recursive bool
}

var docxTextCmd = &cobra.Command{
	Use:   "docx-text <file.docx|dir>",
	Short: "Extract text, structure, tables or metadata from a DOCX file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDOCXText,
}

var docxOpts struct {
	output     string
	structured bool
	tables     bool
	metadata   bool
	format     string
	recursive  bool
}

var mergeCmd = &cobra.Command{
	Use:   "merge [files...]",
	Short: "Merge documents into one text with section headers",
	Long: `Merges PDF, DOCX, TXT and Markdown files in the given order. Each section is
headed by its title; --titles sets them explicitly, otherwise the file name is used.
With --job and --cv the sections are titled JOB DESCRIPTION and RESUME.`,
	RunE: runMerge,
}

var mergeOpts struct {
	output    string
	pdf       string
	titles    []string
	job       string
	cv        string
	separator string
	split     bool
}

func init() {
	f := pdfTextCmd.Flags()
	f.StringVarP(&pdfTextOpts.output, "output", "o", "", "Output file (or directory in batch mode); stdout when empty")
	f.BoolVarP(&pdfTextOpts.recursive, "recursive", "r", false, "Recurse into sub-directories in batch mode")
	f.BoolVar(&pdfTextOpts.pages, "pages", false, "Emit per-page text as structured output")
	f.BoolVar(&pdfTextOpts.metadata, "metadata", false, "Emit document metadata instead of text")
	f.StringVar(&pdfTextOpts.format, "format", "json", "Structured output format: json or yaml")
	f.Float64Var(&layoutFlags.lineMargin, "line-margin", 0, "Layout line margin (overrides config)")
	f.Float64Var(&layoutFlags.charMargin, "char-margin", 0, "Layout char margin (overrides config)")
	f.Float64Var(&layoutFlags.wordMargin, "word-margin", 0, "Layout word margin (overrides config)")
	f.Float64Var(&layoutFlags.boxesFlow, "boxes-flow", 0, "Layout boxes flow, -1..1 (overrides config)")
	f.BoolVar(&layoutFlags.noVertical, "no-vertical", false, "Disable vertical text detection")

	f = pdfImageCmd.Flags()
	f.StringVarP(&pdfImageOpts.output, "output", "o", "", "Output directory, or image file with --single (required)")
	f.IntVar(&pdfImageOpts.dpi, "dpi", 0, "Rendering resolution (default from config)")
	f.StringVar(&pdfImageOpts.format, "format", "", "Image format: png, jpeg, tiff, bmp (default from config)")
	f.StringVar(&pdfImageOpts.prefix, "prefix", "page", "File name prefix for page images")
	f.BoolVar(&pdfImageOpts.single, "single", false, "Stack all pages into one image")
	f.BoolVarP(&pdfImageOpts.recursive, "recursive", "r", false, "Recurse into sub-directories in batch mode")
	_ = pdfImageCmd.MarkFlagRequired("output")

	f = docxTextCmd.Flags()
	f.StringVarP(&docxOpts.output, "output", "o", "", "Output file (or directory in batch mode); stdout when empty")
	f.BoolVar(&docxOpts.structured, "structured", false, "Emit headings, paragraphs, lists and tables")
	f.BoolVar(&docxOpts.tables, "tables", false, "Emit tables only")
	f.BoolVar(&docxOpts.metadata, "metadata", false, "Emit document properties and counts")
	f.StringVar(&docxOpts.format, "format", "json", "Structured output format: json or yaml")
	f.BoolVarP(&docxOpts.recursive, "recursive", "r", false, "Recurse into sub-directories in batch mode")

	f = mergeCmd.Flags()
	f.StringVarP(&mergeOpts.output, "output", "o", "", "Output text file; stdout when empty")
	f.StringVar(&mergeOpts.pdf, "pdf", "", "Also render the merged text to this PDF")
	f.StringSliceVar(&mergeOpts.titles, "titles", nil, "Section titles, one per file, in order")
	f.StringVar(&mergeOpts.job, "job", "", "Job description document")
	f.StringVar(&mergeOpts.cv, "cv", "", "CV / resume document")
	f.StringVar(&mergeOpts.separator, "separator", "", "Section separator (default from config)")
	f.BoolVar(&mergeOpts.split, "split", false, "Split an existing merged text file into sections instead")
}

// layoutFlags override the configured layout parameters when set.
var layoutFlags struct {
	lineMargin, charMargin, wordMargin, boxesFlow float64
	noVertical                                    bool
}

func layoutParams(cmd *cobra.Command) pdf.LayoutParams {
	params := application.LayoutParams()
	flags := cmd.Flags()
	if flags.Changed("line-margin") {
		params.LineMargin = layoutFlags.lineMargin
	}
	if flags.Changed("char-margin") {
		params.CharMargin = layoutFlags.charMargin
	}
	if flags.Changed("word-margin") {
		params.WordMargin = layoutFlags.wordMargin
	}
	if flags.Changed("boxes-flow") {
		params.BoxesFlow = layoutFlags.boxesFlow
	}
	if layoutFlags.noVertical {
		params.DetectVertical = false
	}
	return params
}

func runPDFText(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]
	extractor := application.PDFText

	if isDir(path) {
		report, err := extractor.Batch(ctx, application.Pool(0), path, pdfTextOpts.output, pdfTextOpts.recursive)
		if err != nil {
			return err
		}
		return printReport(report, "")
	}

	if pdfTextOpts.metadata || pdfTextOpts.pages {
		return describePDF(ctx, extractor, path)
	}

	text, err := extractor.ExtractTextWithParams(ctx, path, layoutParams(cmd))
	if err != nil {
		return err
	}
	return writeText(pdfTextOpts.output, text)
}

// describePDF writes the metadata (--metadata) or per-page text (--pages) of path.
func describePDF(ctx context.Context, extractor interfaces.PDFExtractor, path string) error {
	if pdfTextOpts.metadata {
		meta, err := extractor.GetMetadata(ctx, path)
		if err != nil {
			return err
		}
		return writeValue(pdfTextOpts.output, pdfTextOpts.format, meta)
	}
	pages, err := extractor.ExtractPages(ctx, path)
	if err != nil {
		return err
	}
	return writeValue(pdfTextOpts.output, pdfTextOpts.format, pages)
}

// imageOptions combines pdf-image flags with the configured defaults.
func imageOptions() (pdf.ImageOptions, error) {
	dpi := pdfImageOpts.dpi
	if dpi == 0 {
		dpi = config.PDF.DPI
	}
	name := pdfImageOpts.format
	if name == "" {
		name = config.PDF.ImageFormat
	}
	format, err := pdf.ParseImageFormat(name)
	if err != nil {
		return pdf.ImageOptions{}, err
	}
	prefix := pdfImageOpts.prefix
	if prefix == "" {
		prefix = "page"
	}
	return pdf.ImageOptions{DPI: dpi, Format: format, Prefix: prefix}, nil
}

func runPDFImage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	opts, err := imageOptions()
	if err != nil {
		return err
	}

	if isDir(path) {
		report, err := application.PDFImage.Batch(ctx, application.Pool(0), path, pdfImageOpts.output,
			pdfImageOpts.recursive, pdfImageOpts.single, opts)
		if err != nil {
			return err
		}
		return printReport(report, "")
	}

	if pdfImageOpts.single {
		if err := application.PDFImage.ToSingleImage(ctx, path, pdfImageOpts.output, opts); err != nil {
			return err
		}
		fmt.Println(pdfImageOpts.output)
		return nil
	}

	paths, err := application.PDFImage.ToPageImages(ctx, path, pdfImageOpts.output, opts)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func runDOCXText(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]
	extractor := application.DOCX

	if isDir(path) {
		report, err := extractor.Batch(ctx, application.Pool(0), path, docxOpts.output, docxOpts.recursive)
		if err != nil {
			return err
		}
		return printReport(report, "")
	}

	var (
		value interface{}
		err   error
	)
	switch {
	case docxOpts.structured:
		value, err = extractor.ExtractStructured(ctx, path)
	case docxOpts.tables:
		value, err = extractor.ExtractTables(ctx, path)
	case docxOpts.metadata:
		value, err = extractor.ExtractMetadata(ctx, path)
	default:
		text, err := extractor.ExtractText(ctx, path)
		if err != nil {
			return err
		}
		return writeText(docxOpts.output, text)
	}
	if err != nil {
		return err
	}
	return writeValue(docxOpts.output, docxOpts.format, value)
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	merger := application.Merger

	opts := application.MergeOptions(mergeOpts.output)
	if mergeOpts.separator != "" {
		opts.Separator = mergeOpts.separator
	}

	if mergeOpts.split {
		return splitMerged(args, opts.Separator)
	}

	var (
		text string
		err  error
	)
	switch {
	case mergeOpts.job != "" || mergeOpts.cv != "":
		if mergeOpts.job == "" || mergeOpts.cv == "" || len(args) > 0 {
			return apperr.InvalidParameter("--job and --cv must be given together and without other files")
		}
		text, err = merger.MergeJobAndCV(ctx, mergeOpts.job, mergeOpts.cv, opts)
	default:
		spec, specErr := mergeSpec(args, mergeOpts.titles)
		if specErr != nil {
			return specErr
		}
		text, err = merger.Merge(ctx, spec, opts)
	}
	if err != nil {
		return err
	}

	if mergeOpts.output == "" {
		if err := writeText("", text); err != nil {
			return err
		}
	}
	if mergeOpts.pdf != "" {
		title := strings.TrimSuffix(filepath.Base(mergeOpts.pdf), filepath.Ext(mergeOpts.pdf))
		if err := merger.SavePDF(text, title, mergeOpts.pdf); err != nil {
			return err
		}
		logger.Info().Str("output", mergeOpts.pdf).Msg("Merged PDF saved")
	}
	return nil
}

// mergeSpec pairs files with titles. Without titles each file is titled by
// its name.
func mergeSpec(files, titles []string) (models.MergeSpec, error) {
	if len(files) == 0 {
		return models.MergeSpec{}, apperr.InvalidParameter("no files to merge")
	}
	if len(titles) > 0 && len(titles) != len(files) {
		return models.MergeSpec{}, apperr.InvalidParameter("got %d titles for %d files", len(titles), len(files))
	}
	spec := models.MergeSpec{Sections: make([]models.MergeSection, len(files))}
	for i, file := range files {
		title := merge.TitleFromPath(file)
		if len(titles) > 0 {
			title = titles[i]
		}
		spec.Sections[i] = models.MergeSection{Path: file, Title: title}
	}
	return spec, nil
}

func splitMerged(args []string, separator string) error {
	if len(args) != 1 {
		return apperr.InvalidParameter("--split takes exactly one merged text file")
	}
	text, err := readUTF8(args[0])
	if err != nil {
		return err
	}
	if separator == "" {
		separator = merge.DefaultSeparator
	}
	sections, err := merge.SplitWithSeparator(text, separator)
	if err != nil {
		return err
	}
	return writeValue(mergeOpts.output, "json", sections)
}
