package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/workdir"
	"github.com/ternarybob/assay/internal/worker"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// ImageFormat is an output raster format.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatTIFF ImageFormat = "tiff"
	FormatBMP  ImageFormat = "bmp"
)

// jpegQuality is the quality used for JPEG output.
const jpegQuality = 90

// ParseImageFormat accepts png, jpg/jpeg, tif/tiff and bmp in any case.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png", "":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	}
	return "", apperr.InvalidParameter("unsupported image format %q", s)
}

// Extension returns the file extension without the dot.
func (f ImageFormat) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// Encode writes img in format f.
func (f ImageFormat) Encode(w io.Writer, img image.Image) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatBMP:
		return bmp.Encode(w, img)
	}
	return apperr.InvalidParameter("unsupported image format %q", string(f))
}

// ImageOptions controls rasterisation. DPI must be positive; no other policy
// is applied to it.
type ImageOptions struct {
	DPI    int
	Format ImageFormat
	// Prefix names per-page files <prefix>_<n>.<ext>. Defaults to "page".
	Prefix string
}

// pageFilePattern matches pdftoppm output such as page-1.png or page-007.png.
var pageFilePattern = regexp.MustCompile(`-(\d+)\.png$`)

// ImageConverter rasterises PDF pages with poppler's pdftoppm.
type ImageConverter struct {
	logger  arbor.ILogger
	runner  interfaces.ToolRunner
	workdir *workdir.Manager
}

// NewImageConverter creates a converter running pdftoppm through runner.
func NewImageConverter(logger arbor.ILogger, runner interfaces.ToolRunner, wd *workdir.Manager) *ImageConverter {
	return &ImageConverter{
		logger:  logger,
		runner:  runner,
		workdir: wd,
	}
}

// ToPageImages writes one image per page to outDir and returns the paths in
// page order.
func (c *ImageConverter) ToPageImages(ctx context.Context, path, outDir string, opts ImageOptions) ([]string, error) {
	opts, err := normalizeImageOptions(opts)
	if err != nil {
		return nil, err
	}

	pages, err := c.rasterize(ctx, path, opts.DPI)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, apperr.IO(outDir, err)
	}

	paths := make([]string, 0, len(pages))
	for i, img := range pages {
		out := filepath.Join(outDir, fmt.Sprintf("%s_%d.%s", opts.Prefix, i+1, opts.Format.Extension()))
		if err := writeImage(out, img, opts.Format); err != nil {
			return nil, err
		}
		paths = append(paths, out)
	}

	c.logger.Debug().
		Str("path", path).
		Int("pages", len(paths)).
		Str("out_dir", outDir).
		Msg("Converted PDF pages to images")

	return paths, nil
}

// ToSingleImage stacks every page vertically, in document order, on a white
// canvas as wide as the widest page.
func (c *ImageConverter) ToSingleImage(ctx context.Context, path, outPath string, opts ImageOptions) error {
	opts, err := normalizeImageOptions(opts)
	if err != nil {
		return err
	}

	pages, err := c.rasterize(ctx, path, opts.DPI)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return apperr.IO(outPath, err)
	}
	if err := writeImage(outPath, combineVertical(pages), opts.Format); err != nil {
		return err
	}

	c.logger.Debug().
		Str("path", path).
		Int("pages", len(pages)).
		Str("output", outPath).
		Msg("Converted PDF to single image")

	return nil
}

// Batch converts every PDF under dir. With single set each PDF becomes one
// combined image, otherwise a sub-directory of page images.
func (c *ImageConverter) Batch(ctx context.Context, pool *worker.Pool, dir, outDir string, recursive, single bool, opts ImageOptions) (*models.BatchReport, error) {
	if _, err := normalizeImageOptions(opts); err != nil {
		return nil, err
	}
	files, err := worker.FindFiles(dir, recursive, ".pdf")
	if err != nil {
		return nil, err
	}

	return pool.Run(ctx, "pdf-image", files, func(ctx context.Context, path string) (interface{}, error) {
		if single {
			format, _ := ParseImageFormat(string(opts.Format))
			out := worker.OutputPath(dir, path, outDir, format.Extension())
			if err := c.ToSingleImage(ctx, path, out, opts); err != nil {
				return nil, err
			}
			return out, nil
		}
		paths, err := c.ToPageImages(ctx, path, worker.OutputStem(dir, path, outDir), opts)
		if err != nil {
			return nil, err
		}
		return paths, nil
	}), nil
}

func normalizeImageOptions(opts ImageOptions) (ImageOptions, error) {
	if opts.DPI <= 0 {
		return opts, apperr.InvalidParameter("dpi must be positive, got %d", opts.DPI)
	}
	format, err := ParseImageFormat(string(opts.Format))
	if err != nil {
		return opts, err
	}
	opts.Format = format
	if opts.Prefix == "" {
		opts.Prefix = "page"
	}
	return opts, nil
}

// rasterize renders every page to PNG in a scratch dir and decodes them in
// page order.
func (c *ImageConverter) rasterize(ctx context.Context, path string, dpi int) ([]image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.IO(path, err)
	}

	dir, err := c.workdir.Create("pdf-image")
	if err != nil {
		return nil, apperr.IO(c.workdir.Root(), err)
	}
	defer dir.Remove()

	result, err := c.runner.Run(ctx, "pdftoppm", "-r", strconv.Itoa(dpi), "-png", path, dir.Join("page"))
	if err != nil {
		return nil, apperr.DocumentUnreadable(path, fmt.Errorf("failed to run pdftoppm: %w", err))
	}
	if result.ExitCode != 0 {
		c.logger.Warn().
			Str("path", path).
			Int("exit_code", result.ExitCode).
			Str("stderr", string(result.Stderr)).
			Msg("pdftoppm failed")
		return nil, apperr.DocumentUnreadable(path,
			fmt.Errorf("pdftoppm exited with code %d: %s", result.ExitCode, strings.TrimSpace(string(result.Stderr))))
	}

	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		return nil, apperr.IO(dir.Path, err)
	}

	type pageFile struct {
		num  int
		path string
	}
	var files []pageFile
	for _, entry := range entries {
		m := pageFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		files = append(files, pageFile{num: num, path: dir.Join(entry.Name())})
	}
	if len(files) == 0 {
		return nil, apperr.New(apperr.KindDocumentUnreadable, path, "no pages rendered", nil)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].num < files[j].num })

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, apperr.IO(f.path, err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, apperr.DocumentUnreadable(path, fmt.Errorf("page %d: %w", f.num, err))
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// combineVertical stacks images top to bottom, left aligned, on white.
func combineVertical(pages []image.Image) image.Image {
	width, height := 0, 0
	for _, p := range pages {
		b := p.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	y := 0
	for _, p := range pages {
		b := p.Bounds()
		draw.Draw(canvas, image.Rect(0, y, b.Dx(), y+b.Dy()), p, b.Min, draw.Over)
		y += b.Dy()
	}
	return canvas
}

func writeImage(path string, img image.Image, format ImageFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.IO(path, err)
	}
	if err := format.Encode(f, img); err != nil {
		f.Close()
		return apperr.IO(path, err)
	}
	if err := f.Close(); err != nil {
		return apperr.IO(path, err)
	}
	return nil
}
