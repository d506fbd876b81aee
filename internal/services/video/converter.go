package video

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/workdir"
)

// ConvertOptions selects the target encoding. Zero values leave the source
// setting unchanged.
type ConvertOptions struct {
	Format       string   `json:"format,omitempty" toml:"format"`
	Codec        string   `json:"codec,omitempty" toml:"codec"`
	Width        int      `json:"width,omitempty" toml:"width" validate:"gte=0"`
	Height       int      `json:"height,omitempty" toml:"height" validate:"gte=0"`
	FPS          float64  `json:"fps,omitempty" toml:"fps" validate:"gte=0"`
	Bitrate      string   `json:"bitrate,omitempty" toml:"bitrate"`
	Preset       string   `json:"preset,omitempty" toml:"preset"`
	CRF          *int     `json:"crf,omitempty" toml:"crf" validate:"omitempty,min=0,max=51"`
	AudioCodec   string   `json:"audio_codec,omitempty" toml:"audio_codec"`
	AudioBitrate string   `json:"audio_bitrate,omitempty" toml:"audio_bitrate"`
	Extra        []string `json:"extra,omitempty" toml:"extra"`
}

// TrimOptions selects a segment. Duration and End are exclusive; with
// neither set the segment runs to the end of the input.
type TrimOptions struct {
	Start    float64 `validate:"gte=0"`
	Duration float64 `validate:"gte=0"`
	End      float64 `validate:"gte=0"`
}

// Optimisation targets applied by Optimize.
const (
	DefaultMaxDimension = 1280
	optimizeFPS         = 30
	optimizeCRF         = 23
)

// Converter transcodes video with ffmpeg.
type Converter struct {
	logger   arbor.ILogger
	runner   interfaces.ToolRunner
	prober   *Prober
	workdir  *workdir.Manager
	validate *validator.Validate
}

// NewConverter creates a converter running ffmpeg through runner.
func NewConverter(logger arbor.ILogger, runner interfaces.ToolRunner, wd *workdir.Manager) *Converter {
	return &Converter{
		logger:   logger,
		runner:   runner,
		prober:   NewProber(logger, runner),
		workdir:  wd,
		validate: validator.New(),
	}
}

// checkDimensions enforces the codec constraint that frame sizes are even
// and that width and height come together.
func checkDimensions(width, height int) error {
	if width == 0 && height == 0 {
		return nil
	}
	if width <= 0 || height <= 0 {
		return apperr.InvalidParameter("width and height must be set together (got %dx%d)", width, height)
	}
	if width%2 != 0 || height%2 != 0 {
		return apperr.InvalidParameter("width and height must be even (got %dx%d)", width, height)
	}
	return nil
}

// Validate checks options without touching any file or tool.
func (c *Converter) Validate(opts ConvertOptions) error {
	if err := c.validate.Struct(opts); err != nil {
		return apperr.InvalidParameter("invalid conversion options: %v", err)
	}
	return checkDimensions(opts.Width, opts.Height)
}

// Args builds the ffmpeg argument list for a conversion.
func (opts ConvertOptions) Args(in, out string) []string {
	args := []string{"-i", in}
	if opts.Codec != "" {
		args = append(args, "-c:v", opts.Codec)
	}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-s", strconv.Itoa(opts.Width)+"x"+strconv.Itoa(opts.Height))
	}
	if opts.FPS > 0 {
		args = append(args, "-r", formatFloat(opts.FPS))
	}
	if opts.Bitrate != "" {
		args = append(args, "-b:v", opts.Bitrate)
	}
	// preset and crf are x264/x265 options.
	x26x := strings.Contains(opts.Codec, "x264") || strings.Contains(opts.Codec, "x265")
	if opts.Preset != "" && x26x {
		args = append(args, "-preset", opts.Preset)
	}
	if opts.CRF != nil && x26x {
		args = append(args, "-crf", strconv.Itoa(*opts.CRF))
	}
	if opts.AudioCodec != "" {
		args = append(args, "-c:a", opts.AudioCodec)
	}
	if opts.AudioBitrate != "" {
		args = append(args, "-b:a", opts.AudioBitrate)
	}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	args = append(args, opts.Extra...)
	return append(args, "-y", out)
}

// Convert transcodes in to out. Options are validated before any tool runs.
func (c *Converter) Convert(ctx context.Context, in, out string, opts ConvertOptions) error {
	if err := c.Validate(opts); err != nil {
		return err
	}
	if err := prepare(in, out); err != nil {
		return err
	}

	c.logger.Info().
		Str("input", in).
		Str("output", out).
		Str("codec", opts.Codec).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Msg("Converting video")

	return runFFmpeg(ctx, c.runner, c.logger, in, opts.Args(in, out)...)
}

// Info returns the full ffprobe description of a file.
func (c *Converter) Info(ctx context.Context, path string) (*ProbeResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.IO(path, err)
	}
	return c.prober.Probe(ctx, path)
}

// OptimizedDimensions scales width x height so the longer side is at most
// maxDimension, keeping the aspect ratio and rounding down to even sizes.
func OptimizedDimensions(width, height, maxDimension int) (int, int) {
	switch {
	case width >= height && width > maxDimension:
		height = height * maxDimension / width
		width = maxDimension
	case height > width && height > maxDimension:
		width = width * maxDimension / height
		height = maxDimension
	}
	return evenDown(width), evenDown(height)
}

func evenDown(n int) int {
	n -= n % 2
	if n < 2 {
		return 2
	}
	return n
}

// OptimizedPath is the default output of Optimize: <base>_optimized.mp4.
func OptimizedPath(in string) string {
	return strings.TrimSuffix(in, filepath.Ext(in)) + "_optimized.mp4"
}

// Optimize re-encodes in as H.264/AAC at 30 fps with the longer side capped
// at maxDimension. An empty out selects OptimizedPath(in).
func (c *Converter) Optimize(ctx context.Context, in, out string, maxDimension int) (string, error) {
	if maxDimension < 2 {
		return "", apperr.InvalidParameter("max dimension must be at least 2 (got %d)", maxDimension)
	}
	probe, err := c.Info(ctx, in)
	if err != nil {
		return "", err
	}
	stream := probe.VideoStream()
	if stream == nil || stream.Width == 0 || stream.Height == 0 {
		return "", apperr.Newf(apperr.KindMediaUnreadable, in, "no video stream")
	}
	if out == "" {
		out = OptimizedPath(in)
	}

	width, height := OptimizedDimensions(stream.Width, stream.Height, maxDimension)
	crf := optimizeCRF
	err = c.Convert(ctx, in, out, ConvertOptions{
		Codec:        "libx264",
		Width:        width,
		Height:       height,
		FPS:          optimizeFPS,
		Preset:       "medium",
		CRF:          &crf,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Thumbnail writes a single JPEG frame taken offset seconds in. Width and
// height follow the same rules as Convert.
func (c *Converter) Thumbnail(ctx context.Context, in, out string, offset float64, width, height int) error {
	if offset < 0 {
		return apperr.InvalidParameter("time offset must not be negative (got %v)", offset)
	}
	if err := checkDimensions(width, height); err != nil {
		return err
	}
	if err := prepare(in, out); err != nil {
		return err
	}

	args := []string{"-i", in, "-ss", formatFloat(offset)}
	if width > 0 {
		args = append(args, "-s", strconv.Itoa(width)+"x"+strconv.Itoa(height))
	}
	args = append(args, "-frames:v", "1", "-q:v", "2", "-y", out)
	return runFFmpeg(ctx, c.runner, c.logger, in, args...)
}

// Trim copies a segment of in to out without re-encoding.
func (c *Converter) Trim(ctx context.Context, in, out string, opts TrimOptions) error {
	if err := c.validate.Struct(opts); err != nil {
		return apperr.InvalidParameter("invalid trim options: %v", err)
	}
	if opts.Duration > 0 && opts.End > 0 {
		return apperr.InvalidParameter("duration and end time are exclusive")
	}
	if opts.End > 0 && opts.End <= opts.Start {
		return apperr.InvalidParameter("end time %v must be after start time %v", opts.End, opts.Start)
	}
	if err := prepare(in, out); err != nil {
		return err
	}

	args := []string{"-i", in, "-ss", formatFloat(opts.Start)}
	switch {
	case opts.Duration > 0:
		args = append(args, "-t", formatFloat(opts.Duration))
	case opts.End > 0:
		args = append(args, "-to", formatFloat(opts.End))
	}
	args = append(args, "-c", "copy", "-y", out)
	return runFFmpeg(ctx, c.runner, c.logger, in, args...)
}

// Concat joins inputs in order using ffmpeg's concat demuxer. Streams are
// copied unless codec is set.
func (c *Converter) Concat(ctx context.Context, inputs []string, out, codec string) error {
	if len(inputs) == 0 {
		return apperr.InvalidParameter("no inputs to concatenate")
	}
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return apperr.IO(in, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return apperr.IO(out, err)
	}

	dir, err := c.workdir.Create("concat")
	if err != nil {
		return apperr.IO(c.workdir.Root(), err)
	}
	defer dir.Remove()

	var list strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return apperr.IO(in, err)
		}
		list.WriteString("file '" + strings.ReplaceAll(abs, "'", `'\''`) + "'\n")
	}
	listPath := dir.Join("inputs.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return apperr.IO(listPath, err)
	}

	args := []string{"-f", "concat", "-safe", "0", "-i", listPath}
	if codec != "" {
		args = append(args, "-c:v", codec)
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, "-y", out)
	return runFFmpeg(ctx, c.runner, c.logger, inputs[0], args...)
}

// prepare checks the input exists and creates the output directory.
func prepare(in, out string) error {
	if _, err := os.Stat(in); err != nil {
		return apperr.IO(in, err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return apperr.IO(out, err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.IO(path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperr.IO(path, err)
	}
	return nil
}
