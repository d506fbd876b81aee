package video

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/workdir"
)

// FrameMIMEType is the type of every extracted frame.
const FrameMIMEType = "image/jpeg"

var framePattern = regexp.MustCompile(`^frame_(\d+)\.jpg$`)

// FrameOptions controls sampling. Quality is ffmpeg's JPEG qscale, 1 (best)
// to 31 (worst).
type FrameOptions struct {
	FPS     float64 `json:"fps" toml:"fps" validate:"gt=0"`
	Quality int     `json:"quality" toml:"quality" validate:"min=1,max=31"`
}

// DefaultFrameOptions samples one frame per second at high quality.
func DefaultFrameOptions() FrameOptions {
	return FrameOptions{FPS: 1, Quality: 2}
}

// EncodedFrame is a frame ready for the analysis API.
type EncodedFrame struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// FrameExtractor samples JPEG frames from video at a fixed rate.
type FrameExtractor struct {
	logger   arbor.ILogger
	runner   interfaces.ToolRunner
	prober   *Prober
	workdir  *workdir.Manager
	validate *validator.Validate
}

// NewFrameExtractor creates a frame extractor running ffmpeg through runner.
func NewFrameExtractor(logger arbor.ILogger, runner interfaces.ToolRunner, wd *workdir.Manager) *FrameExtractor {
	return &FrameExtractor{
		logger:   logger,
		runner:   runner,
		prober:   NewProber(logger, runner),
		workdir:  wd,
		validate: validator.New(),
	}
}

// FrameCount is the number of frames sampled from duration seconds at fps:
// floor(duration*fps), at least one. A trailing partial interval yields no
// frame.
func FrameCount(duration, fps float64) int {
	n := int(math.Floor(duration*fps + 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// Extract samples frames from in-memory video. Frames are keyed 1..n in
// presentation order.
func (e *FrameExtractor) Extract(ctx context.Context, data []byte, opts FrameOptions) (*models.ExtractedContent, error) {
	if err := e.check(opts); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperr.Newf(apperr.KindMediaUnreadable, "", "empty video data")
	}

	dir, err := e.workdir.Create("frames")
	if err != nil {
		return nil, apperr.IO(e.workdir.Root(), err)
	}
	defer dir.Remove()

	input := dir.Join("input.bin")
	if err := os.WriteFile(input, data, 0644); err != nil {
		return nil, apperr.IO(input, err)
	}
	return e.extract(ctx, input, dir, opts)
}

// ExtractFile samples frames from a video on disk.
func (e *FrameExtractor) ExtractFile(ctx context.Context, path string, opts FrameOptions) (*models.ExtractedContent, error) {
	if err := e.check(opts); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.IO(path, err)
	}

	dir, err := e.workdir.Create("frames")
	if err != nil {
		return nil, apperr.IO(e.workdir.Root(), err)
	}
	defer dir.Remove()

	return e.extract(ctx, path, dir, opts)
}

func (e *FrameExtractor) check(opts FrameOptions) error {
	if err := e.validate.Struct(opts); err != nil {
		return apperr.InvalidParameter("invalid frame options (fps > 0, quality 1-31): %v", err)
	}
	return nil
}

func (e *FrameExtractor) extract(ctx context.Context, input string, dir *workdir.Dir, opts FrameOptions) (*models.ExtractedContent, error) {
	probe, err := e.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	if probe.VideoStream() == nil {
		return nil, apperr.Newf(apperr.KindMediaUnreadable, input, "no video stream")
	}

	framesDir := dir.Join("frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, apperr.IO(framesDir, err)
	}

	args := []string{
		"-i", input,
		"-vf", "fps=" + formatFloat(opts.FPS),
		"-qscale:v", strconv.Itoa(opts.Quality),
	}
	if duration, ok := probe.Duration(); ok {
		args = append(args, "-frames:v", strconv.Itoa(FrameCount(duration, opts.FPS)))
	}
	args = append(args, "-y", filepath.Join(framesDir, "frame_%d.jpg"))

	if err := runFFmpeg(ctx, e.runner, e.logger, input, args...); err != nil {
		return nil, err
	}

	frames, err := readFrames(framesDir)
	if err != nil {
		return nil, err
	}
	if len(frames.Blobs) == 0 {
		return nil, apperr.Newf(apperr.KindMediaUnreadable, input, "no frames decoded")
	}

	e.logger.Debug().
		Str("input", input).
		Int("frames", len(frames.Blobs)).
		Msg("Extracted video frames")

	return frames, nil
}

// readFrames loads frame_N.jpg files ordered by N and renumbers them from 1.
func readFrames(dir string) (*models.ExtractedContent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.IO(dir, err)
	}

	type frameFile struct {
		n    int
		name string
	}
	var files []frameFile
	for _, entry := range entries {
		m := framePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files = append(files, frameFile{n: n, name: entry.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	content := &models.ExtractedContent{Blobs: make(map[int][]byte, len(files))}
	for i, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return nil, apperr.IO(f.name, err)
		}
		content.Blobs[i+1] = data
	}
	return content, nil
}

// SaveFrames writes frames as <prefix><n>.jpg under dir and returns the
// paths by index.
func SaveFrames(frames *models.ExtractedContent, dir, prefix string) (map[int]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.IO(dir, err)
	}
	paths := make(map[int]string, len(frames.Blobs))
	for _, n := range frames.Indices() {
		path := filepath.Join(dir, fmt.Sprintf("%s%d.jpg", prefix, n))
		if err := os.WriteFile(path, frames.Blobs[n], 0644); err != nil {
			return nil, apperr.IO(path, err)
		}
		paths[n] = path
	}
	return paths, nil
}

// EncodeFrames base64-encodes frames for the analysis API, keyed by index.
func EncodeFrames(frames *models.ExtractedContent) map[string]EncodedFrame {
	out := make(map[string]EncodedFrame, len(frames.Blobs))
	for n, data := range frames.Blobs {
		out[strconv.Itoa(n)] = EncodedFrame{
			Data:     base64.StdEncoding.EncodeToString(data),
			MIMEType: FrameMIMEType,
		}
	}
	return out
}
