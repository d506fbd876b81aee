package video

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/workdir"
	"github.com/ternarybob/assay/internal/worker"
)

// Extensions are the video inputs picked up by directory batches.
var Extensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm", ".flv", ".wmv", ".m4v", ".mpg", ".mpeg"}

var defaultCodecs = map[string]string{
	"wav":  "pcm_s16le",
	"mp3":  "libmp3lame",
	"aac":  "aac",
	"m4a":  "aac",
	"ogg":  "libvorbis",
	"flac": "flac",
}

var audioMIMETypes = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"aac":  "audio/aac",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
}

// DefaultCodec returns the ffmpeg encoder for an output format. Unknown
// formats get 16-bit PCM.
func DefaultCodec(format string) string {
	if c, ok := defaultCodecs[strings.ToLower(format)]; ok {
		return c
	}
	return "pcm_s16le"
}

// MIMEType returns the content type for an audio format.
func MIMEType(format string) string {
	if m, ok := audioMIMETypes[strings.ToLower(format)]; ok {
		return m
	}
	return "application/octet-stream"
}

// AudioOptions selects the output container, codec and sampling.
type AudioOptions struct {
	Format     string `json:"format" toml:"format" validate:"required,alphanum"`
	Codec      string `json:"codec" toml:"codec"`
	SampleRate int    `json:"sample_rate" toml:"sample_rate" validate:"gt=0"`
	Channels   int    `json:"channels" toml:"channels" validate:"min=1,max=8"`
}

// DefaultAudioOptions is 16 kHz mono WAV.
func DefaultAudioOptions() AudioOptions {
	return AudioOptions{Format: "wav", SampleRate: 16000, Channels: 1}
}

func (o AudioOptions) codec() string {
	if o.Codec != "" {
		return o.Codec
	}
	return DefaultCodec(o.Format)
}

// AudioInfo describes the first audio stream of a file.
type AudioInfo struct {
	Codec      string  `json:"codec"`
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sample_rate"`
	BitRate    int64   `json:"bit_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Streams    int     `json:"streams"`
}

// AudioExtractor demuxes and re-encodes the audio track of a video.
type AudioExtractor struct {
	logger   arbor.ILogger
	runner   interfaces.ToolRunner
	prober   *Prober
	workdir  *workdir.Manager
	validate *validator.Validate
}

// NewAudioExtractor creates an audio extractor running ffmpeg through runner.
func NewAudioExtractor(logger arbor.ILogger, runner interfaces.ToolRunner, wd *workdir.Manager) *AudioExtractor {
	return &AudioExtractor{
		logger:   logger,
		runner:   runner,
		prober:   NewProber(logger, runner),
		workdir:  wd,
		validate: validator.New(),
	}
}

// Extract returns the audio of in-memory video encoded per opts. A video
// without audio fails with NoAudioTrack; one ffprobe cannot read fails with
// MediaUnreadable.
func (e *AudioExtractor) Extract(ctx context.Context, data []byte, opts AudioOptions) ([]byte, error) {
	opts, err := e.normalize(opts)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperr.Newf(apperr.KindMediaUnreadable, "", "empty video data")
	}

	dir, err := e.workdir.Create("audio")
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

// ExtractFile is Extract for a video on disk.
func (e *AudioExtractor) ExtractFile(ctx context.Context, path string, opts AudioOptions) ([]byte, error) {
	opts, err := e.normalize(opts)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.IO(path, err)
	}

	dir, err := e.workdir.Create("audio")
	if err != nil {
		return nil, apperr.IO(e.workdir.Root(), err)
	}
	defer dir.Remove()

	return e.extract(ctx, path, dir, opts)
}

// ExtractToFile writes the audio of the video at in to out.
func (e *AudioExtractor) ExtractToFile(ctx context.Context, in, out string, opts AudioOptions) error {
	audio, err := e.ExtractFile(ctx, in, opts)
	if err != nil {
		return err
	}
	return writeFile(out, audio)
}

// Info describes the first audio stream of the file at path.
func (e *AudioExtractor) Info(ctx context.Context, path string) (*AudioInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperr.IO(path, err)
	}
	probe, err := e.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	streams := probe.AudioStreams()
	if len(streams) == 0 {
		return nil, apperr.Newf(apperr.KindNoAudioTrack, path, "no audio stream")
	}

	s := streams[0]
	info := &AudioInfo{
		Codec:    s.CodecName,
		Channels: s.Channels,
		Streams:  len(streams),
	}
	info.SampleRate, _ = strconv.Atoi(s.SampleRate)
	info.BitRate, _ = strconv.ParseInt(s.BitRate, 10, 64)
	info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
	return info, nil
}

// Batch extracts audio from every video under dir into outDir as
// <name>.<format>. Failures are recorded per file; the batch itself only
// fails when dir cannot be listed.
func (e *AudioExtractor) Batch(ctx context.Context, pool *worker.Pool, dir, outDir string, recursive bool, opts AudioOptions) (*models.BatchReport, error) {
	opts, err := e.normalize(opts)
	if err != nil {
		return nil, err
	}
	files, err := worker.FindFiles(dir, recursive, Extensions...)
	if err != nil {
		return nil, err
	}

	return pool.Run(ctx, "audio", files, func(ctx context.Context, path string) (interface{}, error) {
		out := worker.OutputPath(dir, path, outDir, opts.Format)
		if err := e.ExtractToFile(ctx, path, out, opts); err != nil {
			return nil, err
		}
		return out, nil
	}), nil
}

// normalize fills unset fields from DefaultAudioOptions and validates the result.
func (e *AudioExtractor) normalize(opts AudioOptions) (AudioOptions, error) {
	def := DefaultAudioOptions()
	if opts.Format == "" {
		opts.Format = def.Format
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.Channels == 0 {
		opts.Channels = def.Channels
	}
	if err := e.validate.Struct(opts); err != nil {
		return opts, apperr.InvalidParameter("invalid audio options: %v", err)
	}
	return opts, nil
}

func (e *AudioExtractor) extract(ctx context.Context, input string, dir *workdir.Dir, opts AudioOptions) ([]byte, error) {
	probe, err := e.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(probe.AudioStreams()) == 0 {
		return nil, apperr.Newf(apperr.KindNoAudioTrack, input, "no audio stream")
	}

	format := strings.ToLower(opts.Format)
	output := dir.Join("audio." + format)
	err = runFFmpeg(ctx, e.runner, e.logger, input,
		"-i", input,
		"-vn",
		"-acodec", opts.codec(),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-ac", strconv.Itoa(opts.Channels),
		"-y", output,
	)
	if err != nil {
		return nil, err
	}

	audio, err := os.ReadFile(output)
	if err != nil {
		return nil, apperr.MediaUnreadable(input, err)
	}

	e.logger.Debug().
		Str("input", input).
		Str("format", format).
		Int("bytes", len(audio)).
		Msg("Extracted audio track")
	return audio, nil
}
