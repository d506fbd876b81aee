// Package video wraps ffprobe and ffmpeg for frame sampling, audio
// extraction and transcoding.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
)

// Stream is one entry of ffprobe's "streams" array.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name,omitempty"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	SampleRate   string `json:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

// Format is ffprobe's container section.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration,omitempty"`
	Size       string `json:"size,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
}

// ProbeResult is the decoded output of ffprobe -show_format -show_streams.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Duration returns the container duration in seconds, falling back to the
// longest stream. ok is false when neither is reported.
func (p *ProbeResult) Duration() (seconds float64, ok bool) {
	if d, err := strconv.ParseFloat(p.Format.Duration, 64); err == nil && d > 0 {
		return d, true
	}
	for _, s := range p.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > seconds {
			seconds, ok = d, true
		}
	}
	return seconds, ok
}

// AudioStreams returns the audio streams in index order.
func (p *ProbeResult) AudioStreams() []Stream {
	var out []Stream
	for _, s := range p.Streams {
		if s.CodecType == "audio" {
			out = append(out, s)
		}
	}
	return out
}

// VideoStream returns the first video stream, or nil.
func (p *ProbeResult) VideoStream() *Stream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

// Prober runs ffprobe.
type Prober struct {
	logger arbor.ILogger
	runner interfaces.ToolRunner
}

// NewProber creates a prober using runner.
func NewProber(logger arbor.ILogger, runner interfaces.ToolRunner) *Prober {
	return &Prober{logger: logger, runner: runner}
}

// Probe reads container and stream information. Anything ffprobe cannot
// parse is MediaUnreadable.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	result, err := p.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, apperr.MediaUnreadable(path, err)
	}
	if result.ExitCode != 0 {
		return nil, toolFailure(p.logger, "ffprobe", path, result)
	}

	var probe ProbeResult
	if err := json.Unmarshal(result.Stdout, &probe); err != nil {
		return nil, apperr.MediaUnreadable(path, fmt.Errorf("invalid ffprobe output: %w", err))
	}
	if len(probe.Streams) == 0 {
		return nil, apperr.Newf(apperr.KindMediaUnreadable, path, "no streams found")
	}
	return &probe, nil
}

// toolFailure logs a non-zero exit with the tool's diagnostics and converts
// it to MediaUnreadable. stderr is carried in the message, never parsed.
func toolFailure(logger arbor.ILogger, tool, path string, result *interfaces.ToolResult) error {
	stderr := strings.TrimSpace(string(result.Stderr))
	logger.Warn().
		Str("tool", tool).
		Str("path", path).
		Int("exit_code", result.ExitCode).
		Str("stderr", stderr).
		Msg("External tool failed")
	return apperr.MediaUnreadable(path, fmt.Errorf("%s exited with code %d: %s", tool, result.ExitCode, stderr))
}

// runFFmpeg runs ffmpeg and maps a start failure or non-zero exit to
// MediaUnreadable for path.
func runFFmpeg(ctx context.Context, runner interfaces.ToolRunner, logger arbor.ILogger, path string, args ...string) error {
	result, err := runner.Run(ctx, "ffmpeg", args...)
	if err != nil {
		return apperr.MediaUnreadable(path, fmt.Errorf("failed to run ffmpeg: %w", err))
	}
	if result.ExitCode != 0 {
		return toolFailure(logger, "ffmpeg", path, result)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
