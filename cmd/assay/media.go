package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/services/video"
)

var framesCmd = &cobra.Command{
	Use:   "frames <video>",
	Short: "Sample JPEG frames from a video",
	Long: `Samples frames at --fps. The frame count is floor(duration x fps), at least one;
a trailing partial interval yields no frame. Frames are written to --output as
<prefix><n>.jpg, printed as base64 JSON with --encode, or sent to the assistant
with --analyze.`,
	Args: cobra.ExactArgs(1),
	RunE: runFrames,
}

var framesOpts struct {
	output  string
	prefix  string
	fps     float64
	quality int
	analyze bool
	encode  bool
}

var audioCmd = &cobra.Command{
	Use:   "audio <video|dir>",
	Short: "Extract the audio track of a video, or of every video in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudio,
}

var audioOpts struct {
	output     string
	format     string
	codec      string
	sampleRate int
	channels   int
	info       bool
	recursive  bool
	analyze    bool
}

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output>",
	Short: "Transcode a video with ffmpeg",
	Long: `Transcodes a video. Width and height must be given together and both be even;
invalid options are rejected before ffmpeg runs.`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

var convertOpts struct {
	video.ConvertOptions
	crf int
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize <input> [output]",
	Short: "Re-encode as H.264/AAC, 30 fps, longer side capped",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runOptimize,
}

var optimizeMax int

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail <input> <output.jpg>",
	Short: "Write a single frame as JPEG",
	Args:  cobra.ExactArgs(2),
	RunE:  runThumbnail,
}

var thumbnailOpts struct {
	offset        float64
	width, height int
}

var trimCmd = &cobra.Command{
	Use:   "trim <input> <output>",
	Short: "Copy a segment without re-encoding",
	Args:  cobra.ExactArgs(2),
	RunE:  runTrim,
}

var trimOpts video.TrimOptions

var concatCmd = &cobra.Command{
	Use:   "concat <output> <input>...",
	Short: "Join videos in order",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runConcat,
}

var concatCodec string

var infoCmd = &cobra.Command{
	Use:   "info <input>",
	Short: "Print the ffprobe description of a media file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	f := framesCmd.Flags()
	f.StringVarP(&framesOpts.output, "output", "o", "frames", "Output directory")
	f.StringVar(&framesOpts.prefix, "prefix", "frame_", "Frame file name prefix")
	f.Float64Var(&framesOpts.fps, "fps", 0, "Frames per second to sample (default from config)")
	f.IntVar(&framesOpts.quality, "quality", 0, "JPEG quality 1 (best) to 31 (default from config)")
	f.BoolVar(&framesOpts.analyze, "analyze", false, "Submit each frame to the assistant instead of saving")
	f.BoolVar(&framesOpts.encode, "encode", false, "Print frames as base64 JSON instead of saving")

	f = audioCmd.Flags()
	f.StringVarP(&audioOpts.output, "output", "o", "", "Output file (or directory in batch mode); <name>.<format> when empty")
	f.StringVar(&audioOpts.format, "format", "", "Audio format: wav, mp3, aac, m4a, ogg, flac (default from config)")
	f.StringVar(&audioOpts.codec, "codec", "", "ffmpeg audio encoder (default depends on format)")
	f.IntVar(&audioOpts.sampleRate, "sample-rate", 0, "Sample rate in Hz (default from config)")
	f.IntVar(&audioOpts.channels, "channels", 0, "Channel count (default from config)")
	f.BoolVar(&audioOpts.info, "info", false, "Print audio stream information instead of extracting")
	f.BoolVarP(&audioOpts.recursive, "recursive", "r", false, "Recurse into sub-directories in batch mode")
	f.BoolVar(&audioOpts.analyze, "analyze", false, "Submit the extracted audio to the assistant")

	f = convertCmd.Flags()
	f.StringVar(&convertOpts.Format, "format", "", "Container format passed to -f")
	f.StringVar(&convertOpts.Codec, "codec", "", "Video encoder, e.g. libx264")
	f.IntVar(&convertOpts.Width, "width", 0, "Output width (even, requires --height)")
	f.IntVar(&convertOpts.Height, "height", 0, "Output height (even, requires --width)")
	f.Float64Var(&convertOpts.FPS, "fps", 0, "Output frame rate")
	f.StringVar(&convertOpts.Bitrate, "bitrate", "", "Video bitrate, e.g. 1M")
	f.StringVar(&convertOpts.Preset, "preset", "", "x264/x265 preset")
	f.IntVar(&convertOpts.crf, "crf", 0, "x264/x265 constant rate factor, 0-51")
	f.StringVar(&convertOpts.AudioCodec, "audio-codec", "", "Audio encoder")
	f.StringVar(&convertOpts.AudioBitrate, "audio-bitrate", "", "Audio bitrate, e.g. 128k")
	f.StringArrayVar(&convertOpts.Extra, "extra", nil, "Extra ffmpeg argument before the output (repeatable)")

	optimizeCmd.Flags().IntVar(&optimizeMax, "max-dimension", video.DefaultMaxDimension, "Cap for the longer side")

	f = thumbnailCmd.Flags()
	f.Float64Var(&thumbnailOpts.offset, "at", 0, "Offset in seconds")
	f.IntVar(&thumbnailOpts.width, "width", 0, "Thumbnail width (even, requires --height)")
	f.IntVar(&thumbnailOpts.height, "height", 0, "Thumbnail height (even, requires --width)")

	f = trimCmd.Flags()
	f.Float64Var(&trimOpts.Start, "start", 0, "Start offset in seconds")
	f.Float64Var(&trimOpts.Duration, "duration", 0, "Segment length in seconds")
	f.Float64Var(&trimOpts.End, "end", 0, "End offset in seconds (exclusive with --duration)")

	concatCmd.Flags().StringVar(&concatCodec, "codec", "", "Re-encode with this video encoder instead of copying streams")

	convertCmd.AddCommand(optimizeCmd, thumbnailCmd, trimCmd, concatCmd, infoCmd)
}

func frameOptions() video.FrameOptions {
	opts := application.FrameOptions()
	if framesOpts.fps != 0 {
		opts.FPS = framesOpts.fps
	}
	if framesOpts.quality != 0 {
		opts.Quality = framesOpts.quality
	}
	return opts
}

func runFrames(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	frames, err := application.Frames.ExtractFile(ctx, args[0], frameOptions())
	if err != nil {
		return err
	}

	if framesOpts.analyze {
		client, err := application.Client()
		if err != nil {
			return err
		}
		results := make(map[string]*models.AnalysisResult, len(frames.Blobs))
		for _, n := range frames.Indices() {
			result, err := client.AnalyzeBytes(ctx, "", frames.Blobs[n])
			if err != nil {
				return fmt.Errorf("frame %d: %w", n, err)
			}
			results[fmt.Sprint(n)] = result
		}
		return writeValue("", "json", results)
	}

	if framesOpts.encode {
		return writeValue("", "json", video.EncodeFrames(frames))
	}

	paths, err := video.SaveFrames(frames, framesOpts.output, framesOpts.prefix)
	if err != nil {
		return err
	}
	for _, n := range frames.Indices() {
		fmt.Println(paths[n])
	}
	return nil
}

func audioOptions() video.AudioOptions {
	opts := application.AudioOptions()
	if audioOpts.format != "" {
		opts.Format = audioOpts.format
	}
	if audioOpts.codec != "" {
		opts.Codec = audioOpts.codec
	}
	if audioOpts.sampleRate != 0 {
		opts.SampleRate = audioOpts.sampleRate
	}
	if audioOpts.channels != 0 {
		opts.Channels = audioOpts.channels
	}
	return opts
}

func runAudio(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]
	extractor := application.Audio
	opts := audioOptions()

	if isDir(path) {
		outDir := audioOpts.output
		if outDir == "" {
			outDir = path
		}
		report, err := extractor.Batch(ctx, application.Pool(0), path, outDir, audioOpts.recursive, opts)
		if err != nil {
			return err
		}
		return printReport(report, "")
	}

	if audioOpts.info {
		info, err := extractor.Info(ctx, path)
		if err != nil {
			return err
		}
		return writeValue("", "json", info)
	}

	if audioOpts.analyze {
		client, err := application.Client()
		if err != nil {
			return err
		}
		audio, err := extractor.ExtractFile(ctx, path, opts)
		if err != nil {
			return err
		}
		result, err := client.Analyze(ctx, models.AnalysisRequest{
			AssistantID: config.API.AssistantID,
			Type:        models.DataTypeAudio,
			Data:        audio,
			MIMEType:    video.MIMEType(opts.Format),
		})
		if err != nil {
			return err
		}
		return writeValue("", "json", result)
	}

	out := audioOpts.output
	if out == "" {
		out = path[:len(path)-len(filepath.Ext(path))] + "." + opts.Format
	}
	if err := extractor.ExtractToFile(ctx, path, out, opts); err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	opts := convertOpts.ConvertOptions
	if cmd.Flags().Changed("crf") {
		crf := convertOpts.crf
		opts.CRF = &crf
	}
	if err := application.Converter.Convert(cmd.Context(), args[0], args[1], opts); err != nil {
		return err
	}
	fmt.Println(args[1])
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	out := ""
	if len(args) == 2 {
		out = args[1]
	}
	out, err := application.Converter.Optimize(cmd.Context(), args[0], out, optimizeMax)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runThumbnail(cmd *cobra.Command, args []string) error {
	err := application.Converter.Thumbnail(cmd.Context(), args[0], args[1],
		thumbnailOpts.offset, thumbnailOpts.width, thumbnailOpts.height)
	if err != nil {
		return err
	}
	fmt.Println(args[1])
	return nil
}

func runTrim(cmd *cobra.Command, args []string) error {
	if err := application.Converter.Trim(cmd.Context(), args[0], args[1], trimOpts); err != nil {
		return err
	}
	fmt.Println(args[1])
	return nil
}

func runConcat(cmd *cobra.Command, args []string) error {
	out, inputs := args[0], args[1:]
	for _, in := range inputs {
		if in == out {
			return apperr.InvalidParameter("output %s is also an input", out)
		}
	}
	if err := application.Converter.Concat(cmd.Context(), inputs, out, concatCodec); err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	info, err := application.Converter.Info(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeValue("", "json", info)
}
