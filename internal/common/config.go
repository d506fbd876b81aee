package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	TempDir string        `toml:"temp_dir"` // Root for per-invocation scratch dirs (default: OS temp dir)
	API     APIConfig     `toml:"api"`
	PDF     PDFConfig     `toml:"pdf"`
	Merge   MergeConfig   `toml:"merge"`
	Video   VideoConfig   `toml:"video"`
	Tools   ToolsConfig   `toml:"tools"`
	Batch   BatchConfig   `toml:"batch"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig contains the remote analysis endpoint configuration
type APIConfig struct {
	URL         string `toml:"url"`          // Analysis endpoint
	APIKey      string `toml:"api_key"`      // Bearer token (prefer ASSAY_API_KEY)
	AssistantID string `toml:"assistant_id"` // Default assistant used when none is given
	Timeout     string `toml:"timeout"`      // Per-request timeout as duration string (default: "120s")
}

// PDFConfig contains layout parameters for text extraction and rasterisation defaults
type PDFConfig struct {
	LineMargin     float64 `toml:"line_margin"`
	CharMargin     float64 `toml:"char_margin"`
	WordMargin     float64 `toml:"word_margin"`
	BoxesFlow      float64 `toml:"boxes_flow"`
	DetectVertical bool    `toml:"detect_vertical"` // Required for vertical CJK text
	DPI            int     `toml:"dpi"`
	ImageFormat    string  `toml:"image_format"` // png, jpeg, tiff, bmp
}

// MergeConfig contains document merge settings
type MergeConfig struct {
	Delimiter string `toml:"delimiter"` // Empty uses the default "=" rule
}

// VideoConfig contains frame and audio extraction defaults
type VideoConfig struct {
	FPS         float64 `toml:"fps"`     // Frames per second to sample (0.2 = one frame per 5s)
	Quality     int     `toml:"quality"` // JPEG qscale 1-31, lower is better
	AudioFormat string  `toml:"audio_format"`
	SampleRate  int     `toml:"sample_rate"`
	Channels    int     `toml:"channels"`
}

// ToolsConfig contains explicit locations for external binaries
type ToolsConfig struct {
	FFmpeg   string `toml:"ffmpeg"`
	FFprobe  string `toml:"ffprobe"`
	Pdftoppm string `toml:"pdftoppm"`
}

// BatchConfig contains directory-mode settings
type BatchConfig struct {
	Concurrency int    `toml:"concurrency"` // Parallel workers (max 10)
	Delay       string `toml:"delay"`       // Minimum spacing between items as duration string
	Recursive   bool   `toml:"recursive"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`          // Record batch runs
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// DefaultAPIURL is the hosted analysis endpoint.
const DefaultAPIURL = "https://a.pyunto.com/api/i/v1"

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			URL:     DefaultAPIURL,
			Timeout: "120s", // Payloads reach tens of MB
		},
		PDF: PDFConfig{
			LineMargin:     0.5,
			CharMargin:     2.0,
			WordMargin:     0.1,
			BoxesFlow:      0.5,
			DetectVertical: true,
			DPI:            300,
			ImageFormat:    "png",
		},
		Video: VideoConfig{
			FPS:         1,
			Quality:     2,
			AudioFormat: "wav",
			SampleRate:  16000,
			Channels:    1,
		},
		Batch: BatchConfig{
			Concurrency: 2,
			Delay:       "0s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled: false,
				Path:    "./data/history",
			},
		},
		Logging: LoggingConfig{
			Level:      "warn", // stdout also carries command output
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if dir := os.Getenv("ASSAY_TEMP_DIR"); dir != "" {
		config.TempDir = dir
	}

	// API configuration
	if url := os.Getenv("ASSAY_API_URL"); url != "" {
		config.API.URL = url
	}
	if key := os.Getenv("ASSAY_API_KEY"); key != "" {
		config.API.APIKey = key
	}
	if id := os.Getenv("ASSAY_ASSISTANT_ID"); id != "" {
		config.API.AssistantID = id
	}
	if timeout := os.Getenv("ASSAY_API_TIMEOUT"); timeout != "" {
		config.API.Timeout = timeout
	}

	// Tools
	if p := os.Getenv("ASSAY_FFMPEG"); p != "" {
		config.Tools.FFmpeg = p
	}
	if p := os.Getenv("ASSAY_FFPROBE"); p != "" {
		config.Tools.FFprobe = p
	}
	if p := os.Getenv("ASSAY_PDFTOPPM"); p != "" {
		config.Tools.Pdftoppm = p
	}

	// Batch
	if c := os.Getenv("ASSAY_BATCH_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			config.Batch.Concurrency = n
		}
	}
	if d := os.Getenv("ASSAY_BATCH_DELAY"); d != "" {
		config.Batch.Delay = d
	}

	// Storage
	if p := os.Getenv("ASSAY_BADGER_PATH"); p != "" {
		config.Storage.Badger.Path = p
	}
	if e := os.Getenv("ASSAY_HISTORY_ENABLED"); e != "" {
		if b, err := strconv.ParseBool(e); err == nil {
			config.Storage.Badger.Enabled = b
		}
	}

	// Logging
	if level := os.Getenv("ASSAY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ASSAY_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, apiKey, assistantID, logLevel string) {
	if apiKey != "" {
		config.API.APIKey = apiKey
	}
	if assistantID != "" {
		config.API.AssistantID = assistantID
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// ResolveAPIKey returns the API key, preferring the environment over the config file.
func (c *Config) ResolveAPIKey() (string, error) {
	if key := os.Getenv("ASSAY_API_KEY"); key != "" {
		return key, nil
	}
	if c.API.APIKey != "" {
		return c.API.APIKey, nil
	}
	return "", fmt.Errorf("API key not found in environment (ASSAY_API_KEY) or config")
}

// RequestTimeout parses the API timeout, falling back to 120s.
func (c APIConfig) RequestTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 120*time.Second)
}

// DelayDuration parses the batch delay, falling back to no delay.
func (c BatchConfig) DelayDuration() time.Duration {
	return parseDurationOr(c.Delay, 0)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// ToolPaths returns the configured binary overrides keyed by tool name.
func (c *Config) ToolPaths() map[string]string {
	paths := map[string]string{}
	if c.Tools.FFmpeg != "" {
		paths["ffmpeg"] = c.Tools.FFmpeg
	}
	if c.Tools.FFprobe != "" {
		paths["ffprobe"] = c.Tools.FFprobe
	}
	if c.Tools.Pdftoppm != "" {
		paths["pdftoppm"] = c.Tools.Pdftoppm
	}
	return paths
}
