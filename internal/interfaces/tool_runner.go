package interfaces

import (
	"context"
)

// ToolResult captures everything an external tool produced.
type ToolResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ToolRunner invokes external binaries (ffmpeg, ffprobe, pdftoppm).
// A non-zero exit is reported through ToolResult.ExitCode, not as an error;
// the error return is reserved for failures to start the tool at all.
type ToolRunner interface {
	Run(ctx context.Context, tool string, args ...string) (*ToolResult, error)
}
