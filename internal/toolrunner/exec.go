// Package toolrunner runs the external binaries the extractors delegate to.
package toolrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/interfaces"
)

// ExecRunner implements interfaces.ToolRunner with os/exec.
type ExecRunner struct {
	logger arbor.ILogger
	// paths maps a tool name to an explicit binary location.
	paths map[string]string
}

// Compile-time interface assertion
var _ interfaces.ToolRunner = (*ExecRunner)(nil)

// NewExecRunner creates a runner. paths overrides binary locations by tool name
// (e.g. "ffmpeg" -> "/opt/ffmpeg/bin/ffmpeg"); nil resolves through PATH.
func NewExecRunner(logger arbor.ILogger, paths map[string]string) *ExecRunner {
	if paths == nil {
		paths = map[string]string{}
	}
	return &ExecRunner{logger: logger, paths: paths}
}

// Run executes tool with args and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, tool string, args ...string) (*interfaces.ToolResult, error) {
	bin := tool
	if p, ok := r.paths[tool]; ok && p != "" {
		bin = p
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().
		Str("tool", tool).
		Str("args", strings.Join(args, " ")).
		Msg("Running external tool")

	start := time.Now()
	err := cmd.Run()
	result := &interfaces.ToolResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug().
				Str("tool", tool).
				Int("exit_code", result.ExitCode).
				Dur("elapsed", time.Since(start)).
				Msg("External tool exited with error")
			return result, nil
		}
		return nil, fmt.Errorf("failed to start %s: %w", tool, err)
	}

	r.logger.Debug().
		Str("tool", tool).
		Dur("elapsed", time.Since(start)).
		Msg("External tool completed")

	return result, nil
}
