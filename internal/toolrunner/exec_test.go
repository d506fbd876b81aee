package toolrunner

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/interfaces"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	runner := NewExecRunner(arbor.NewLogger(), nil)

	res, err := runner.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
}

func TestExecRunnerMissingBinary(t *testing.T) {
	runner := NewExecRunner(arbor.NewLogger(), map[string]string{"ffmpeg": "/nonexistent/ffmpeg-binary"})

	_, err := runner.Run(context.Background(), "ffmpeg", "-version")
	assert.Error(t, err)
}

func TestFakeRunnerRecordsCalls(t *testing.T) {
	fake := NewFakeRunner().Handle("ffprobe", func(ctx context.Context, args []string) (*interfaces.ToolResult, error) {
		return &interfaces.ToolResult{Stdout: []byte("{}")}, nil
	})

	res, err := fake.Run(context.Background(), "ffprobe", "-v", "error")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(res.Stdout))

	_, err = fake.Run(context.Background(), "ffmpeg", "-i", "x")
	require.NoError(t, err)

	assert.Len(t, fake.Calls(), 2)
	require.Len(t, fake.CallsTo("ffmpeg"), 1)
	assert.Equal(t, []string{"-i", "x"}, fake.CallsTo("ffmpeg")[0].Args)
}
