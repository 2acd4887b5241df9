package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCommandRunner implements CommandRunner interface for testing
type MockCommandRunner struct {
	commands  []string
	outputs   [][]byte
	errors    []error
	callIndex int
}

func (m *MockCommandRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	m.commands = append(m.commands, fmt.Sprintf("%s %s", cmd, strings.Join(args, " ")))

	var output []byte
	var err error
	if m.callIndex < len(m.outputs) {
		output = m.outputs[m.callIndex]
	}
	if m.callIndex < len(m.errors) {
		err = m.errors[m.callIndex]
	}
	m.callIndex++
	return output, err
}

func TestRun_Success(t *testing.T) {
	mock := &MockCommandRunner{}
	runner := NewRunnerWithExecutor(hclog.NewNullLogger(), "/usr/local/bin/ffmpeg", mock)

	err := runner.Run(context.Background(), []string{"-y", "-i", "in.avi", "out.mp4"})
	require.NoError(t, err)
	require.Len(t, mock.commands, 1)
	assert.Equal(t, "/usr/local/bin/ffmpeg -y -i in.avi out.mp4", mock.commands[0])
}

func TestRun_NonZeroExitCarriesStderr(t *testing.T) {
	mock := &MockCommandRunner{
		outputs: [][]byte{[]byte("frame_%05d.png: No such file or directory\n")},
		errors:  []error{errors.New("exit status 1")},
	}
	runner := NewRunnerWithExecutor(nil, "ffmpeg", mock)

	err := runner.Run(context.Background(), []string{"-i", "frame_%05d.png", "out.gif"})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "frame_%05d.png: No such file or directory", exitErr.Stderr)
	assert.Contains(t, err.Error(), "No such file or directory")
}

func TestRun_StartFailure(t *testing.T) {
	mock := &MockCommandRunner{errors: []error{errors.New("executable file not found in $PATH")}}
	runner := NewRunnerWithExecutor(nil, "ffmpeg", mock)

	err := runner.Run(context.Background(), []string{"-version"})
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
	assert.Contains(t, err.Error(), "failed to run ffmpeg")
}

func TestRun_CanceledContext(t *testing.T) {
	mock := &MockCommandRunner{errors: []error{errors.New("signal: killed")}}
	runner := NewRunnerWithExecutor(nil, "ffmpeg", mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runner.Run(ctx, []string{"-version"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_EnvOverridesPath(t *testing.T) {
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	runner := NewRunnerWithExecutor(nil, "ffmpeg", &MockCommandRunner{})
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", runner.Path())
}

func TestTail_Truncates(t *testing.T) {
	long := strings.Repeat("x", maxStderrTail+100) + "END"
	got := tail([]byte(long))
	assert.Len(t, got, maxStderrTail)
	assert.True(t, strings.HasSuffix(got, "END"))
}

func TestTail_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes, so the odd trailing byte puts a plain cut mid-rune
	long := strings.Repeat("é", maxStderrTail) + "!"
	got := tail([]byte(long))
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxStderrTail-1)
	assert.True(t, strings.HasSuffix(got, "é!"))
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name: "MP4 profile",
			args: MP4Args("/w/recording.avi", "/w/capture.mp4", 18),
			expected: []string{
				"-y", "-i", "/w/recording.avi",
				"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
				"-c:v", "libx264", "-crf", "18", "-pix_fmt", "yuv420p",
				"-movflags", "+faststart", "/w/capture.mp4",
			},
		},
		{
			name: "Video GIF palette pipeline",
			args: VideoGIFArgs("/w/recording.avi", "/w/capture.gif", GIFOptions{FPS: 12, Width: 800}),
			expected: []string{
				"-y", "-i", "/w/recording.avi",
				"-filter_complex", "fps=12,scale=800:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
				"-loop", "0", "/w/capture.gif",
			},
		},
		{
			name: "Frame palette",
			args: PaletteArgs("/w/frame_%05d.png", 10, "/w/palette.png"),
			expected: []string{
				"-y", "-framerate", "10", "-i", "/w/frame_%05d.png",
				"-vf", "palettegen=max_colors=256", "/w/palette.png",
			},
		},
		{
			name: "Frame GIF with default dither",
			args: FramesGIFArgs("/w/frame_%05d.png", "/w/palette.png", 10, "", "/w/capture.gif"),
			expected: []string{
				"-y", "-framerate", "10", "-i", "/w/frame_%05d.png", "-i", "/w/palette.png",
				"-lavfi", "paletteuse=dither=sierra2_4a", "-gifflags", "+transdiff", "/w/capture.gif",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.args)
		})
	}
}
