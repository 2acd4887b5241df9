package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
)

// maxStderrTail bounds how much encoder output is kept in an ExitError.
const maxStderrTail = 2048

// CommandRunner interface for command execution (enables mocking in tests)
type CommandRunner interface {
	Run(ctx context.Context, cmd string, args ...string) (stderr []byte, err error)
}

// DefaultCommandRunner implements CommandRunner using os/exec
type DefaultCommandRunner struct{}

// Run executes a command, discarding stdout and capturing stderr
func (r *DefaultCommandRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	var stderr bytes.Buffer
	command.Stdin = nil
	command.Stderr = &stderr
	err := command.Run()
	return stderr.Bytes(), err
}

// ExitError reports an encoder process that did not exit cleanly.
type ExitError struct {
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ffmpeg exited with status %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("ffmpeg exited with status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner executes FFmpeg invocations
type Runner struct {
	logger     hclog.Logger
	execer     CommandRunner
	ffmpegPath string
}

// NewRunner creates a new FFmpeg runner
func NewRunner(logger hclog.Logger, ffmpegPath string) *Runner {
	return NewRunnerWithExecutor(logger, ffmpegPath, &DefaultCommandRunner{})
}

// NewRunnerWithExecutor creates a new FFmpeg runner with custom command executor (for testing)
func NewRunnerWithExecutor(logger hclog.Logger, ffmpegPath string, execer CommandRunner) *Runner {
	if customPath := os.Getenv("FFMPEG_PATH"); customPath != "" {
		ffmpegPath = customPath
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Runner{
		logger:     logger.Named("ffmpeg"),
		execer:     execer,
		ffmpegPath: ffmpegPath,
	}
}

// Path returns the encoder executable the runner invokes.
func (r *Runner) Path() string {
	return r.ffmpegPath
}

// Run executes FFmpeg with the given arguments. A non-zero exit yields an
// *ExitError carrying the tail of stderr.
func (r *Runner) Run(ctx context.Context, args []string) error {
	r.logger.Debug("executing FFmpeg command", "command", r.ffmpegPath, "args", strings.Join(args, " "))

	stderr, err := r.execer.Run(ctx, r.ffmpegPath, args...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	exitErr := &ExitError{Code: -1, Stderr: tail(stderr), Err: err}
	var procErr *exec.ExitError
	if errors.As(err, &procErr) {
		exitErr.Code = procErr.ExitCode()
	}
	if exitErr.Stderr == "" && !errors.As(err, &procErr) {
		// the process never started
		return fmt.Errorf("failed to run %s: %w", r.ffmpegPath, err)
	}

	r.logger.Warn("FFmpeg command failed", "code", exitErr.Code, "stderr", exitErr.Stderr)
	return exitErr
}

func tail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) <= maxStderrTail {
		return s
	}
	// start on a rune boundary so the tail stays valid UTF-8
	cut := len(s) - maxStderrTail
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}
