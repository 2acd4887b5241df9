// Package logger provides the process-wide hclog logger used by every component.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Options configure the root logger.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

var (
	mu   sync.RWMutex
	root hclog.Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "scrollcast",
		Level:  levelFromEnv(),
		Output: os.Stderr,
	})
)

// Configure replaces the root logger. Components created before the call keep
// their previous logger.
func Configure(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	l := hclog.New(&hclog.LoggerOptions{
		Name:       "scrollcast",
		Level:      level,
		Output:     out,
		JSONFormat: strings.EqualFold(opts.Format, "json"),
	})

	mu.Lock()
	root = l
	mu.Unlock()
	return l
}

// Root returns the root logger.
func Root() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a sub-logger of the root logger.
func Named(name string) hclog.Logger {
	return Root().Named(name)
}

// Info logs informational messages with optional key/value pairs
func Info(msg string, args ...interface{}) {
	Root().Info(msg, args...)
}

// Warn logs warning messages
func Warn(msg string, args ...interface{}) {
	Root().Warn(msg, args...)
}

// Error logs error messages
func Error(msg string, args ...interface{}) {
	Root().Error(msg, args...)
}

// Debug logs debug messages
func Debug(msg string, args ...interface{}) {
	Root().Debug(msg, args...)
}

func levelFromEnv() hclog.Level {
	if lvl := hclog.LevelFromString(os.Getenv("LOG_LEVEL")); lvl != hclog.NoLevel {
		return lvl
	}
	return hclog.Info
}
