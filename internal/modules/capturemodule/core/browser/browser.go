// Package browser wraps the headless browser behind small interfaces so the
// capture session can be driven by go-rod in production and by fakes in
// tests.
package browser

import (
	"context"
	"time"
)

// Viewport is the emulated window size.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures one browser process.
type LaunchOptions struct {
	BinPath           string
	Headless          bool
	NoSandbox         bool
	UserDataDir       string
	NavigationTimeout time.Duration
	IdleWindow        time.Duration
}

// ScreencastOptions configures CDP screencast frames.
type ScreencastOptions struct {
	Quality   int
	MaxWidth  int
	MaxHeight int
}

// FrameHandler receives each screencast frame. It is called from the
// browser's event goroutine.
type FrameHandler func(jpeg []byte, ts time.Time)

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is one running browser process.
type Browser interface {
	NewPage(ctx context.Context, vp Viewport) (Page, error)
	// PID of the browser process, or zero when unknown.
	PID() int
	// Close shuts the browser down and removes its profile. It is safe to
	// call more than once.
	Close() error
}

// Page is one tab.
type Page interface {
	// Navigate loads url and waits for the load event and a quiet network.
	Navigate(ctx context.Context, url string) error
	AddStyle(ctx context.Context, css string) error
	// Eval runs a JavaScript function with args, awaits a returned promise,
	// and returns the result as JSON.
	Eval(ctx context.Context, js string, args ...interface{}) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	ScreenshotJPEG(ctx context.Context, quality int) ([]byte, error)
	StartScreencast(ctx context.Context, opts ScreencastOptions, fn FrameHandler) error
	StopScreencast(ctx context.Context) error
	Close() error
}
