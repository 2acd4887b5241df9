package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/process"

	apperrors "github.com/mantonx/scrollcast/internal/errors"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/browser"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/recorder"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/scratch"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/scroll"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

// slowAnimationCSS stretches page animations so they remain visible in a
// capture.
const slowAnimationCSS = `*, *::before, *::after {
  animation-duration: 2s !important;
  transition-duration: 2s !important;
  scroll-behavior: auto !important;
}
html, body { scroll-behavior: auto !important; }`

// DefaultTail is how long a video keeps recording after the scroll ends.
const DefaultTail = 300 * time.Millisecond

// Resolver finds the browser executable.
type Resolver interface {
	Resolve() (string, error)
}

// Config holds the browser and recording settings shared by all sessions.
type Config struct {
	Headless          bool
	NoSandbox         bool
	NavigationTimeout time.Duration
	IdleWindow        time.Duration
	ScreencastQuality int
	Tail              time.Duration
}

// Deps are the collaborators of a session.
type Deps struct {
	Launcher browser.Launcher
	Resolver Resolver
	Logger   hclog.Logger

	// ProcessAlive reports whether a pid still runs. Defaults to gopsutil.
	ProcessAlive func(pid int) bool
}

// Output is what a finished session leaves in the workspace.
type Output struct {
	Mode types.Mode
	// FrameCount is the number of stepped screenshots, or the number of
	// frames written to the container in video mode.
	FrameCount    int
	ContainerPath string
	Scroll        scroll.Report
}

// Session captures one page. A session is used once.
type Session struct {
	id       string
	machine  *Machine
	deps     Deps
	cfg      Config
	logger   hclog.Logger
	driver   *scroll.Driver
	observer types.Observer
	sleep    func(ctx context.Context, d time.Duration) error

	browser browser.Browser
	page    browser.Page
	profile string
}

// New creates a session for capture id.
func New(id string, deps Deps, cfg Config, observer types.Observer) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if deps.ProcessAlive == nil {
		deps.ProcessAlive = pidExists
	}
	if cfg.Tail <= 0 {
		cfg.Tail = DefaultTail
	}
	if cfg.ScreencastQuality <= 0 {
		cfg.ScreencastQuality = 90
	}
	logger = logger.Named("capture-session").With("capture_id", id)
	return &Session{
		id:       id,
		machine:  NewMachine(id),
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		driver:   scroll.NewDriver(logger),
		observer: observer,
		sleep:    scroll.Sleep,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.machine.State()
}

// History returns the session's transitions.
func (s *Session) History() []Transition {
	return s.machine.History()
}

// Run performs the capture described by req and leaves its raw output in
// ws. The browser is released on every path before Run returns.
func (s *Session) Run(ctx context.Context, req types.CaptureRequest, ws *scratch.Workspace) (out *Output, err error) {
	if st := s.machine.State(); st != StateIdle {
		if IsTerminal(st) {
			return nil, fmt.Errorf("session %s already finished in state %s", s.id, st)
		}
		return nil, fmt.Errorf("session %s is already running", s.id)
	}
	defer func() {
		s.release()
		if err != nil {
			if tErr := s.machine.To(StateFailed); tErr != nil {
				s.logger.Error("failed to mark session failed", "error", tErr)
			}
			s.logger.Warn("capture failed", "state", s.history(), "error", err)
			return
		}
		if tErr := s.machine.To(StateClosed); tErr != nil {
			out, err = nil, tErr
		}
	}()

	if err := s.advance(StateLaunching, "launching browser"); err != nil {
		return nil, err
	}
	if err := s.launch(ctx, req); err != nil {
		return nil, err
	}

	var rec *recorder.Recorder
	if req.Mode == types.ModeVideo {
		rec = recorder.New(s.logger)
		err := s.page.StartScreencast(ctx, browser.ScreencastOptions{
			Quality:   s.cfg.ScreencastQuality,
			MaxWidth:  even(req.Width),
			MaxHeight: even(req.Height),
		}, rec.Add)
		if err != nil {
			return nil, apperrors.NewCaptureFailure(err)
		}
	}

	if err := s.advance(StateNavigating, "navigating to "+req.URL); err != nil {
		return nil, err
	}
	if err := s.page.Navigate(ctx, req.URL); err != nil {
		return nil, apperrors.NewNavigationFailure(req.URL, err)
	}

	if err := s.advance(StateSettling, "page loaded"); err != nil {
		return nil, err
	}
	if req.SlowAnimations {
		if err := s.page.AddStyle(ctx, slowAnimationCSS); err != nil {
			return nil, apperrors.NewCaptureFailure(fmt.Errorf("inject animation style: %w", err))
		}
		s.observer.Notify("slowed page animations")
	}
	if err := s.sleep(ctx, time.Duration(req.StartDelayMs)*time.Millisecond); err != nil {
		return nil, apperrors.NewCaptureFailure(err)
	}

	if err := s.advance(StateScrolling, "scrolling"); err != nil {
		return nil, err
	}
	out = &Output{Mode: req.Mode}
	if req.Mode == types.ModeVideo {
		report, err := s.driver.Smooth(ctx, s.page, req.DurationMs, req.Smooth)
		if err != nil {
			return nil, apperrors.NewCaptureFailure(err)
		}
		out.Scroll = report
	} else {
		n, err := s.driver.Stepped(ctx, s.page, scroll.SteppedOptions{
			ViewportHeight: req.Height,
			Step:           req.ScrollStepPx,
			FPS:            req.FPS,
			DurationMs:     req.DurationMs,
		}, ws.WriteFrame)
		if err != nil {
			return nil, apperrors.NewCaptureFailure(err)
		}
		out.FrameCount = n
	}

	if err := s.advance(StateFinalizing, "finalizing capture"); err != nil {
		return nil, err
	}
	if req.Mode == types.ModeVideo {
		if err := s.finalizeVideo(ctx, req, ws, rec, out); err != nil {
			return nil, err
		}
	} else if out.FrameCount == 0 {
		return nil, apperrors.NewNoFramesFailure()
	}

	s.observer.Notify(fmt.Sprintf("captured %d frames", out.FrameCount))
	return out, nil
}

func (s *Session) launch(ctx context.Context, req types.CaptureRequest) error {
	bin, err := s.deps.Resolver.Resolve()
	if err != nil {
		return apperrors.NewLaunchFailure(err)
	}

	profile, err := os.MkdirTemp("", "scrollcast-profile-")
	if err != nil {
		return apperrors.NewLaunchFailure(fmt.Errorf("create browser profile: %w", err))
	}
	s.profile = profile

	b, err := s.deps.Launcher.Launch(ctx, browser.LaunchOptions{
		BinPath:           bin,
		Headless:          s.cfg.Headless,
		NoSandbox:         s.cfg.NoSandbox,
		UserDataDir:       profile,
		NavigationTimeout: s.cfg.NavigationTimeout,
		IdleWindow:        s.cfg.IdleWindow,
	})
	if err != nil {
		return apperrors.NewLaunchFailure(err)
	}
	s.browser = b

	page, err := b.NewPage(ctx, browser.Viewport{Width: req.Width, Height: req.Height})
	if err != nil {
		return apperrors.NewLaunchFailure(err)
	}
	s.page = page
	s.logger.Debug("browser ready", "bin", bin, "pid", b.PID())
	return nil
}

func (s *Session) finalizeVideo(ctx context.Context, req types.CaptureRequest, ws *scratch.Workspace, rec *recorder.Recorder, out *Output) error {
	if err := s.sleep(ctx, s.cfg.Tail); err != nil {
		return apperrors.NewCaptureFailure(err)
	}
	if err := s.page.StopScreencast(ctx); err != nil {
		s.logger.Warn("stop screencast failed", "error", err)
	}
	end := time.Now()

	if rec.Len() == 0 {
		// static pages may never repaint during the recording
		shot, err := s.page.ScreenshotJPEG(ctx, s.cfg.ScreencastQuality)
		if err != nil {
			return apperrors.NewCaptureFailure(fmt.Errorf("seed screenshot: %w", err))
		}
		rec.Add(shot, end.Add(-time.Duration(req.DurationMs)*time.Millisecond))
	}

	path := ws.Path(scratch.ContainerFile)
	n, err := rec.WriteAVI(path, req.FPS, end)
	if err != nil {
		return apperrors.NewCaptureFailure(err)
	}
	if n == 0 {
		return apperrors.NewNoFramesFailure()
	}
	out.ContainerPath = path
	out.FrameCount = n
	return nil
}

func (s *Session) advance(next State, message string) error {
	if err := s.machine.To(next); err != nil {
		return apperrors.NewCaptureFailure(err)
	}
	s.logger.Debug("session state changed", "state", next)
	s.observer.Notify(message)
	return nil
}

// release closes the page and browser and removes the profile. It never
// fails; problems are logged.
func (s *Session) release() {
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			s.logger.Debug("page close failed", "error", err)
		}
		s.page = nil
	}
	if s.browser != nil {
		pid := s.browser.PID()
		if err := s.browser.Close(); err != nil {
			s.logger.Debug("browser close failed", "error", err)
		}
		s.browser = nil
		if pid > 0 && s.awaitExit(pid, 2*time.Second) {
			s.logger.Warn("browser process still running after close", "pid", pid)
		}
	}
	if s.profile != "" {
		if err := os.RemoveAll(s.profile); err != nil {
			s.logger.Warn("failed to remove browser profile", "dir", s.profile, "error", err)
		}
		s.profile = ""
	}
}

// awaitExit polls until pid is gone and reports whether it survived.
func (s *Session) awaitExit(pid int, limit time.Duration) bool {
	deadline := time.Now().Add(limit)
	for s.deps.ProcessAlive(pid) {
		if time.Now().After(deadline) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func (s *Session) history() []string {
	h := s.machine.History()
	states := make([]string, 0, len(h))
	for _, t := range h {
		states = append(states, string(t.To))
	}
	return states
}

// even rounds n down to a multiple of two so encoded frames fit yuv420p.
func even(n int) int {
	return n &^ 1
}

func pidExists(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}
