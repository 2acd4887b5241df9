package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hashicorp/go-hclog"
)

// RodLauncher launches Chrome through go-rod.
type RodLauncher struct {
	logger hclog.Logger
}

// NewRodLauncher creates a go-rod backed launcher.
func NewRodLauncher(logger hclog.Logger) *RodLauncher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RodLauncher{logger: logger.Named("browser")}
}

// Launch starts a fresh browser process and connects to it over CDP.
func (rl *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	l := launcher.New().
		Context(ctx).
		Bin(opts.BinPath).
		Headless(opts.Headless).
		Leakless(false)
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}

	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch %s: %w", opts.BinPath, err)
	}
	rl.logger.Debug("browser launched", "bin", opts.BinPath, "pid", l.PID())

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	return &rodBrowser{
		launcher:    l,
		browser:     b,
		userDataDir: opts.UserDataDir,
		navTimeout:  opts.NavigationTimeout,
		idleWindow:  opts.IdleWindow,
		logger:      rl.logger,
	}, nil
}

type rodBrowser struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	userDataDir string
	navTimeout  time.Duration
	idleWindow  time.Duration
	logger      hclog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (b *rodBrowser) NewPage(ctx context.Context, vp Viewport) (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	err = page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	return &rodPage{page: page, navTimeout: b.navTimeout, idleWindow: b.idleWindow}, nil
}

func (b *rodBrowser) PID() int {
	return b.launcher.PID()
}

func (b *rodBrowser) Close() error {
	b.closeOnce.Do(func() {
		if err := b.browser.Close(); err != nil {
			b.logger.Debug("browser close over CDP failed", "error", err)
			b.closeErr = err
		}
		b.launcher.Kill()
		if b.userDataDir != "" {
			if err := os.RemoveAll(b.userDataDir); err != nil {
				b.logger.Warn("failed to remove browser profile", "dir", b.userDataDir, "error", err)
			}
		}
	})
	return b.closeErr
}

type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
	idleWindow time.Duration

	mu         sync.Mutex
	stopEvents context.CancelFunc
	eventsDone chan struct{}
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if p.navTimeout > 0 {
		page = page.Timeout(p.navTimeout)
		defer page.CancelTimeout()
	}

	wait := page.WaitRequestIdle(p.idleWindow, nil, nil, nil)
	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for load: %w", err)
	}
	wait()
	if err := page.GetContext().Err(); err != nil {
		return fmt.Errorf("waiting for network idle: %w", err)
	}
	return nil
}

func (p *rodPage) AddStyle(ctx context.Context, css string) error {
	return p.page.Context(ctx).AddStyleTag("", css)
}

func (p *rodPage) Eval(ctx context.Context, js string, args ...interface{}) (string, error) {
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(js, args...).ByPromise())
	if err != nil {
		return "", err
	}
	return res.Value.JSON("", ""), nil
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) ScreenshotJPEG(ctx context.Context, quality int) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
}

func (p *rodPage) StartScreencast(ctx context.Context, opts ScreencastOptions, fn FrameHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopEvents != nil {
		return fmt.Errorf("screencast already running")
	}

	evCtx, cancel := context.WithCancel(ctx)
	page := p.page.Context(evCtx)
	wait := page.EachEvent(func(e *proto.PageScreencastFrame) {
		_ = proto.PageScreencastFrameAck{SessionID: e.SessionID}.Call(page)
		ts := time.Now()
		if e.Metadata != nil {
			if t := e.Metadata.Timestamp.Time(); t.Unix() > 0 {
				ts = t
			}
		}
		fn(e.Data, ts)
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()
	p.stopEvents, p.eventsDone = cancel, done

	everyNth := 1
	err := proto.PageStartScreencast{
		Format:        proto.PageStartScreencastFormatJpeg,
		Quality:       intPtr(opts.Quality),
		MaxWidth:      intPtr(opts.MaxWidth),
		MaxHeight:     intPtr(opts.MaxHeight),
		EveryNthFrame: &everyNth,
	}.Call(page)
	if err != nil {
		p.stopLocked()
		return fmt.Errorf("start screencast: %w", err)
	}
	return nil
}

func (p *rodPage) StopScreencast(ctx context.Context) error {
	err := proto.PageStopScreencast{}.Call(p.page.Context(ctx))
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
	return err
}

// stopLocked ends the event loop and waits for the last handler call.
func (p *rodPage) stopLocked() {
	if p.stopEvents == nil {
		return
	}
	p.stopEvents()
	<-p.eventsDone
	p.stopEvents, p.eventsDone = nil, nil
}

func (p *rodPage) Close() error {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
	return p.page.Close()
}

func intPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
