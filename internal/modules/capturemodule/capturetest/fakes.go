// Package capturetest provides in-memory browser and encoder doubles for
// exercising the capture service without Chrome or ffmpeg.
package capturetest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/browser"
)

// GIF is a valid 1x1 GIF89a image.
var GIF = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

// JPEG returns a small encoded JPEG frame.
func JPEG() []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 12)), nil)
	return buf.Bytes()
}

// Resolver always finds the same executable.
type Resolver struct{ Err error }

func (r Resolver) Resolve() (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	return "/usr/bin/chromium", nil
}

// Launcher counts launches and hands out fresh fake browsers.
type Launcher struct {
	// PageHeight is the scroll height reported by every page.
	PageHeight int
	// NavErr fails every navigation.
	NavErr error
	// Frames are delivered to each screencast.
	Frames int

	mu       sync.Mutex
	launches int
	browsers []*Browser
}

func (l *Launcher) Launch(context.Context, browser.LaunchOptions) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	b := &Browser{pid: 1000 + l.launches, launcher: l}
	l.browsers = append(l.browsers, b)
	return b, nil
}

// Launches is the number of browsers started.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Open is the number of browsers or pages not yet closed.
func (l *Launcher) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.browsers {
		closed, page := b.state()
		if !closed {
			n++
		}
		if page != nil && !page.isClosed() {
			n++
		}
	}
	return n
}

// Browser is a fake browser process.
type Browser struct {
	pid      int
	launcher *Launcher

	mu     sync.Mutex
	closed bool
	page   *Page
}

func (b *Browser) NewPage(_ context.Context, vp browser.Viewport) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	height := b.launcher.PageHeight
	if height == 0 {
		height = vp.Height
	}
	b.page = &Page{height: height, navErr: b.launcher.NavErr, frames: b.launcher.Frames}
	return b.page, nil
}

func (b *Browser) PID() int { return b.pid }

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Browser) state() (bool, *Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed, b.page
}

// Page is a fake tab. Evaluations are answered by argument count: no
// arguments is the page height, one is a scroll, two is the smooth scroll.
type Page struct {
	height int
	navErr error
	frames int

	mu     sync.Mutex
	closed bool
}

func (p *Page) Navigate(context.Context, string) error { return p.navErr }
func (p *Page) AddStyle(context.Context, string) error { return nil }

func (p *Page) Eval(_ context.Context, _ string, args ...interface{}) (string, error) {
	switch len(args) {
	case 0:
		return fmt.Sprint(p.height), nil
	case 1:
		return "null", nil
	default:
		return fmt.Sprintf(`{"start":0,"end":%d,"scrolled":true}`, p.height), nil
	}
}

func (p *Page) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *Page) ScreenshotJPEG(context.Context, int) ([]byte, error) { return JPEG(), nil }

func (p *Page) StartScreencast(_ context.Context, _ browser.ScreencastOptions, fn browser.FrameHandler) error {
	now := time.Now()
	frame := JPEG()
	for i := 0; i < p.frames; i++ {
		fn(frame, now.Add(time.Duration(i)*40*time.Millisecond))
	}
	return nil
}

func (p *Page) StopScreencast(context.Context) error { return nil }

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Encoder writes a plausible output file for each ffmpeg call.
type Encoder struct {
	// Err fails every call.
	Err error

	mu    sync.Mutex
	calls [][]string
}

func (e *Encoder) Run(_ context.Context, args []string) error {
	e.mu.Lock()
	e.calls = append(e.calls, args)
	e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	out := args[len(args)-1]
	data := []byte("binary")
	if strings.HasSuffix(out, ".gif") {
		data = GIF
	}
	return os.WriteFile(out, data, 0o644)
}

// Calls returns the argument lists seen so far.
func (e *Encoder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}
