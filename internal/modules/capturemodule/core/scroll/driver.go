package scroll

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tidwall/gjson"
)

// smoothScript scrolls the first scrollable container (or the document) to
// its bottom over totalMs and resolves with {start, end, scrolled}.
const smoothScript = `(totalMs, smooth) => new Promise((resolve) => {
  const scrollable = (n) => {
    const s = getComputedStyle(n);
    return (s.overflowY === 'auto' || s.overflowY === 'scroll') && n.scrollHeight > n.clientHeight;
  };
  let el = Array.from(document.querySelectorAll('body *')).find(scrollable);
  if (!el) el = document.scrollingElement || document.documentElement || document.body;
  const start = el.scrollTop;
  const max = el.scrollHeight - el.clientHeight;
  if (max <= 0) {
    resolve({ start: start, end: start, scrolled: false });
    return;
  }
  const total = Math.max(1, totalMs);
  const ease = (p) => smooth ? (1 - Math.cos(Math.PI * p)) / 2 : p;
  const t0 = performance.now();
  const tick = (now) => {
    const p = Math.min(1, (now - t0) / total);
    el.scrollTop = start + (max - start) * ease(p);
    if (p >= 1) {
      resolve({ start: start, end: el.scrollTop, scrolled: el.scrollTop > start });
      return;
    }
    requestAnimationFrame(tick);
  };
  requestAnimationFrame(tick);
})`

// pageHeightScript reports the full document height.
const pageHeightScript = `() => Math.max(
  document.body ? document.body.scrollHeight : 0,
  document.documentElement ? document.documentElement.scrollHeight : 0
)`

const scrollToScript = `(y) => window.scrollTo(0, y)`

// Evaluator runs a JavaScript function in the page and returns its result
// encoded as JSON. Promises are awaited.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...interface{}) (string, error)
}

// SteppedPage is what the stepped strategy needs from a page.
type SteppedPage interface {
	Evaluator
	Screenshot(ctx context.Context) ([]byte, error)
}

// FrameSink receives each stepped screenshot in order, starting at zero.
type FrameSink func(index int, png []byte) error

// Report summarises a smooth scroll.
type Report struct {
	Start    float64
	End      float64
	Scrolled bool
}

// SteppedOptions configures a stepped capture.
type SteppedOptions struct {
	ViewportHeight int
	Step           int
	FPS            int
	DurationMs     int
}

// Driver runs scroll strategies against a page.
type Driver struct {
	logger hclog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a scroll driver.
func NewDriver(logger hclog.Logger) *Driver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Driver{logger: logger.Named("scroll"), sleep: Sleep}
}

// Smooth scrolls the page to the bottom over durationMs using the in-page
// animation and waits for it to finish.
func (d *Driver) Smooth(ctx context.Context, page Evaluator, durationMs int, smooth bool) (Report, error) {
	raw, err := page.Eval(ctx, smoothScript, durationMs, smooth)
	if err != nil {
		return Report{}, fmt.Errorf("smooth scroll: %w", err)
	}
	res := gjson.Parse(raw)
	report := Report{
		Start:    res.Get("start").Float(),
		End:      res.Get("end").Float(),
		Scrolled: res.Get("scrolled").Bool(),
	}
	d.logger.Debug("smooth scroll finished", "start", report.Start, "end", report.End, "scrolled", report.Scrolled)
	return report, nil
}

// Stepped scrolls through the page offset by offset, pausing one frame
// interval and taking a screenshot at each. It returns the number of frames
// handed to sink.
func (d *Driver) Stepped(ctx context.Context, page SteppedPage, opts SteppedOptions, sink FrameSink) (int, error) {
	height, err := d.pageHeight(ctx, page, opts.ViewportHeight)
	if err != nil {
		return 0, err
	}

	offsets := StepOffsets(height, opts.ViewportHeight, opts.Step, FrameBudget(opts.DurationMs, opts.FPS))
	delay := FrameDelay(opts.FPS)
	d.logger.Debug("stepped scroll planned", "page_height", height, "frames", len(offsets), "delay", delay)

	for i, y := range offsets {
		if _, err := page.Eval(ctx, scrollToScript, y); err != nil {
			return i, fmt.Errorf("scroll to %d: %w", y, err)
		}
		if err := d.sleep(ctx, delay); err != nil {
			return i, err
		}
		png, err := page.Screenshot(ctx)
		if err != nil {
			return i, fmt.Errorf("screenshot %d: %w", i, err)
		}
		if err := sink(i, png); err != nil {
			return i, err
		}
	}
	return len(offsets), nil
}

// pageHeight falls back to the viewport when the document height is unknown
// or smaller than the viewport.
func (d *Driver) pageHeight(ctx context.Context, page Evaluator, viewport int) (int, error) {
	raw, err := page.Eval(ctx, pageHeightScript)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		d.logger.Warn("could not measure page height", "error", err)
		return viewport, nil
	}
	h := int(gjson.Parse(raw).Int())
	if h < viewport {
		return viewport, nil
	}
	return h, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
