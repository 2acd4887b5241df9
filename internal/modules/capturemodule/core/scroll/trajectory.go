// Package scroll moves a page from top to bottom while it is being captured.
//
// Two strategies exist. The smooth strategy runs entirely inside the page on
// requestAnimationFrame so a screencast sees continuous motion. The stepped
// strategy moves the page a fixed number of pixels at a time and hands every
// position to a frame sink. Ease and Offset describe the curve the in-page
// script follows; the script itself is exercised against a real browser
// when one is installed.
package scroll

import (
	"math"
	"time"
)

// Ease maps linear progress p in [0,1] onto the scroll curve. With smoothing
// the curve is a half cosine, which starts and ends at rest.
func Ease(p float64, smooth bool) float64 {
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return 1
	}
	if !smooth {
		return p
	}
	return (1 - math.Cos(math.Pi*p)) / 2
}

// Offset returns the scroll position elapsed into a total-length animation
// from start to max. When max is not positive there is nothing to scroll and
// start is returned unchanged.
func Offset(start, max float64, elapsed, total time.Duration, smooth bool) float64 {
	if max <= 0 {
		return start
	}
	if total <= 0 {
		total = time.Millisecond
	}
	p := math.Min(1, float64(elapsed)/float64(total))
	return start + (max-start)*Ease(p, smooth)
}

// FrameBudget is the most frames a stepped capture of durationMs at fps may
// take. It is never less than one.
func FrameBudget(durationMs, fps int) int {
	budget := int(math.Floor(float64(durationMs) / 1000 * float64(fps)))
	if budget < 1 {
		return 1
	}
	return budget
}

// FrameDelay is the pause before each stepped screenshot.
func FrameDelay(fps int) time.Duration {
	if fps <= 0 {
		return time.Second
	}
	d := time.Second / time.Duration(fps)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

// Bottom is the furthest scroll offset of a page, given its full height and
// the viewport height. Heights below the viewport are treated as the
// viewport, so the result is never negative.
func Bottom(pageHeight, viewportHeight int) int {
	if pageHeight < viewportHeight {
		pageHeight = viewportHeight
	}
	return pageHeight - viewportHeight
}

// StepOffsets lists the scroll offsets of a stepped capture: 0, step,
// 2*step and so on, with the last one clamped to the bottom of the page. The
// list is cut to budget entries and always has at least one.
func StepOffsets(pageHeight, viewportHeight, step, budget int) []int {
	if step < 1 {
		step = 1
	}
	if budget < 1 {
		budget = 1
	}
	bottom := Bottom(pageHeight, viewportHeight)
	count := (bottom+step-1)/step + 1
	if count > budget {
		count = budget
	}

	offsets := make([]int, count)
	for i := range offsets {
		y := i * step
		if y > bottom {
			y = bottom
		}
		offsets[i] = y
	}
	return offsets
}
