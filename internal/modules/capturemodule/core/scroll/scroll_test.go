package scroll

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	height     string
	heightErr  error
	smoothJSON string
	scrolls    []int
	shots      int
	shotErrAt  int
}

func (p *fakePage) Eval(_ context.Context, js string, args ...interface{}) (string, error) {
	switch js {
	case pageHeightScript:
		return p.height, p.heightErr
	case scrollToScript:
		p.scrolls = append(p.scrolls, args[0].(int))
		return "null", nil
	case smoothScript:
		return p.smoothJSON, nil
	}
	return "", errors.New("unexpected script")
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	p.shots++
	if p.shotErrAt > 0 && p.shots == p.shotErrAt {
		return nil, errors.New("target closed")
	}
	return []byte("png" + strconv.Itoa(p.shots)), nil
}

func newTestDriver() *Driver {
	d := NewDriver(hclog.NewNullLogger())
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func TestEase(t *testing.T) {
	assert.Equal(t, 0.0, Ease(0, true))
	assert.Equal(t, 1.0, Ease(1, true))
	assert.InDelta(t, 0.5, Ease(0.5, true), 1e-9)
	assert.Equal(t, 0.25, Ease(0.25, false))
	assert.Equal(t, 1.0, Ease(3, false))
}

func TestOffset_MonotonicAndBounded(t *testing.T) {
	for _, smooth := range []bool{true, false} {
		const start, max = 120.0, 4800.0
		total := 2 * time.Second
		prev := start
		for ms := 0; ms <= 2500; ms += 7 {
			y := Offset(start, max, time.Duration(ms)*time.Millisecond, total, smooth)
			assert.GreaterOrEqual(t, y, prev)
			assert.LessOrEqual(t, y, max)
			prev = y
		}
		assert.Equal(t, max, prev)
	}
}

func TestOffset_NothingToScroll(t *testing.T) {
	assert.Equal(t, 0.0, Offset(0, 0, time.Second, time.Second, true))
	assert.Equal(t, 3.0, Offset(3, -10, time.Second, time.Second, false))
}

func TestFrameBudgetAndDelay(t *testing.T) {
	assert.Equal(t, 60, FrameBudget(6000, 10))
	assert.Equal(t, 1, FrameBudget(500, 1))
	assert.Equal(t, 1, FrameBudget(0, 0))
	assert.Equal(t, 100*time.Millisecond, FrameDelay(10))
	assert.Equal(t, time.Second/60, FrameDelay(60))
}

func TestStepOffsets(t *testing.T) {
	tests := []struct {
		name                 string
		page, viewport, step int
		budget               int
		want                 []int
	}{
		{"exact multiple", 880, 800, 40, 100, []int{0, 40, 80}},
		{"clamped last step", 900, 800, 40, 100, []int{0, 40, 80, 100}},
		{"budget cuts", 5000, 800, 40, 3, []int{0, 40, 80}},
		{"no overflow", 600, 800, 40, 100, []int{0}},
		{"page equals viewport", 800, 800, 40, 100, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StepOffsets(tt.page, tt.viewport, tt.step, tt.budget))
		})
	}
}

func TestStepOffsets_CountFormula(t *testing.T) {
	for _, page := range []int{800, 801, 1000, 3333, 12000} {
		for _, step := range []int{1, 7, 40, 400} {
			bottom := page - 800
			want := (bottom+step-1)/step + 1
			got := StepOffsets(page, 800, step, 1<<30)
			require.Len(t, got, want)
			assert.Equal(t, bottom, got[len(got)-1])
		}
	}
}

func TestStepped_CapturesEveryOffset(t *testing.T) {
	page := &fakePage{height: "1000"}
	var frames []string

	n, err := newTestDriver().Stepped(context.Background(), page, SteppedOptions{
		ViewportHeight: 800, Step: 40, FPS: 10, DurationMs: 6000,
	}, func(i int, png []byte) error {
		assert.Equal(t, len(frames), i)
		frames = append(frames, string(png))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []int{0, 40, 80, 120, 160, 200}, page.scrolls)
	assert.Len(t, frames, 6)
}

func TestStepped_UnknownHeightYieldsOneFrame(t *testing.T) {
	page := &fakePage{heightErr: errors.New("eval failed")}
	n, err := newTestDriver().Stepped(context.Background(), page, SteppedOptions{
		ViewportHeight: 800, Step: 40, FPS: 10, DurationMs: 6000,
	}, func(int, []byte) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStepped_ScreenshotFailure(t *testing.T) {
	page := &fakePage{height: "2000", shotErrAt: 3}
	n, err := newTestDriver().Stepped(context.Background(), page, SteppedOptions{
		ViewportHeight: 800, Step: 100, FPS: 10, DurationMs: 6000,
	}, func(int, []byte) error { return nil })

	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.Contains(err.Error(), "screenshot 2"))
}

func TestStepped_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestDriver().Stepped(ctx, &fakePage{height: "2000"}, SteppedOptions{
		ViewportHeight: 800, Step: 100, FPS: 10, DurationMs: 6000,
	}, func(int, []byte) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSmooth_ParsesReport(t *testing.T) {
	page := &fakePage{smoothJSON: `{"start":0,"end":3200,"scrolled":true}`}
	report, err := newTestDriver().Smooth(context.Background(), page, 15000, true)
	require.NoError(t, err)
	assert.Equal(t, Report{Start: 0, End: 3200, Scrolled: true}, report)
}

func TestSleep_ContextAware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
