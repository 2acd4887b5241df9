package recorder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRepeats_NormalizesToFPS(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	frames := []Frame{
		{Timestamp: t0},
		{Timestamp: t0.Add(100 * time.Millisecond)},
		{Timestamp: t0.Add(300 * time.Millisecond)},
	}
	counts := Repeats(frames, 10, t0.Add(time.Second))
	assert.Equal(t, []int{1, 2, 7}, counts)
}

func TestRepeats_BurstCollapses(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	frames := []Frame{
		{Timestamp: t0},
		{Timestamp: t0.Add(10 * time.Millisecond)},
		{Timestamp: t0.Add(20 * time.Millisecond)},
	}
	counts := Repeats(frames, 25, t0.Add(200*time.Millisecond))
	assert.Equal(t, []int{0, 0, 5}, counts)
}

func TestRepeats_AlwaysOneFrame(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	counts := Repeats([]Frame{{Timestamp: t0}}, 25, t0)
	assert.Equal(t, []int{1}, counts)
	assert.Empty(t, Repeats(nil, 25, t0))
}

func TestRecorder_ConcurrentAddSorted(t *testing.T) {
	r := New(hclog.NewNullLogger())
	t0 := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Add([]byte{byte(i)}, t0.Add(time.Duration(50-i)*time.Millisecond))
		}(i)
	}
	wg.Wait()

	frames := r.Frames()
	require.Len(t, frames, 50)
	for i := 1; i < len(frames); i++ {
		assert.False(t, frames[i].Timestamp.Before(frames[i-1].Timestamp))
	}
}

func TestWriteAVI(t *testing.T) {
	r := New(nil)
	t0 := time.Now()
	r.Add(testJPEG(t, 64, 48, color.White), t0)
	r.Add(testJPEG(t, 64, 48, color.Black), t0.Add(200*time.Millisecond))

	path := filepath.Join(t.TempDir(), "recording.avi")
	n, err := r.WriteAVI(path, 10, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
}

func TestWriteAVI_NoFrames(t *testing.T) {
	_, err := New(nil).WriteAVI(filepath.Join(t.TempDir(), "x.avi"), 10, time.Now())
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestWriteAVI_BadJPEG(t *testing.T) {
	r := New(nil)
	r.Add([]byte("not a jpeg"), time.Now())
	_, err := r.WriteAVI(filepath.Join(t.TempDir(), "x.avi"), 10, time.Now())
	assert.Error(t, err)
}
