// Package recorder collects screencast frames and writes them out as a
// constant frame rate MJPEG AVI container.
package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/icza/mjpeg"
)

// MaxFrames bounds memory use. At 60 fps this is more than five minutes.
const MaxFrames = 20000

// ErrNoFrames is returned when a container is written with no frames.
var ErrNoFrames = errors.New("no screencast frames recorded")

// Frame is one JPEG image and the time the browser produced it.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Recorder accumulates frames. Add is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	frames  []Frame
	dropped int
	logger  hclog.Logger
}

// New creates an empty recorder.
func New(logger hclog.Logger) *Recorder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Recorder{logger: logger.Named("recorder")}
}

// Add stores a frame. Frames beyond MaxFrames are dropped.
func (r *Recorder) Add(data []byte, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) >= MaxFrames {
		r.dropped++
		return
	}
	r.frames = append(r.frames, Frame{Data: data, Timestamp: ts})
}

// Len is the number of stored frames.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Frames returns the stored frames sorted by timestamp.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	frames := append([]Frame(nil), r.frames...)
	r.mu.Unlock()

	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Timestamp.Before(frames[j].Timestamp)
	})
	return frames
}

// Repeats spreads frames over a constant fps timeline that ends at end.
// Screencast frames only arrive when the page repaints, so each frame is
// repeated for as many output slots as it stayed on screen. Entry i is how
// many times frames[i] is written. frames must be sorted.
func Repeats(frames []Frame, fps int, end time.Time) []int {
	counts := make([]int, len(frames))
	if len(frames) == 0 || fps <= 0 {
		return counts
	}

	start := frames[0].Timestamp
	slot := func(t time.Time) int {
		if t.Before(start) {
			return 0
		}
		return int(t.Sub(start) * time.Duration(fps) / time.Second)
	}

	total := 0
	for i := range frames {
		next := end
		if i+1 < len(frames) {
			next = frames[i+1].Timestamp
		}
		n := slot(next) - total
		if n < 0 {
			n = 0
		}
		counts[i] = n
		total += n
	}
	if total == 0 {
		counts[len(counts)-1] = 1
	}
	return counts
}

// WriteAVI writes the frames to path at fps and returns how many output
// frames the container holds. The frame size is taken from the first frame.
func (r *Recorder) WriteAVI(path string, fps int, end time.Time) (int, error) {
	frames := r.Frames()
	if len(frames) == 0 {
		return 0, ErrNoFrames
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frames[0].Data))
	if err != nil {
		return 0, fmt.Errorf("decode first frame: %w", err)
	}

	aw, err := mjpeg.New(path, int32(cfg.Width), int32(cfg.Height), int32(fps))
	if err != nil {
		return 0, fmt.Errorf("create container: %w", err)
	}

	written := 0
	for i, n := range Repeats(frames, fps, end) {
		for j := 0; j < n; j++ {
			if err := aw.AddFrame(frames[i].Data); err != nil {
				_ = aw.Close()
				return written, fmt.Errorf("add frame: %w", err)
			}
			written++
		}
	}
	if err := aw.Close(); err != nil {
		return written, fmt.Errorf("close container: %w", err)
	}

	r.mu.Lock()
	dropped := r.dropped
	r.mu.Unlock()
	r.logger.Debug("container written", "path", path, "source_frames", len(frames), "frames", written, "dropped", dropped)
	return written, nil
}
