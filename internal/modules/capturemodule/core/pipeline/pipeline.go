// Package pipeline turns a raw capture into its published outputs by
// running ffmpeg over the files in a workspace.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-hclog"

	apperrors "github.com/mantonx/scrollcast/internal/errors"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/scratch"
	"github.com/mantonx/scrollcast/internal/transcode/ffmpeg"
)

// Encoder runs one ffmpeg invocation.
type Encoder interface {
	Run(ctx context.Context, args []string) error
}

// Options are the encoder settings.
type Options struct {
	MP4CRF   int
	GIFFPS   int
	GIFWidth int
	Dither   string
}

// DefaultOptions match the encoder section defaults.
func DefaultOptions() Options {
	return Options{MP4CRF: 18, GIFFPS: 12, GIFWidth: 800, Dither: "sierra2_4a"}
}

// Artifacts are the files a pathway produced.
type Artifacts struct {
	MP4Path string
	GIFPath string
	MP4Size int64
	GIFSize int64
	Elapsed time.Duration
}

// Pipeline runs the video and frames pathways.
type Pipeline struct {
	enc    Encoder
	opts   Options
	logger hclog.Logger
}

// New creates a pipeline.
func New(enc Encoder, opts Options, logger hclog.Logger) *Pipeline {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	d := DefaultOptions()
	if opts.GIFFPS <= 0 {
		opts.GIFFPS = d.GIFFPS
	}
	if opts.GIFWidth <= 0 {
		opts.GIFWidth = d.GIFWidth
	}
	if opts.Dither == "" {
		opts.Dither = d.Dither
	}
	return &Pipeline{enc: enc, opts: opts, logger: logger.Named("pipeline")}
}

// Video converts the workspace's recorded container into an MP4 and then a
// GIF. The GIF is only attempted after the MP4 succeeded.
func (p *Pipeline) Video(ctx context.Context, ws *scratch.Workspace) (*Artifacts, error) {
	start := time.Now()
	container := ws.Path(scratch.ContainerFile)
	if _, err := os.Stat(container); err != nil {
		return nil, apperrors.NewEncodeFailure(fmt.Errorf("missing recording: %w", err))
	}
	if err := removeOutputs(ws, scratch.MP4File, scratch.GIFFile); err != nil {
		return nil, apperrors.NewEncodeFailure(err)
	}

	mp4 := ws.Path(scratch.MP4File)
	if err := p.run(ctx, "mp4", ffmpeg.MP4Args(container, mp4, p.opts.MP4CRF)); err != nil {
		return nil, err
	}

	gif := ws.Path(scratch.GIFFile)
	args := ffmpeg.VideoGIFArgs(container, gif, ffmpeg.GIFOptions{FPS: p.opts.GIFFPS, Width: p.opts.GIFWidth})
	if err := p.run(ctx, "gif", args); err != nil {
		return nil, err
	}
	if err := verifyGIF(gif); err != nil {
		return nil, err
	}

	return &Artifacts{
		MP4Path: mp4,
		GIFPath: gif,
		MP4Size: ws.Size(scratch.MP4File),
		GIFSize: ws.Size(scratch.GIFFile),
		Elapsed: time.Since(start),
	}, nil
}

// Frames builds a palette from the workspace's frame sequence and then a
// GIF quantized against it. The frames and palette are removed afterwards.
func (p *Pipeline) Frames(ctx context.Context, ws *scratch.Workspace, fps int) (*Artifacts, error) {
	start := time.Now()
	if _, err := os.Stat(ws.FramePath(0)); err != nil {
		return nil, apperrors.NewNoFramesFailure()
	}
	if err := removeOutputs(ws, scratch.PaletteFile, scratch.GIFFile); err != nil {
		return nil, apperrors.NewEncodeFailure(err)
	}

	palette := ws.Path(scratch.PaletteFile)
	if err := p.run(ctx, "palette", ffmpeg.PaletteArgs(ws.FrameGlob(), fps, palette)); err != nil {
		return nil, err
	}

	gif := ws.Path(scratch.GIFFile)
	if err := p.run(ctx, "gif", ffmpeg.FramesGIFArgs(ws.FrameGlob(), palette, fps, p.opts.Dither, gif)); err != nil {
		return nil, err
	}
	if err := verifyGIF(gif); err != nil {
		return nil, err
	}

	if err := ws.RemoveFrames(); err != nil {
		p.logger.Warn("failed to remove frames", "dir", ws.Dir, "error", err)
	}

	return &Artifacts{
		GIFPath: gif,
		GIFSize: ws.Size(scratch.GIFFile),
		Elapsed: time.Since(start),
	}, nil
}

func (p *Pipeline) run(ctx context.Context, step string, args []string) error {
	started := time.Now()
	if err := p.enc.Run(ctx, args); err != nil {
		return apperrors.NewEncodeFailure(fmt.Errorf("%s: %w", step, err))
	}
	p.logger.Debug("encode step finished", "step", step, "elapsed", time.Since(started))
	return nil
}

func removeOutputs(ws *scratch.Workspace, names ...string) error {
	for _, name := range names {
		if err := os.Remove(ws.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
	}
	return nil
}

func verifyGIF(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return apperrors.NewEncodeFailure(fmt.Errorf("read output: %w", err))
	}
	if !mt.Is("image/gif") {
		return apperrors.NewEncodeFailure(fmt.Errorf("output is %s, not image/gif", mt.String()))
	}
	return nil
}
