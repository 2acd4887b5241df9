package capturemodule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/scrollcast/internal/database"
	apperrors "github.com/mantonx/scrollcast/internal/errors"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/browser"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/history"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/notify"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/pipeline"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/scratch"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/session"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

// DefaultMediaRoute is where workspaces are published.
const DefaultMediaRoute = "/videos"

// ServiceOptions configure a Service.
type ServiceOptions struct {
	// MediaRoute prefixes the public paths in a CaptureResult.
	MediaRoute string
	// Timeout bounds one capture end to end. Zero means no deadline.
	Timeout  time.Duration
	Session  session.Config
	Pipeline pipeline.Options
}

// ServiceDeps are the collaborators of a Service. History and Notifier may
// be nil.
type ServiceDeps struct {
	Launcher browser.Launcher
	Resolver session.Resolver
	Encoder  pipeline.Encoder
	Scratch  *scratch.Store
	History  history.Store
	Notifier notify.Publisher
	Logger   hclog.Logger

	ProcessAlive func(pid int) bool
	NewID        func() string
}

// Service runs captures from request to published outputs.
type Service struct {
	deps   ServiceDeps
	logger hclog.Logger
	active atomic.Int64

	mu       sync.RWMutex
	opts     ServiceOptions
	pipeline *pipeline.Pipeline
}

// NewService creates a capture service.
func NewService(deps ServiceDeps, opts ServiceOptions) *Service {
	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	if deps.History == nil {
		deps.History = history.NopStore{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NopPublisher{}
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.New().String() }
	}
	s := &Service{deps: deps, logger: deps.Logger.Named("capture-service")}
	s.UpdateOptions(opts)
	return s
}

// UpdateOptions replaces the settings used by captures started afterwards.
func (s *Service) UpdateOptions(opts ServiceOptions) {
	if opts.MediaRoute == "" {
		opts.MediaRoute = DefaultMediaRoute
	}
	pipe := pipeline.New(s.deps.Encoder, opts.Pipeline, s.deps.Logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
	s.pipeline = pipe
}

func (s *Service) settings() (ServiceOptions, *pipeline.Pipeline) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts, s.pipeline
}

// Active is the number of captures in flight.
func (s *Service) Active() int {
	return int(s.active.Load())
}

// Capture runs one capture. The browser is released and the history record
// finalized before Capture returns. Errors carry a CaptureError stage.
func (s *Service) Capture(ctx context.Context, req types.CaptureRequest, observer types.Observer) (*types.CaptureResult, error) {
	s.active.Add(1)
	defer s.active.Add(-1)

	opts, pipe := s.settings()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	id := s.deps.NewID()
	started := time.Now()
	logger := s.logger.With("capture_id", id, "mode", req.Mode)
	logger.Info("capture started", "url", req.URL, "width", req.Width, "height", req.Height, "fps", req.FPS)

	ws, err := s.deps.Scratch.Open(id)
	if err != nil {
		return nil, apperrors.NewStorageFailure("open workspace", err)
	}
	if err := s.deps.History.Start(ctx, id, req, started); err != nil {
		logger.Warn("failed to record capture start", "error", err)
	}

	result, err := s.run(ctx, id, req, ws, opts, pipe, observer)
	if err != nil {
		s.fail(id, req, ws, started, err, logger)
		return nil, err
	}
	result.Elapsed = time.Since(started)

	finished := time.Now()
	if err := s.deps.History.Complete(context.WithoutCancel(ctx), result, finished); err != nil {
		logger.Warn("failed to record capture result", "error", err)
	}
	s.publish(context.WithoutCancel(ctx), notify.Completed(result, finished), logger)

	logger.Info("capture completed", "elapsed", result.Elapsed, "frames", result.FrameCount, "gif_bytes", result.SizesBytes.GIF)
	return result, nil
}

func (s *Service) run(ctx context.Context, id string, req types.CaptureRequest, ws *scratch.Workspace, opts ServiceOptions, pipe *pipeline.Pipeline, observer types.Observer) (*types.CaptureResult, error) {
	sess := session.New(id, session.Deps{
		Launcher:     s.deps.Launcher,
		Resolver:     s.deps.Resolver,
		Logger:       s.deps.Logger,
		ProcessAlive: s.deps.ProcessAlive,
	}, opts.Session, observer)

	out, err := sess.Run(ctx, req, ws)
	if err != nil {
		return nil, withDeadline(ctx, err)
	}

	route := opts.MediaRoute
	result := &types.CaptureResult{ID: id, URL: req.URL, FrameCount: out.FrameCount}

	if req.Mode == types.ModeVideo {
		observer.Notify("encoding mp4 and gif")
		art, err := pipe.Video(ctx, ws)
		if err != nil {
			return nil, withDeadline(ctx, err)
		}
		result.Kind = types.KindVideo
		result.ContainerPath = ws.PublicPath(route, scratch.ContainerFile)
		result.MP4Path = ws.PublicPath(route, scratch.MP4File)
		result.SizesBytes = types.Sizes{
			Container: ws.Size(scratch.ContainerFile),
			MP4:       art.MP4Size,
			GIF:       art.GIFSize,
		}
		result.GIFFile = art.GIFPath
	} else {
		observer.Notify(fmt.Sprintf("encoding gif from %d frames", out.FrameCount))
		art, err := pipe.Frames(ctx, ws, req.FPS)
		if err != nil {
			return nil, withDeadline(ctx, err)
		}
		result.Kind = types.KindFrames
		result.SizesBytes = types.Sizes{GIF: art.GIFSize}
		result.GIFFile = art.GIFPath
	}
	result.GIFPath = ws.PublicPath(route, scratch.GIFFile)
	return result, nil
}

// fail records a failed capture and removes its workspace so no partial
// output is ever published.
func (s *Service) fail(id string, req types.CaptureRequest, ws *scratch.Workspace, started time.Time, err error, logger hclog.Logger) {
	ce := apperrors.AsCaptureError(err)
	finished := time.Now()
	ctx := context.Background()

	if hErr := s.deps.History.Fail(ctx, id, string(ce.Stage), ce.Error(), finished); hErr != nil && !errors.Is(hErr, history.ErrNotFound) {
		logger.Warn("failed to record capture failure", "error", hErr)
	}
	if rmErr := ws.Remove(); rmErr != nil {
		logger.Warn("failed to remove workspace", "dir", ws.Dir, "error", rmErr)
	}
	s.publish(ctx, notify.Failed(id, req.URL, string(ce.Stage), ce.Error(), finished.Sub(started), finished), logger)
	logger.Warn("capture failed", "stage", ce.Stage, "error", err)
}

func (s *Service) publish(ctx context.Context, event notify.Event, logger hclog.Logger) {
	if err := s.deps.Notifier.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish capture event", "error", err)
	}
}

// Get returns the history record of a capture.
func (s *Service) Get(ctx context.Context, id string) (*database.CaptureRecord, error) {
	rec, err := s.deps.History.Get(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		if rec, ok := s.fromDisk(id); ok {
			return rec, nil
		}
		return nil, apperrors.NewNotFound("capture", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageFailure("load capture", err)
	}
	return rec, nil
}

// fromDisk describes a finished capture from its workspace when history
// has no record of it, as with the database disabled.
func (s *Service) fromDisk(id string) (*database.CaptureRecord, bool) {
	ws, ok := s.deps.Scratch.Lookup(id)
	if !ok {
		return nil, false
	}
	gifBytes := ws.Size(scratch.GIFFile)
	if gifBytes == 0 {
		return nil, false
	}
	opts, _ := s.settings()
	finished := ws.ModTime(scratch.GIFFile)
	rec := &database.CaptureRecord{
		ID:         id,
		Mode:       string(types.ModeFrames),
		Status:     database.CaptureStatusCompleted,
		GIFPath:    ws.PublicPath(opts.MediaRoute, scratch.GIFFile),
		GIFBytes:   gifBytes,
		StartedAt:  finished,
		FinishedAt: &finished,
	}
	if n := ws.Size(scratch.MP4File); n > 0 {
		rec.Mode = string(types.ModeVideo)
		rec.MP4Path = ws.PublicPath(opts.MediaRoute, scratch.MP4File)
		rec.MP4Bytes = n
		if c := ws.Size(scratch.ContainerFile); c > 0 {
			rec.ContainerPath = ws.PublicPath(opts.MediaRoute, scratch.ContainerFile)
			rec.ContainerBytes = c
		}
	}
	return rec, true
}

// List returns recent history records.
func (s *Service) List(ctx context.Context, opts history.ListOptions) ([]database.CaptureRecord, error) {
	recs, err := s.deps.History.List(ctx, opts)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list captures", err)
	}
	return recs, nil
}

// StorageStats describes the workspaces on disk.
func (s *Service) StorageStats() (*scratch.Stats, error) {
	return s.deps.Scratch.Stats()
}

// withDeadline marks errors caused by the overall capture timeout.
func withDeadline(ctx context.Context, err error) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	ce := apperrors.AsCaptureError(err)
	if ce.Context == nil {
		ce.Context = map[string]interface{}{}
	}
	ce.Context["timeout"] = true
	return ce
}
