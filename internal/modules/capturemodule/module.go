// Package capturemodule captures scrolling web pages as GIF and MP4.
//
// A capture launches a fresh headless browser, loads the page, scrolls it
// either smoothly while the screencast records (video) or in fixed steps with
// a screenshot per step (frames), and hands the raw output to ffmpeg.
//
// Architecture:
//
//	api → Service → session (browser, scroll, recorder) → pipeline (ffmpeg)
//	                 └→ history (gorm), notify (redis)
//
// Every request owns a scratch workspace under storage.dir named by its
// capture id; the workspace is published under the media route.
package capturemodule

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/scrollcast/internal/config"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/api"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/browser"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/history"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/notify"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/pipeline"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/scratch"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/session"
	"github.com/mantonx/scrollcast/internal/transcode/ffmpeg"
)

const (
	// ModuleID is the unique identifier for the capture module
	ModuleID = "system.capture"

	// ModuleName is the display name for the capture module
	ModuleName = "Capture Manager"

	// ModuleVersion is the version of the capture module
	ModuleVersion = "1.0.0"
)

// Option overrides a collaborator of the module, mainly for tests.
type Option func(*Module)

// WithLauncher replaces the go-rod launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(m *Module) { m.launcher = l }
}

// WithResolver replaces the browser executable lookup.
func WithResolver(r session.Resolver) Option {
	return func(m *Module) { m.resolver = r }
}

// WithEncoder replaces the ffmpeg runner.
func WithEncoder(e pipeline.Encoder) Option {
	return func(m *Module) { m.encoder = e }
}

// WithProcessCheck replaces the browser exit check.
func WithProcessCheck(alive func(pid int) bool) Option {
	return func(m *Module) { m.processAlive = alive }
}

// Module wires the capture service from configuration
type Module struct {
	mu     sync.Mutex
	cfg    *config.Config
	db     *gorm.DB
	logger hclog.Logger

	launcher     browser.Launcher
	resolver     session.Resolver
	encoder      pipeline.Encoder
	processAlive func(pid int) bool

	scratch  *scratch.Store
	notifier notify.Publisher
	service  *Service
	handler  *api.APIHandler
}

// NewModule creates the capture module. db may be nil when history is
// disabled.
func NewModule(cfg *config.Config, db *gorm.DB, logger hclog.Logger, opts ...Option) *Module {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := &Module{cfg: cfg, db: db, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// GetVersion returns the module version
func (m *Module) GetVersion() string {
	return ModuleVersion
}

// Init builds the service and its collaborators
func (m *Module) Init() error {
	m.logger.Info("Initializing capture module")

	store, err := scratch.NewStore(m.cfg.Storage.Dir, m.logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	m.scratch = store

	if m.launcher == nil {
		m.launcher = browser.NewRodLauncher(m.logger)
	}
	if m.resolver == nil {
		m.resolver = browser.NewResolver(m.cfg.Browser.BinPath, m.cfg.Browser.FallbackPaths)
	}
	if m.encoder == nil {
		runner := ffmpeg.NewRunner(m.logger, m.cfg.Encoder.FFmpegPath)
		m.logger.Info("using encoder", "path", runner.Path())
		m.encoder = runner
	}

	var hist history.Store = history.NopStore{}
	if m.db != nil {
		hist = history.NewGormStore(m.db, m.logger)
	}

	m.notifier = notify.NopPublisher{}
	if m.cfg.Notify.RedisURL != "" {
		pub, err := notify.NewRedisPublisher(m.cfg.Notify.RedisURL, m.cfg.Notify.Channel, m.logger)
		if err != nil {
			return fmt.Errorf("failed to configure notifications: %w", err)
		}
		m.notifier = pub
		m.logger.Info("capture notifications enabled", "channel", m.cfg.Notify.Channel)
	}

	m.service = NewService(ServiceDeps{
		Launcher:     m.launcher,
		Resolver:     m.resolver,
		Encoder:      m.encoder,
		Scratch:      store,
		History:      hist,
		Notifier:     m.notifier,
		Logger:       m.logger,
		ProcessAlive: m.processAlive,
	}, serviceOptions(m.cfg))
	m.handler = api.NewAPIHandler(m.service, ModuleVersion, m.logger)
	return nil
}

// RegisterRoutes mounts the capture API
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api.RegisterRoutes(router, m.handler)
}

// Start runs the retention janitor until ctx is done
func (m *Module) Start(ctx context.Context) {
	go m.scratch.RunJanitor(ctx, m.cfg.Storage.JanitorInterval, m.cfg.Storage.Retention)
}

// OnConfigChange applies encoder, browser and capture settings to new
// captures. Storage, database, notification and executable changes need a
// restart.
func (m *Module) OnConfigChange(oldConfig, newConfig *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.service == nil {
		return
	}
	m.cfg = newConfig
	m.service.UpdateOptions(serviceOptions(newConfig))
	if oldConfig.Storage.Dir != newConfig.Storage.Dir || oldConfig.Database != newConfig.Database {
		m.logger.Warn("storage or database settings changed; restart to apply")
	}
	m.logger.Info("capture settings reloaded")
}

// Service returns the capture service
func (m *Module) Service() *Service {
	return m.service
}

// Storage returns the scratch store served under the media route
func (m *Module) Storage() *scratch.Store {
	return m.scratch
}

// Shutdown releases the notifier connection
func (m *Module) Shutdown(context.Context) error {
	if m.notifier != nil {
		return m.notifier.Close()
	}
	return nil
}

func serviceOptions(cfg *config.Config) ServiceOptions {
	return ServiceOptions{
		MediaRoute: cfg.Server.MediaRoute,
		Timeout:    cfg.Capture.Timeout,
		Session: session.Config{
			Headless:          cfg.Browser.Headless,
			NoSandbox:         cfg.Browser.NoSandbox,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			IdleWindow:        cfg.Browser.IdleWindow,
			ScreencastQuality: cfg.Capture.ScreencastQuality,
		},
		Pipeline: pipeline.Options{
			MP4CRF:   cfg.Encoder.MP4CRF,
			GIFFPS:   cfg.Encoder.GIFFPS,
			GIFWidth: cfg.Encoder.GIFWidth,
			Dither:   cfg.Encoder.Dither,
		},
	}
}
