package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/mantonx/scrollcast/internal/config"
	"github.com/mantonx/scrollcast/internal/database"
	"github.com/mantonx/scrollcast/internal/logger"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule"
	"github.com/mantonx/scrollcast/internal/server"
)

func main() {
	if err := run(); err != nil {
		logger.Error("scrollcast exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	configPath := os.Getenv("SCROLLCAST_CONFIG_PATH")
	if configPath == "" {
		configPath = "./scrollcast.yaml"
	}
	cm := config.NewConfigManager()
	if err := cm.LoadConfig(configPath); err != nil {
		return fmt.Errorf("load configuration from %s: %w", configPath, err)
	}
	cfg := cm.GetConfig()

	log := logger.Configure(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("configuration loaded", "path", configPath)
	if log.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	if cfg.Database.Enabled {
		var err error
		db, err = database.Open(database.Config{
			Type: cfg.Database.Type,
			Path: cfg.Database.Path,
			DSN:  cfg.Database.DSN,
		}, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
	}

	capture := capturemodule.NewModule(cfg, db, log)
	if err := capture.Init(); err != nil {
		return err
	}
	capture.Start(ctx)
	cm.AddWatcher(capture.OnConfigChange)
	if err := cm.Watch(ctx, log, 0); err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.SetupRouter(cfg, log, capture),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting scrollcast server", "addr", srv.Addr, "storage", capture.Storage().Root())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}
	if err := capture.Shutdown(shutdownCtx); err != nil {
		log.Error("capture module shutdown error", "error", err)
	}
	log.Info("server shutdown complete")
	return nil
}
