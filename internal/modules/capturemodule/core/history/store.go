// Package history records every capture request and its outcome.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/scrollcast/internal/database"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

// ErrNotFound is returned for an unknown capture id.
var ErrNotFound = errors.New("capture not found")

// MaxListLimit caps List results.
const MaxListLimit = 100

// ListOptions filters List.
type ListOptions struct {
	Limit  int
	Status database.CaptureStatus
	Mode   types.Mode
}

// Store persists capture records.
type Store interface {
	Start(ctx context.Context, id string, req types.CaptureRequest, at time.Time) error
	Complete(ctx context.Context, result *types.CaptureResult, at time.Time) error
	Fail(ctx context.Context, id, stage, message string, at time.Time) error
	Get(ctx context.Context, id string) (*database.CaptureRecord, error)
	List(ctx context.Context, opts ListOptions) ([]database.CaptureRecord, error)
}

// GormStore is a Store backed by gorm.
type GormStore struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewGormStore wraps an open database.
func NewGormStore(db *gorm.DB, logger hclog.Logger) *GormStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GormStore{db: db, logger: logger.Named("history")}
}

// Start inserts a running record.
func (s *GormStore) Start(ctx context.Context, id string, req types.CaptureRequest, at time.Time) error {
	rec := &database.CaptureRecord{
		ID:         id,
		URL:        req.URL,
		Mode:       string(req.Mode),
		Status:     database.CaptureStatusRunning,
		Width:      req.Width,
		Height:     req.Height,
		FPS:        req.FPS,
		DurationMs: req.DurationMs,
		StartedAt:  at,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert capture %s: %w", id, err)
	}
	return nil
}

// Complete marks a record completed with its outputs.
func (s *GormStore) Complete(ctx context.Context, result *types.CaptureResult, at time.Time) error {
	return s.update(ctx, result.ID, map[string]interface{}{
		"status":          database.CaptureStatusCompleted,
		"frame_count":     result.FrameCount,
		"container_path":  result.ContainerPath,
		"mp4_path":        result.MP4Path,
		"gif_path":        result.GIFPath,
		"container_bytes": result.SizesBytes.Container,
		"mp4_bytes":       result.SizesBytes.MP4,
		"gif_bytes":       result.SizesBytes.GIF,
		"finished_at":     at,
	})
}

// Fail marks a record failed at stage.
func (s *GormStore) Fail(ctx context.Context, id, stage, message string, at time.Time) error {
	return s.update(ctx, id, map[string]interface{}{
		"status":      database.CaptureStatusFailed,
		"stage":       stage,
		"error":       message,
		"finished_at": at,
	})
}

func (s *GormStore) update(ctx context.Context, id string, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&database.CaptureRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update capture %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads one record.
func (s *GormStore) Get(ctx context.Context, id string) (*database.CaptureRecord, error) {
	var rec database.CaptureRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load capture %s: %w", id, err)
	}
	return &rec, nil
}

// List returns the most recent records first.
func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]database.CaptureRecord, error) {
	limit := opts.Limit
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := s.db.WithContext(ctx).Model(&database.CaptureRecord{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Mode != "" {
		q = q.Where("mode = ?", string(opts.Mode))
	}

	var recs []database.CaptureRecord
	if err := q.Order("started_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	return recs, nil
}

// NopStore discards records. It is used when the database is disabled.
type NopStore struct{}

func (NopStore) Start(context.Context, string, types.CaptureRequest, time.Time) error { return nil }
func (NopStore) Complete(context.Context, *types.CaptureResult, time.Time) error     { return nil }
func (NopStore) Fail(context.Context, string, string, string, time.Time) error       { return nil }
func (NopStore) Get(context.Context, string) (*database.CaptureRecord, error)        { return nil, ErrNotFound }
func (NopStore) List(context.Context, ListOptions) ([]database.CaptureRecord, error) { return nil, nil }
