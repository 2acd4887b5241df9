package api

import (
	"context"

	"github.com/mantonx/scrollcast/internal/database"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/history"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/scratch"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

// CaptureService is what the handlers need from the capture module.
type CaptureService interface {
	Capture(ctx context.Context, req types.CaptureRequest, observer types.Observer) (*types.CaptureResult, error)
	Get(ctx context.Context, id string) (*database.CaptureRecord, error)
	List(ctx context.Context, opts history.ListOptions) ([]database.CaptureRecord, error)
	Active() int
	StorageStats() (*scratch.Stats, error)
}
