package database

import (
	"time"
)

// CaptureStatus represents the status of a capture
type CaptureStatus string

const (
	CaptureStatusRunning   CaptureStatus = "running"
	CaptureStatusCompleted CaptureStatus = "completed"
	CaptureStatusFailed    CaptureStatus = "failed"
)

// CaptureRecord is the persisted history of one capture request
type CaptureRecord struct {
	ID         string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	URL        string        `gorm:"type:text;not null" json:"url"`
	Mode       string        `gorm:"type:varchar(16);not null;index" json:"mode"`
	Status     CaptureStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Stage      string        `gorm:"type:varchar(32)" json:"stage,omitempty"`
	Error      string        `gorm:"type:text" json:"error,omitempty"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FPS        int           `json:"fps"`
	DurationMs int           `json:"durationMs"`
	FrameCount int           `json:"frameCount"`

	ContainerPath  string `gorm:"type:varchar(512)" json:"containerPath,omitempty"`
	MP4Path        string `gorm:"type:varchar(512)" json:"mp4Path,omitempty"`
	GIFPath        string `gorm:"type:varchar(512)" json:"gifPath,omitempty"`
	ContainerBytes int64  `json:"containerBytes,omitempty"`
	MP4Bytes       int64  `json:"mp4Bytes,omitempty"`
	GIFBytes       int64  `json:"gifBytes,omitempty"`

	StartedAt  time.Time  `gorm:"not null;index" json:"startedAt"`
	FinishedAt *time.Time `gorm:"index" json:"finishedAt,omitempty"`
}

// TableName returns the table name for GORM
func (CaptureRecord) TableName() string {
	return "capture_records"
}

// Elapsed is the wall time of a finished capture, or zero while running
func (r *CaptureRecord) Elapsed() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
