package types

import "time"

// Kind identifies the shape of a CaptureResult.
type Kind string

const (
	KindVideo  Kind = "video"
	KindFrames Kind = "frames"
)

// Sizes holds output sizes in bytes. Absent outputs are zero.
type Sizes struct {
	Container int64 `json:"container,omitempty"`
	MP4       int64 `json:"mp4,omitempty"`
	GIF       int64 `json:"gif"`
}

// CaptureResult describes the published outputs of a successful capture.
// Paths are public URLs under the media route.
type CaptureResult struct {
	ID            string        `json:"id"`
	Kind          Kind          `json:"kind"`
	URL           string        `json:"url"`
	ContainerPath string        `json:"containerPath,omitempty"`
	MP4Path       string        `json:"mp4Path,omitempty"`
	GIFPath       string        `json:"gifPath"`
	FrameCount    int           `json:"frameCount,omitempty"`
	SizesBytes    Sizes         `json:"sizesBytes"`
	Elapsed       time.Duration `json:"-"`

	// GIFFile is the on-disk location of the GIF for handlers that stream it.
	GIFFile string `json:"-"`
}

// EventType identifies a progress stream event.
type EventType string

const (
	EventLog    EventType = "log"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one line of the NDJSON and websocket progress streams.
type Event struct {
	Type    EventType      `json:"type"`
	Message string         `json:"message,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Payload *CaptureResult `json:"payload,omitempty"`
}

// LogEvent builds a progress message event.
func LogEvent(message string) Event {
	return Event{Type: EventLog, Message: message}
}

// ResultEvent builds the terminal success event.
func ResultEvent(result *CaptureResult) Event {
	return Event{Type: EventResult, Payload: result}
}

// ErrorEvent builds the terminal failure event.
func ErrorEvent(stage, message string) Event {
	return Event{Type: EventError, Stage: stage, Message: message}
}

// Observer receives progress messages while a capture runs. Implementations
// must be safe to call from the capturing goroutine.
type Observer func(message string)

// Notify calls o when it is set.
func (o Observer) Notify(message string) {
	if o != nil {
		o(message)
	}
}
