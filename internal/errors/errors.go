package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scrollcast/internal/logger"
)

// Stage identifies the phase of a capture that failed.
type Stage string

const (
	StageInvalidRequest Stage = "invalid_request"
	StageLaunch         Stage = "launch"
	StageNavigation     Stage = "navigation"
	StageCapture        Stage = "capture"
	StageEncode         Stage = "encode"
	StageNoFrames       Stage = "no_frames"
	StageStorage        Stage = "storage"
	StageNotFound       Stage = "not_found"
	StageInternal       Stage = "internal"
)

// CaptureError is a terminal failure of one request, tagged with the stage it
// happened in.
type CaptureError struct {
	Stage      Stage                  `json:"stage"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *CaptureError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *CaptureError) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status for the error, defaulting to 500.
func (e *CaptureError) Status() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

// ToGinResponse sends the error as a standardized JSON response
func (e *CaptureError) ToGinResponse(c *gin.Context) {
	status := e.Status()

	response := gin.H{
		"error": e.Error(),
		"code":  e.Code,
	}
	details := gin.H{"stage": e.Stage}
	for k, v := range e.Context {
		details[k] = v
	}
	response["details"] = details

	e.log(c, status)
	c.JSON(status, response)
}

// WriteText sends the error as "<stage>: <message>" plain text.
func (e *CaptureError) WriteText(c *gin.Context) {
	status := e.Status()
	e.log(c, status)
	c.Header("X-Capture-Stage", string(e.Stage))
	c.String(status, "%s: %s", e.Stage, e.Error())
}

func (e *CaptureError) log(c *gin.Context, status int) {
	logger.Error("HTTP error response",
		"status", status,
		"stage", e.Stage,
		"code", e.Code,
		"error", e.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method)
}

// New builds a CaptureError for a stage. Invalid requests map to 400, missing
// records to 404 and everything else to 500.
func New(stage Stage, message string, cause error) *CaptureError {
	status := http.StatusInternalServerError
	switch stage {
	case StageInvalidRequest:
		status = http.StatusBadRequest
	case StageNotFound:
		status = http.StatusNotFound
	}
	return &CaptureError{
		Stage:      stage,
		Code:       codeFor(stage),
		Message:    message,
		Cause:      cause,
		HTTPStatus: status,
	}
}

// Common error constructors
func NewInvalidRequest(message, field string) *CaptureError {
	e := New(StageInvalidRequest, message, nil)
	e.Context = map[string]interface{}{"field": field}
	return e
}

func NewLaunchFailure(cause error) *CaptureError {
	return New(StageLaunch, "browser launch failed", cause)
}

func NewNavigationFailure(url string, cause error) *CaptureError {
	e := New(StageNavigation, "navigation failed", cause)
	e.Context = map[string]interface{}{"url": url}
	return e
}

func NewCaptureFailure(cause error) *CaptureError {
	return New(StageCapture, "capture failed", cause)
}

func NewEncodeFailure(cause error) *CaptureError {
	return New(StageEncode, "encoding failed", cause)
}

func NewNoFramesFailure() *CaptureError {
	return New(StageNoFrames, "capture produced no frames", nil)
}

func NewStorageFailure(operation string, cause error) *CaptureError {
	e := New(StageStorage, "storage operation failed", cause)
	e.Context = map[string]interface{}{"operation": operation}
	return e
}

func NewNotFound(resource, id string) *CaptureError {
	e := New(StageNotFound, resource+" not found", nil)
	e.Context = map[string]interface{}{"resource": resource, "id": id}
	return e
}

// StageOf returns the stage of the first CaptureError in err's chain.
func StageOf(err error) (Stage, bool) {
	var ce *CaptureError
	if stderrors.As(err, &ce) {
		return ce.Stage, true
	}
	return "", false
}

// AsCaptureError returns err as a CaptureError, wrapping unknown errors as
// capture failures.
func AsCaptureError(err error) *CaptureError {
	var ce *CaptureError
	if stderrors.As(err, &ce) {
		return ce
	}
	return NewCaptureFailure(err)
}

func codeFor(stage Stage) string {
	switch stage {
	case StageInvalidRequest:
		return "INVALID_REQUEST"
	case StageLaunch:
		return "LAUNCH_FAILURE"
	case StageNavigation:
		return "NAVIGATION_FAILURE"
	case StageCapture:
		return "CAPTURE_FAILURE"
	case StageEncode:
		return "ENCODE_FAILURE"
	case StageNoFrames:
		return "NO_FRAMES_FAILURE"
	case StageStorage:
		return "STORAGE_ERROR"
	case StageNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}
