// Package api exposes the capture service over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/scrollcast/internal/database"
	apperrors "github.com/mantonx/scrollcast/internal/errors"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/core/history"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

// APIHandler serves the capture routes.
type APIHandler struct {
	service    CaptureService
	logger     hclog.Logger
	version    string
	upgrader   websocket.Upgrader
	childCount func() (int, error)
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(service CaptureService, version string, logger hclog.Logger) *APIHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &APIHandler{
		service: service,
		logger:  logger.Named("capture-api"),
		version: version,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		childCount: childProcesses,
	}
}

// bindRequest decodes a form or JSON body. An empty body decodes to the zero
// request so that the missing url is reported as such.
func bindRequest(c *gin.Context, fallback types.Mode) (types.CaptureRequest, *apperrors.CaptureError) {
	var raw types.RawCaptureRequest
	if err := c.ShouldBind(&raw); err != nil && !errors.Is(err, io.EOF) {
		return types.CaptureRequest{}, apperrors.New(apperrors.StageInvalidRequest, "malformed request body", err)
	}
	req, verr := raw.Resolve(fallback)
	if verr != nil {
		return types.CaptureRequest{}, apperrors.NewInvalidRequest(verr.Message, verr.Field)
	}
	return req, nil
}

// CaptureGIF handles POST /api/gif
//
// Accepts form or JSON fields, runs a frames capture by default and streams
// the GIF back as an attachment. Failures are plain text "<stage>: <message>".
func (h *APIHandler) CaptureGIF(c *gin.Context) {
	req, cerr := bindRequest(c, types.ModeFrames)
	if cerr != nil {
		cerr.WriteText(c)
		return
	}

	result, err := h.service.Capture(c.Request.Context(), req, nil)
	if err != nil {
		apperrors.AsCaptureError(err).WriteText(c)
		return
	}

	c.Header("Content-Type", "image/gif")
	c.Header("X-Capture-ID", result.ID)
	c.FileAttachment(result.GIFFile, "capture.gif")
}

// CreateCapture handles POST /api/captures
//
// Blocks until the capture finishes and responds 201 with the CaptureResult.
func (h *APIHandler) CreateCapture(c *gin.Context) {
	req, cerr := bindRequest(c, types.ModeFrames)
	if cerr != nil {
		cerr.ToGinResponse(c)
		return
	}

	result, err := h.service.Capture(c.Request.Context(), req, nil)
	if err != nil {
		apperrors.AsCaptureError(err).ToGinResponse(c)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListCaptures handles GET /api/captures
//
// Query: limit (max 100), status, mode.
func (h *APIHandler) ListCaptures(c *gin.Context) {
	opts := history.ListOptions{
		Status: database.CaptureStatus(c.Query("status")),
		Mode:   types.Mode(c.Query("mode")),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			apperrors.NewInvalidRequest("limit must be a positive integer", "limit").ToGinResponse(c)
			return
		}
		opts.Limit = limit
	}

	recs, err := h.service.List(c.Request.Context(), opts)
	if err != nil {
		apperrors.AsCaptureError(err).ToGinResponse(c)
		return
	}
	if recs == nil {
		recs = []database.CaptureRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"captures": recs,
		"count":    len(recs),
	})
}

// GetCapture handles GET /api/captures/:id
func (h *APIHandler) GetCapture(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.AsCaptureError(err).ToGinResponse(c)
		return
	}
	c.JSON(http.StatusOK, rec)
}
