package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/mantonx/scrollcast/internal/errors"
	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

const wsWriteTimeout = 10 * time.Second

// StreamCapture handles POST /api/scroll
//
// Responds with application/x-ndjson: log events while the capture runs,
// then exactly one result or error event.
func (h *APIHandler) StreamCapture(c *gin.Context) {
	var raw types.RawCaptureRequest
	if err := c.ShouldBindJSON(&raw); err != nil && !errors.Is(err, io.EOF) {
		writeEvents(c, http.StatusBadRequest, types.ErrorEvent(string(apperrors.StageInvalidRequest), "malformed request body"))
		return
	}
	req, verr := raw.Resolve(types.ModeVideo)
	if verr != nil {
		writeEvents(c, http.StatusBadRequest, types.ErrorEvent(string(apperrors.StageInvalidRequest), verr.Message))
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	emit := func(ev types.Event) {
		if err := enc.Encode(ev); err != nil {
			h.logger.Debug("stream write failed", "error", err)
			return
		}
		c.Writer.Flush()
	}

	result, err := h.service.Capture(c.Request.Context(), req, func(message string) {
		emit(types.LogEvent(message))
	})
	if err != nil {
		ce := apperrors.AsCaptureError(err)
		emit(types.ErrorEvent(string(ce.Stage), ce.Error()))
		return
	}
	emit(types.ResultEvent(result))
}

func writeEvents(c *gin.Context, status int, events ...types.Event) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(status)
	enc := json.NewEncoder(c.Writer)
	for _, ev := range events {
		_ = enc.Encode(ev)
	}
}

// CaptureSocket handles GET /api/scroll/ws
//
// The first client message is the capture request. The server pushes the
// same events as StreamCapture and closes the connection.
func (h *APIHandler) CaptureSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := func(ev types.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			return false
		}
		return true
	}
	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}

	var raw types.RawCaptureRequest
	if err := conn.ReadJSON(&raw); err != nil {
		send(types.ErrorEvent(string(apperrors.StageInvalidRequest), "malformed request message"))
		closeWith(websocket.CloseUnsupportedData, "malformed request")
		return
	}
	req, verr := raw.Resolve(types.ModeVideo)
	if verr != nil {
		send(types.ErrorEvent(string(apperrors.StageInvalidRequest), verr.Message))
		closeWith(websocket.ClosePolicyViolation, verr.Field)
		return
	}

	// the server stops noticing disconnects once the connection is hijacked,
	// so a read error is what cancels the capture
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	result, err := h.service.Capture(ctx, req, func(message string) {
		send(types.LogEvent(message))
	})
	if err != nil {
		ce := apperrors.AsCaptureError(err)
		send(types.ErrorEvent(string(ce.Stage), ce.Error()))
		closeWith(websocket.CloseNormalClosure, string(ce.Stage))
		return
	}
	send(types.ResultEvent(result))
	closeWith(websocket.CloseNormalClosure, "done")
}
