package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the capture routes.
//
//	/api
//	├── POST /gif            - frames capture, GIF attachment
//	├── POST /scroll         - video capture, NDJSON progress
//	├── GET  /scroll/ws      - video capture, websocket progress
//	├── POST /captures       - blocking capture, JSON result
//	├── GET  /captures       - capture history
//	├── GET  /captures/:id   - one history record
//	└── GET  /health         - liveness and process counts
func RegisterRoutes(router *gin.Engine, handler *APIHandler) {
	api := router.Group("/api")
	{
		api.POST("/gif", handler.CaptureGIF)
		api.POST("/scroll", handler.StreamCapture)
		api.GET("/scroll/ws", handler.CaptureSocket)

		api.POST("/captures", handler.CreateCapture)
		api.GET("/captures", handler.ListCaptures)
		api.GET("/captures/:id", handler.GetCapture)

		api.GET("/health", handler.Health)
	}
}
