// Package server assembles the HTTP router.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/scrollcast/internal/config"
	apperrors "github.com/mantonx/scrollcast/internal/errors"
	"github.com/mantonx/scrollcast/internal/middleware"
)

// RouteRegistrar mounts a module's routes.
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// SetupRouter configures and returns the main router
func SetupRouter(cfg *config.Config, logger hclog.Logger, modules ...RouteRegistrar) *gin.Engine {
	r := gin.New()
	r.Use(
		apperrors.RecoveryMiddleware(),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.ErrorLogger(logger),
	)

	// CORS middleware for the bundled UI and local tools
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	for _, m := range modules {
		m.RegisterRoutes(r)
	}
	setupStaticRoutes(r, cfg)
	return r
}
