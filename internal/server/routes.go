package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/scrollcast/internal/config"
	apperrors "github.com/mantonx/scrollcast/internal/errors"
)

// setupStaticRoutes serves capture outputs under the media route and the UI
// for every other unmatched path.
func setupStaticRoutes(r *gin.Engine, cfg *config.Config) {
	route := "/" + strings.Trim(cfg.Server.MediaRoute, "/")
	r.Static(route, cfg.Storage.Dir)

	uiDir := cfg.Server.UIDir
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			apperrors.NewNotFound("route", c.Request.URL.Path).ToGinResponse(c)
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusMethodNotAllowed)
			return
		}
		if uiDir == "" {
			c.Status(http.StatusNotFound)
			return
		}

		name := filepath.Join(uiDir, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			c.File(name)
			return
		}
		index := filepath.Join(uiDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	})
}
