package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"
)

// Health handles GET /api/health
//
// Reports the number of captures in flight and of live child processes
// (browsers and encoders) so leaked processes are visible, plus the size
// of the storage root.
func (h *APIHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": h.version,
		"active":  h.service.Active(),
	}
	children, err := h.childCount()
	if err != nil {
		h.logger.Debug("child process lookup failed", "error", err)
		body["childProcesses"] = nil
	} else {
		body["childProcesses"] = children
	}
	if stats, err := h.service.StorageStats(); err != nil {
		h.logger.Warn("storage stats failed", "error", err)
	} else {
		body["storage"] = gin.H{
			"workspaces": stats.Workspaces,
			"bytes":      stats.TotalSize,
			"oldestSecs": int64(stats.Oldest.Seconds()),
		}
	}
	c.JSON(http.StatusOK, body)
}

func childProcesses() (int, error) {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	children, err := self.Children()
	if errors.Is(err, process.ErrorNoChildren) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(children), nil
}
