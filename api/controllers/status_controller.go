package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/tool"
)

type StatusController struct {
	engine *cast.Engine
}

func NewStatusController(engine *cast.Engine) *StatusController {
	return &StatusController{engine: engine}
}

// HandleStatus returns engine status for the control page.
// GET /api/cast/v1/status
func (ctrl *StatusController) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": true,
		"version": tool.Version,
		"devices": len(ctrl.engine.Devices()),
	})
}

// HandleDeviceStatus returns the playback state of one renderer.
// GET /api/cast/v1/devices/:id/status
func (ctrl *StatusController) HandleDeviceStatus(c *gin.Context) {
	status, err := ctrl.engine.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Device not found"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(status))
}

// HandleProgress returns the interpolated playback position.
// GET /api/cast/v1/devices/:id/progress
func (ctrl *StatusController) HandleProgress(c *gin.Context) {
	id := c.Param("id")
	snapshot, err := ctrl.engine.Progress(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, cast.ErrUnknownDevice) {
			c.JSON(http.StatusNotFound, tool.FastReturnError("Device not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, tool.FastReturnCommandFailed(id, err))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snapshot))
}

// HandleVolume returns the cached or freshly fetched volume.
// GET /api/cast/v1/devices/:id/volume
func (ctrl *StatusController) HandleVolume(c *gin.Context) {
	id := c.Param("id")
	snapshot, err := ctrl.engine.Volume(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, cast.ErrUnknownDevice) {
			c.JSON(http.StatusNotFound, tool.FastReturnError("Device not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, tool.FastReturnCommandFailed(id, err))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snapshot))
}
