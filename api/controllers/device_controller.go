package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/tool"
)

// SearchRequest optionally overrides the discovery window for one search.
type SearchRequest struct {
	TimeoutMs int `json:"timeoutMs"`
}

type DeviceController struct {
	engine *cast.Engine
}

func NewDeviceController(engine *cast.Engine) *DeviceController {
	return &DeviceController{engine: engine}
}

// HandleDevices returns the current renderer list, TVs first.
// GET /api/cast/v1/devices
func (ctrl *DeviceController) HandleDevices(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(ctrl.engine.Devices()))
}

// HandleDevice returns a single renderer by id.
// GET /api/cast/v1/devices/:id
func (ctrl *DeviceController) HandleDevice(c *gin.Context) {
	device, ok := ctrl.engine.Device(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Device not found"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(device))
}

// HandleSearch runs a discovery round and returns the devices known once the
// window closes. Incremental results go out on the notify websocket.
// POST /api/cast/v1/search
func (ctrl *DeviceController) HandleSearch(c *gin.Context) {
	var body SearchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
			return
		}
	}

	window := time.Duration(body.TimeoutMs) * time.Millisecond
	devices, err := ctrl.engine.Search(c.Request.Context(), window, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Search failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(devices))
}

// HandleForget drops a renderer from the registry. It will come back on its
// next advertisement or search response.
// DELETE /api/cast/v1/devices/:id
func (ctrl *DeviceController) HandleForget(c *gin.Context) {
	if !ctrl.engine.Forget(c.Param("id")) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Device not found"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
