package controllers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/tool"
)

type MediaController struct {
	engine *cast.Engine
}

func NewMediaController(engine *cast.Engine) *MediaController {
	return &MediaController{engine: engine}
}

// HandleMedia streams a shared local file to the renderer. ServeFile handles
// Range and HEAD requests, which renderers rely on for seeking.
// GET /media/:token
func (ctrl *MediaController) HandleMedia(c *gin.Context) {
	token := c.Param("token")
	item, ok := ctrl.engine.ResolveShare(token)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Share not found or expired"))
		return
	}

	info, err := os.Stat(item.Path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, tool.FastReturnError("File not found on disk"))
			return
		}
		tool.DefaultLogger.Errorf("[Media] Failed to stat file: %v", err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to read file"))
		return
	}
	if info.IsDir() {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid file"))
		return
	}

	fileName := item.Name
	if fileName == "" {
		fileName = filepath.Base(item.Path)
	}

	c.Header("Content-Disposition", "inline; filename=\""+fileName+"\"")
	// DLNA headers; without these some renderers refuse to seek.
	c.Header("transferMode.dlna.org", "Streaming")
	c.Header("contentFeatures.dlna.org", "DLNA.ORG_OP=01;DLNA.ORG_CI=0")

	tool.DefaultLogger.Debugf("[Media] Serving file: token=%s, path=%s, range=%q", token, item.Path, c.GetHeader("Range"))
	c.File(item.Path)
}
