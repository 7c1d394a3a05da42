package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/tool"
)

// HandleServiceInfo identifies this service. The control page QR code points
// here.
// GET /
func HandleServiceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "dlnacast",
		"version": tool.Version,
		"api":     "/api/cast/v1",
	})
}
