package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/tool"
)

const (
	defaultQRSize = 200
	maxQRSize     = 512
)

type QRCodeController struct {
	engine *cast.Engine
}

func NewQRCodeController(engine *cast.Engine) *QRCodeController {
	return &QRCodeController{engine: engine}
}

// HandleCreateQRCode returns a PNG QR code image. Compatible with the
// api.qrserver.com create-qr-code API: GET ?size=200x200&data=<content>.
// Without data it encodes this server's control page address so a phone on
// the LAN can open it by scanning.
func (ctrl *QRCodeController) HandleCreateQRCode(c *gin.Context) {
	data := c.Query("data")
	if data == "" {
		cfg := ctrl.engine.Config()
		host := cfg.AdvertiseHost
		if host == "" {
			detected, err := tool.AdvertiseIPv4(cfg.NetworkInterface)
			if err != nil {
				c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to detect local address: "+err.Error()))
				return
			}
			host = detected
		}
		data = tool.BuildControlPageURL(host, cfg.Port)
	}

	sizeStr := c.Query("size")
	size := parseSize(sizeStr)
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(data, qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to encode QR code: "+err.Error()))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// parseSize parses size from "200x200" or "200" and returns the pixel dimension.
func parseSize(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if idx := strings.Index(s, "x"); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
