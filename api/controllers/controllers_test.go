package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/api/middlewares"
	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/types"
)

// setupRouter creates a test router with every control endpoint wired to a
// fresh cast engine. Discovery is never started, so no sockets open.
func setupRouter(t *testing.T) (*gin.Engine, *cast.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine, err := cast.NewEngine(types.AppConfig{
		Alias:            "cast-test",
		Port:             8738,
		AdvertiseHost:    "127.0.0.1",
		NetworkInterface: "*",
		MulticastAddress: "239.255.255.250",
		MulticastPort:    1900,
		SearchTimeoutSec: 1,
		DeviceTimeoutSec: 300,
		ShareTTLMin:      10,
	})
	if err != nil {
		t.Fatalf("Failed to build cast engine: %v", err)
	}
	t.Cleanup(engine.Close)

	router := gin.New()
	deviceCtrl := NewDeviceController(engine)
	playbackCtrl := NewPlaybackController(engine)
	statusCtrl := NewStatusController(engine)
	qrCtrl := NewQRCodeController(engine)
	mediaCtrl := NewMediaController(engine)

	router.GET("/", HandleServiceInfo)

	v1 := router.Group("/api/cast/v1", middlewares.OnlyAllowLocal)
	{
		v1.GET("/devices", deviceCtrl.HandleDevices)
		v1.GET("/devices/:id", deviceCtrl.HandleDevice)
		v1.DELETE("/devices/:id", deviceCtrl.HandleForget)
		v1.POST("/search", deviceCtrl.HandleSearch)

		v1.POST("/devices/:id/play", playbackCtrl.HandlePlay)
		v1.POST("/devices/:id/pause", playbackCtrl.HandlePause)
		v1.POST("/devices/:id/resume", playbackCtrl.HandleResume)
		v1.POST("/devices/:id/stop", playbackCtrl.HandleStop)
		v1.POST("/devices/:id/seek", playbackCtrl.HandleSeek)
		v1.POST("/devices/:id/volume", playbackCtrl.HandleSetVolume)
		v1.POST("/devices/:id/mute", playbackCtrl.HandleSetMute)

		v1.GET("/devices/:id/progress", statusCtrl.HandleProgress)
		v1.GET("/devices/:id/volume", statusCtrl.HandleVolume)
		v1.GET("/devices/:id/status", statusCtrl.HandleDeviceStatus)
		v1.GET("/status", statusCtrl.HandleStatus)

		v1.GET("/config", ConfigGet)
		v1.PATCH("/config", ConfigPatch)
		v1.GET("/create-qr-code", qrCtrl.HandleCreateQRCode)
	}

	router.GET("/media/:token", mediaCtrl.HandleMedia)
	router.HEAD("/media/:token", mediaCtrl.HandleMedia)

	return router, engine
}

// TestHandleServiceInfo tests the root service identity endpoint
func TestHandleServiceInfo(t *testing.T) {
	router, _ := setupRouter(t)

	req, _ := http.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", w.Code)
	}
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["service"] != "dlnacast" {
		t.Errorf("Expected service dlnacast, got %v", response["service"])
	}
	if response["api"] != "/api/cast/v1" {
		t.Errorf("Expected api /api/cast/v1, got %v", response["api"])
	}
}

// TestControlAPIRejectsRemoteClients tests the loopback-only gate on the
// control routes
func TestControlAPIRejectsRemoteClients(t *testing.T) {
	router, _ := setupRouter(t)

	req, _ := http.NewRequest("GET", "/api/cast/v1/devices", nil)
	req.RemoteAddr = "10.1.2.3:40000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status code 403, got %d", w.Code)
	}
}
