package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/api/controllers"
	"github.com/moyoez/dlnacast-go/api/middlewares"
	"github.com/moyoez/dlnacast-go/api/notifyhub"
	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/notify"
	"github.com/moyoez/dlnacast-go/tool"
)

// Server is the local HTTP surface: a loopback-only control API plus the
// /media route renderers stream shared files from.
type Server struct {
	port   int
	cast   *cast.Engine
	hub    *notifyhub.Hub
	sub    *notify.Subscription
	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex
}

// NewServer creates an API server bound to the given cast engine.
func NewServer(port int, engine *cast.Engine) *Server {
	return &Server{
		port: port,
		cast: engine,
		hub:  notifyhub.New(),
	}
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.Default()
	engine.Use(middlewares.AllowAllCORS())
	engine.Use(gin.Recovery())

	// Initialize controllers
	deviceCtrl := controllers.NewDeviceController(s.cast)
	playbackCtrl := controllers.NewPlaybackController(s.cast)
	statusCtrl := controllers.NewStatusController(s.cast)
	qrCtrl := controllers.NewQRCodeController(s.cast)
	mediaCtrl := controllers.NewMediaController(s.cast)

	engine.GET("/", controllers.HandleServiceInfo)

	v1 := engine.Group("/api/cast/v1", middlewares.OnlyAllowLocal)
	{
		v1.GET("/devices", deviceCtrl.HandleDevices)        // Current renderer list, TVs first
		v1.GET("/devices/:id", deviceCtrl.HandleDevice)     // One renderer
		v1.DELETE("/devices/:id", deviceCtrl.HandleForget)  // Drop a renderer from the registry
		v1.POST("/search", deviceCtrl.HandleSearch)         // Run a discovery round

		v1.POST("/devices/:id/play", playbackCtrl.HandlePlay)        // Cast a URL or local file
		v1.POST("/devices/:id/pause", playbackCtrl.HandlePause)      // Pause playback
		v1.POST("/devices/:id/resume", playbackCtrl.HandleResume)    // Resume paused playback
		v1.POST("/devices/:id/stop", playbackCtrl.HandleStop)        // Stop playback
		v1.POST("/devices/:id/seek", playbackCtrl.HandleSeek)        // Jump to a position
		v1.POST("/devices/:id/volume", playbackCtrl.HandleSetVolume) // Set volume level
		v1.POST("/devices/:id/mute", playbackCtrl.HandleSetMute)     // Set or clear mute

		v1.GET("/devices/:id/progress", statusCtrl.HandleProgress)   // Interpolated playback position
		v1.GET("/devices/:id/volume", statusCtrl.HandleVolume)       // Cached volume snapshot
		v1.GET("/devices/:id/status", statusCtrl.HandleDeviceStatus) // Playback state and last error
		v1.GET("/status", statusCtrl.HandleStatus)                   // Engine status for the control page

		v1.GET("/config", controllers.ConfigGet)
		v1.PATCH("/config", controllers.ConfigPatch)
		v1.GET("/create-qr-code", qrCtrl.HandleCreateQRCode) // QR code PNG (same params as api.qrserver.com)
		v1.GET("/notify-ws", notifyhub.HandleNotifyWS(s.hub))
	}

	// Renderers stream shared media from here, so no locality gate.
	engine.GET("/media/:token", mediaCtrl.HandleMedia)
	engine.HEAD("/media/:token", mediaCtrl.HandleMedia)

	return engine
}

// Start wires the routes, starts the websocket event push, and serves until
// the listener fails or Shutdown is called.
func (s *Server) Start() error {
	engine := s.setupRoutes()
	sub := s.cast.Subscribe()

	s.mu.Lock()
	s.engine = engine
	s.sub = sub
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: engine,
	}
	s.mu.Unlock()

	go s.hub.Forward(sub)

	tool.DefaultLogger.Infof("Starting API server on http://0.0.0.0:%d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the event push and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	sub := s.sub
	s.mu.RUnlock()

	if sub != nil {
		sub.Close()
	}
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
