package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// PlayRequest starts playback of either a remote URL or a local file path.
// Exactly one of URL and Path should be set; Path wins when both are.
type PlayRequest struct {
	URL             string `json:"url"`
	Path            string `json:"path"`
	Title           string `json:"title"`
	StartPositionMs int64  `json:"startPositionMs"`
}

// SeekRequest moves playback to an absolute position.
type SeekRequest struct {
	PositionMs int64 `json:"positionMs"`
}

// VolumeRequest sets the renderer volume. Out-of-range levels are clamped.
type VolumeRequest struct {
	Level int `json:"level"`
}

// MuteRequest sets the renderer mute flag.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

type PlaybackController struct {
	engine *cast.Engine
}

func NewPlaybackController(engine *cast.Engine) *PlaybackController {
	return &PlaybackController{engine: engine}
}

// HandlePlay casts media to a renderer.
// POST /api/cast/v1/devices/:id/play
func (ctrl *PlaybackController) HandlePlay(c *gin.Context) {
	var body PlayRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	if body.URL == "" && body.Path == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Either url or path is required"))
		return
	}

	id := c.Param("id")
	var err error
	if body.Path != "" {
		err = ctrl.engine.PlayFile(c.Request.Context(), id, body.Path, body.Title, body.StartPositionMs)
	} else {
		err = ctrl.engine.Play(c.Request.Context(), id, types.MediaRequest{
			URL:             body.URL,
			Title:           body.Title,
			StartPositionMs: body.StartPositionMs,
		})
	}
	ctrl.reply(c, id, err)
}

// HandlePause pauses playback.
// POST /api/cast/v1/devices/:id/pause
func (ctrl *PlaybackController) HandlePause(c *gin.Context) {
	id := c.Param("id")
	ctrl.reply(c, id, ctrl.engine.Pause(c.Request.Context(), id))
}

// HandleResume resumes paused playback.
// POST /api/cast/v1/devices/:id/resume
func (ctrl *PlaybackController) HandleResume(c *gin.Context) {
	id := c.Param("id")
	ctrl.reply(c, id, ctrl.engine.Resume(c.Request.Context(), id))
}

// HandleStop stops playback.
// POST /api/cast/v1/devices/:id/stop
func (ctrl *PlaybackController) HandleStop(c *gin.Context) {
	id := c.Param("id")
	ctrl.reply(c, id, ctrl.engine.Stop(c.Request.Context(), id))
}

// HandleSeek jumps to an absolute playback position.
// POST /api/cast/v1/devices/:id/seek
func (ctrl *PlaybackController) HandleSeek(c *gin.Context) {
	var body SeekRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	id := c.Param("id")
	ctrl.reply(c, id, ctrl.engine.Seek(c.Request.Context(), id, body.PositionMs))
}

// HandleSetVolume sets the renderer volume level.
// POST /api/cast/v1/devices/:id/volume
func (ctrl *PlaybackController) HandleSetVolume(c *gin.Context) {
	var body VolumeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	id := c.Param("id")
	ctrl.reply(c, id, ctrl.engine.SetVolume(c.Request.Context(), id, body.Level))
}

// HandleSetMute sets or clears the renderer mute flag.
// POST /api/cast/v1/devices/:id/mute
func (ctrl *PlaybackController) HandleSetMute(c *gin.Context) {
	var body MuteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	id := c.Param("id")
	ctrl.reply(c, id, ctrl.engine.SetMute(c.Request.Context(), id, body.Muted))
}

func (ctrl *PlaybackController) reply(c *gin.Context, id string, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, tool.FastReturnSuccess())
	case errors.Is(err, cast.ErrUnknownDevice):
		c.JSON(http.StatusNotFound, tool.FastReturnError("Device not found"))
	default:
		c.JSON(http.StatusInternalServerError, tool.FastReturnCommandFailed(id, err))
	}
}
