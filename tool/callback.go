package tool

import (
	"maps"

	"github.com/gin-gonic/gin"
)

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"status": "ok",
	}
}

func FastReturnSuccessWithData(data any) gin.H {
	return gin.H{
		"data": data,
	}
}

func FastReturnErrorWithData(msg string, data map[string]any) gin.H {
	resp := gin.H{
		"error": msg,
	}
	maps.Copy(resp, data)
	return resp
}

// FastReturnCommandFailed reports a failed renderer command with the failure
// reason clients can show directly (e.g. "no media loaded", "seek: timeout").
func FastReturnCommandFailed(deviceID string, err error) gin.H {
	return gin.H{
		"error":    err.Error(),
		"deviceId": deviceID,
	}
}
