package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// ConfigGet returns the full config from config.yaml.
// GET /api/cast/v1/config
func ConfigGet(c *gin.Context) {
	cfg := tool.GetCurrentConfig()
	resp := types.ConfigResponse{
		Alias:            cfg.Alias,
		Port:             cfg.Port,
		AdvertiseHost:    cfg.AdvertiseHost,
		NetworkInterface: cfg.NetworkInterface,
		MulticastAddress: cfg.MulticastAddress,
		MulticastPort:    cfg.MulticastPort,
		SearchTimeoutSec: cfg.SearchTimeoutSec,
		DeviceTimeoutSec: cfg.DeviceTimeoutSec,
		ProbeBeforeEvict: cfg.ProbeBeforeEvict,
		ShareTTLMin:      cfg.ShareTTLMin,
	}
	c.JSON(http.StatusOK, resp)
}

// ConfigPatch accepts a full or partial config and persists it to
// config.yaml. Port and interface changes take effect on restart.
// PATCH /api/cast/v1/config
func ConfigPatch(c *gin.Context) {
	var body types.ConfigPatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}

	cfg := *tool.GetCurrentConfig()

	if body.Alias != nil {
		cfg.Alias = *body.Alias
	}
	if body.Port != nil {
		cfg.Port = *body.Port
	}
	if body.AdvertiseHost != nil {
		cfg.AdvertiseHost = *body.AdvertiseHost
	}
	if body.NetworkInterface != nil {
		cfg.NetworkInterface = *body.NetworkInterface
	}
	if body.MulticastAddress != nil {
		cfg.MulticastAddress = *body.MulticastAddress
	}
	if body.MulticastPort != nil {
		cfg.MulticastPort = *body.MulticastPort
	}
	if body.SearchTimeoutSec != nil {
		cfg.SearchTimeoutSec = *body.SearchTimeoutSec
	}
	if body.DeviceTimeoutSec != nil {
		cfg.DeviceTimeoutSec = *body.DeviceTimeoutSec
	}
	if body.ProbeBeforeEvict != nil {
		cfg.ProbeBeforeEvict = *body.ProbeBeforeEvict
	}
	if body.ShareTTLMin != nil {
		cfg.ShareTTLMin = *body.ShareTTLMin
	}

	tool.PersistAppConfig(&cfg)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
