package types

import "time"

// Event kinds published on the notify bus.
const (
	EventDeviceFound       = "device_found"
	EventDeviceLost        = "device_lost"
	EventDeviceListChanged = "device_list_changed"
	EventSearchStarted     = "search_started"
	EventSearchFinished    = "search_finished"
	EventPlaybackState     = "playback_state"
	EventPlaybackError     = "playback_error"
	EventVolumeChanged     = "volume_changed"
)

// Event is the unit of notification delivered to bus subscribers and pushed
// to websocket clients.
type Event struct {
	Kind     string         `json:"kind"`
	DeviceID string         `json:"deviceId,omitempty"`
	SearchID string         `json:"searchId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Time     time.Time      `json:"time"`
}
