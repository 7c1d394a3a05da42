package types

import "time"

// PlaybackState is the controller-side view of a renderer's transport state.
type PlaybackState string

const (
	StateIdle          PlaybackState = "IDLE"
	StateStopped       PlaybackState = "STOPPED"
	StatePlaying       PlaybackState = "PLAYING"
	StatePaused        PlaybackState = "PAUSED"
	StateTransitioning PlaybackState = "TRANSITIONING"
	StateBuffering     PlaybackState = "BUFFERING"
	StateCompleted     PlaybackState = "COMPLETED"
	StateError         PlaybackState = "ERROR"
)

// MediaRequest describes what to cast. URL must be fetchable by the renderer
// itself, not just by this host.
type MediaRequest struct {
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	StartPositionMs int64  `json:"startPositionMs,omitempty"`
}

// ProgressSnapshot is a read-only playback position sample. Position never
// exceeds Duration; a zero Duration means the renderer did not report one.
type ProgressSnapshot struct {
	PositionMs int64     `json:"positionMs"`
	DurationMs int64     `json:"durationMs"`
	Playing    bool      `json:"playing"`
	CapturedAt time.Time `json:"capturedAt"`
}

// VolumeSnapshot is a read-only rendering volume sample.
type VolumeSnapshot struct {
	Level      int       `json:"level"` // 0-100
	Muted      bool      `json:"muted"`
	CapturedAt time.Time `json:"capturedAt"`
}
