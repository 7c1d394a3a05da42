package cast

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/moyoez/dlnacast-go/share"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// DeviceStatus is the caller-visible playback status of one device.
type DeviceStatus struct {
	DeviceID string              `json:"deviceId"`
	State    types.PlaybackState `json:"state"`
	Reason   string              `json:"reason,omitempty"`
	MediaURI string              `json:"mediaUri,omitempty"`
}

// Play casts req to the device, running the full ordered command sequence.
func (e *Engine) Play(ctx context.Context, id string, req types.MediaRequest) error {
	controller, err := e.controller(id)
	if err != nil {
		return err
	}
	return controller.PlayMedia(ctx, req)
}

// PlayFile shares a local file through the media endpoint and casts the
// resulting URL.
func (e *Engine) PlayFile(ctx context.Context, id, path, title string, startPositionMs int64) error {
	mediaURL, err := e.ShareFile(path)
	if err != nil {
		return err
	}
	if title == "" {
		title = filepath.Base(path)
	}
	return e.Play(ctx, id, types.MediaRequest{
		URL:             mediaURL,
		Title:           title,
		StartPositionMs: startPositionMs,
	})
}

func (e *Engine) Pause(ctx context.Context, id string) error {
	controller, err := e.controller(id)
	if err != nil {
		return err
	}
	return controller.Pause(ctx)
}

func (e *Engine) Resume(ctx context.Context, id string) error {
	controller, err := e.controller(id)
	if err != nil {
		return err
	}
	return controller.Resume(ctx)
}

func (e *Engine) Stop(ctx context.Context, id string) error {
	controller, err := e.controller(id)
	if err != nil {
		return err
	}
	return controller.Stop(ctx)
}

func (e *Engine) Seek(ctx context.Context, id string, positionMs int64) error {
	controller, err := e.controller(id)
	if err != nil {
		return err
	}
	return controller.Seek(ctx, positionMs)
}

func (e *Engine) SetVolume(ctx context.Context, id string, level int) error {
	controller, err := e.controller(id)
	if err != nil {
		return err
	}
	return controller.SetVolume(ctx, level)
}

func (e *Engine) SetMute(ctx context.Context, id string, muted bool) error {
	controller, err := e.controller(id)
	if err != nil {
		return err
	}
	return controller.SetMute(ctx, muted)
}

// Progress returns the device's playback position from the status cache.
func (e *Engine) Progress(ctx context.Context, id string) (types.ProgressSnapshot, error) {
	controller, err := e.controller(id)
	if err != nil {
		return types.ProgressSnapshot{}, err
	}
	return controller.Progress(ctx)
}

// Volume returns the device's volume state from the status cache.
func (e *Engine) Volume(ctx context.Context, id string) (types.VolumeSnapshot, error) {
	controller, err := e.controller(id)
	if err != nil {
		return types.VolumeSnapshot{}, err
	}
	return controller.Volume(ctx)
}

// Status reports the playback state without touching the network.
func (e *Engine) Status(id string) (DeviceStatus, error) {
	controller, err := e.controller(id)
	if err != nil {
		return DeviceStatus{}, err
	}
	return DeviceStatus{
		DeviceID: id,
		State:    controller.State(),
		Reason:   controller.LastError(),
		MediaURI: controller.CurrentURI(),
	}, nil
}

// ShareFile exposes a local file and returns the URL a renderer on the LAN
// can stream it from.
func (e *Engine) ShareFile(path string) (string, error) {
	token, err := e.shares.ShareFile(path)
	if err != nil {
		return "", err
	}
	host := e.cfg.AdvertiseHost
	if host == "" {
		host, err = tool.AdvertiseIPv4(e.cfg.NetworkInterface)
		if err != nil {
			e.shares.Revoke(token)
			return "", fmt.Errorf("no advertisable address for media sharing: %v", err)
		}
	}
	return tool.BuildMediaShareURL(host, e.cfg.Port, token), nil
}

// ResolveShare returns the shared item behind a media token.
func (e *Engine) ResolveShare(token string) (share.Item, bool) {
	return e.shares.Resolve(token)
}
