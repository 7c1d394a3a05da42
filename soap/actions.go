package soap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/moyoez/dlnacast-go/types"
)

// Transport instance 0 and the master channel cover every renderer this
// client targets; multi-instance devices are out of scope.
const (
	instanceID      = "0"
	masterChannel   = "Master"
	playSpeed       = "1"
	seekModeRelTime = "REL_TIME"
)

// PositionInfo is the subset of GetPositionInfo the controller consumes.
type PositionInfo struct {
	TrackDuration string
	RelTime       string
	TrackURI      string
}

// TransportInfo is the subset of GetTransportInfo the controller consumes.
type TransportInfo struct {
	State  string
	Status string
	Speed  string
}

// SetAVTransportURI loads mediaURL and its DIDL metadata into the
// renderer's transport.
func (c *Client) SetAVTransportURI(ctx context.Context, svc types.Service, mediaURL, metadata string) error {
	_, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "SetAVTransportURI", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "CurrentURI", Value: mediaURL},
		{Name: "CurrentURIMetaData", Value: metadata},
	})
	return err
}

func (c *Client) Play(ctx context.Context, svc types.Service) error {
	_, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "Play", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Speed", Value: playSpeed},
	})
	return err
}

func (c *Client) Pause(ctx context.Context, svc types.Service) error {
	_, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "Pause", []Arg{
		{Name: "InstanceID", Value: instanceID},
	})
	return err
}

func (c *Client) Stop(ctx context.Context, svc types.Service) error {
	_, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "Stop", []Arg{
		{Name: "InstanceID", Value: instanceID},
	})
	return err
}

// Seek jumps to target, a clock value of the form HH:MM:SS.
func (c *Client) Seek(ctx context.Context, svc types.Service, target string) error {
	_, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "Seek", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Unit", Value: seekModeRelTime},
		{Name: "Target", Value: target},
	})
	return err
}

func (c *Client) GetPositionInfo(ctx context.Context, svc types.Service) (PositionInfo, error) {
	resp, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "GetPositionInfo", []Arg{
		{Name: "InstanceID", Value: instanceID},
	})
	if err != nil {
		return PositionInfo{}, err
	}
	var info PositionInfo
	info.TrackDuration, _ = resp.Value("TrackDuration")
	info.RelTime, _ = resp.Value("RelTime")
	info.TrackURI, _ = resp.Value("TrackURI")
	return info, nil
}

func (c *Client) GetTransportInfo(ctx context.Context, svc types.Service) (TransportInfo, error) {
	resp, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "GetTransportInfo", []Arg{
		{Name: "InstanceID", Value: instanceID},
	})
	if err != nil {
		return TransportInfo{}, err
	}
	var info TransportInfo
	info.State, _ = resp.Value("CurrentTransportState")
	info.Status, _ = resp.Value("CurrentTransportStatus")
	info.Speed, _ = resp.Value("CurrentSpeed")
	return info, nil
}

// SetVolume clamps level into 0..100 before sending.
func (c *Client) SetVolume(ctx context.Context, svc types.Service, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	_, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "SetVolume", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Channel", Value: masterChannel},
		{Name: "DesiredVolume", Value: strconv.Itoa(level)},
	})
	return err
}

func (c *Client) SetMute(ctx context.Context, svc types.Service, muted bool) error {
	desired := "0"
	if muted {
		desired = "1"
	}
	_, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "SetMute", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Channel", Value: masterChannel},
		{Name: "DesiredMute", Value: desired},
	})
	return err
}

func (c *Client) GetVolume(ctx context.Context, svc types.Service) (int, error) {
	resp, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "GetVolume", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Channel", Value: masterChannel},
	})
	if err != nil {
		return 0, err
	}
	raw, ok := resp.Value("CurrentVolume")
	if !ok {
		return 0, fmt.Errorf("GetVolume response carries no CurrentVolume")
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("GetVolume returned unusable volume %q", raw)
	}
	return level, nil
}

func (c *Client) GetMute(ctx context.Context, svc types.Service) (bool, error) {
	resp, err := c.Invoke(ctx, svc.ControlURL, svc.Type, "GetMute", []Arg{
		{Name: "InstanceID", Value: instanceID},
		{Name: "Channel", Value: masterChannel},
	})
	if err != nil {
		return false, err
	}
	raw, ok := resp.Value("CurrentMute")
	if !ok {
		return false, fmt.Errorf("GetMute response carries no CurrentMute")
	}
	return raw == "1" || raw == "true" || raw == "True", nil
}
