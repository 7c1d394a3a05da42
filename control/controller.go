package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/moyoez/dlnacast-go/compat"
	"github.com/moyoez/dlnacast-go/notify"
	"github.com/moyoez/dlnacast-go/soap"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// ErrControllerClosed is returned for commands issued after Close.
var ErrControllerClosed = errors.New("controller closed")

// completionSlackMs: a device that reports STOPPED while the last playing
// position projected this close to the duration finished the track rather
// than being stopped by hand.
const completionSlackMs = 1500

// Controller drives playback on one renderer. Commands for the same device
// are strictly serialized through an internal slot; concurrent callers queue
// and never interleave their command sequences.
type Controller struct {
	descriptor *types.Descriptor
	soap       *soap.Client
	adapter    compat.Adapter
	bus        *notify.Bus
	status     *StatusCache

	gate      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	state         types.PlaybackState
	lastErrReason string
	currentURI    string
	uriLoaded     bool

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewController builds the controller for descriptor. The vendor adapter is
// selected here, once, so command formatting stays stable for the
// descriptor's lifetime.
func NewController(descriptor *types.Descriptor, client *soap.Client, bus *notify.Bus) *Controller {
	if client == nil {
		client = soap.NewClient(nil)
	}
	c := &Controller{
		descriptor: descriptor,
		soap:       client,
		adapter:    compat.Select(descriptor),
		bus:        bus,
		gate:       make(chan struct{}, 1),
		closed:     make(chan struct{}),
		state:      types.StateIdle,
		now:        time.Now,
	}
	c.wait = c.defaultWait
	c.status = NewStatusCache(c.fetchProgress, c.fetchVolume)
	tool.DefaultLogger.Debugf("control: %s using adapter %s", descriptor.ID, c.adapter.Name)
	return c
}

func (c *Controller) Descriptor() *types.Descriptor { return c.descriptor }

func (c *Controller) State() types.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the reason recorded with the most recent ERROR state.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErrReason
}

// CurrentURI returns the media URL most recently loaded into the transport.
func (c *Controller) CurrentURI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentURI
}

// PlayMedia runs the ordered cast sequence: Stop, SetAVTransportURI, Play
// and, for a nonzero start position, a delayed Seek. A step failure aborts
// the remainder; completed steps stay applied because renderers offer no
// compensating actions.
func (c *Controller) PlayMedia(ctx context.Context, req types.MediaRequest) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	avt, ok := c.descriptor.ServiceByKeyword(types.ServiceKeywordAVTransport)
	if !ok {
		return c.protocolError("device has no transport service")
	}
	if req.URL == "" {
		return c.protocolError("no media URL given")
	}

	mediaURL := c.adapter.FormatMediaURL(req.URL)
	metadata := c.adapter.FormatMetadata(mediaURL, req.Title)

	c.status.ClearAll()
	c.setState(types.StateTransitioning)

	if err := c.runSteps(ctx, c.playSteps(req, mediaURL, metadata, avt)); err != nil {
		c.failState(err.Error())
		return err
	}

	c.setState(types.StatePlaying)
	tool.DefaultLogger.Infof("control: %s now playing %s", c.descriptor.ID, req.Title)
	return nil
}

// Pause pauses playback. Requires a previously loaded URI.
func (c *Controller) Pause(ctx context.Context) error {
	return c.transportCommand(ctx, "Pause", true, func(ctx context.Context, avt types.Service) error {
		if err := c.soap.Pause(ctx, avt); err != nil {
			return err
		}
		c.setState(types.StatePaused)
		return nil
	})
}

// Resume replays the loaded URI without re-running the cast sequence.
func (c *Controller) Resume(ctx context.Context) error {
	return c.transportCommand(ctx, "Resume", true, func(ctx context.Context, avt types.Service) error {
		if err := c.soap.Play(ctx, avt); err != nil {
			return err
		}
		c.setState(types.StatePlaying)
		return nil
	})
}

// Stop halts playback. The loaded URI is kept; most renderers retain it.
func (c *Controller) Stop(ctx context.Context) error {
	return c.transportCommand(ctx, "Stop", false, func(ctx context.Context, avt types.Service) error {
		if err := c.soap.Stop(ctx, avt); err != nil {
			return err
		}
		c.status.ClearAll()
		c.setState(types.StateStopped)
		return nil
	})
}

// Seek jumps to positionMs. Requires a previously loaded URI.
func (c *Controller) Seek(ctx context.Context, positionMs int64) error {
	target := tool.FormatClock(positionMs)
	return c.transportCommand(ctx, "Seek", true, func(ctx context.Context, avt types.Service) error {
		if err := c.soap.Seek(ctx, avt, target); err != nil {
			return err
		}
		c.status.ClearProgress()
		return nil
	})
}

// SetVolume sets the master volume (0..100, clamped by the transport).
func (c *Controller) SetVolume(ctx context.Context, level int) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	rcs, ok := c.descriptor.ServiceByKeyword(types.ServiceKeywordRenderingControl)
	if !ok {
		return c.protocolError("device has no rendering control service")
	}
	if err := c.soap.SetVolume(ctx, rcs, level); err != nil {
		c.failState(fmt.Sprintf("SetVolume failed: %v", err))
		return err
	}
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	c.status.StoreVolumeLevel(level)
	c.publish(types.Event{
		Kind:     types.EventVolumeChanged,
		DeviceID: c.descriptor.ID,
		Data:     map[string]any{"level": level},
	})
	return nil
}

// SetMute mutes or unmutes the master channel.
func (c *Controller) SetMute(ctx context.Context, muted bool) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	rcs, ok := c.descriptor.ServiceByKeyword(types.ServiceKeywordRenderingControl)
	if !ok {
		return c.protocolError("device has no rendering control service")
	}
	if err := c.soap.SetMute(ctx, rcs, muted); err != nil {
		c.failState(fmt.Sprintf("SetMute failed: %v", err))
		return err
	}
	c.status.StoreMuted(muted)
	c.publish(types.Event{
		Kind:     types.EventVolumeChanged,
		DeviceID: c.descriptor.ID,
		Data:     map[string]any{"muted": muted},
	})
	return nil
}

// Progress returns the playback position, served from the status cache.
func (c *Controller) Progress(ctx context.Context) (types.ProgressSnapshot, error) {
	return c.status.Progress(ctx)
}

// Volume returns the volume state, served from the status cache.
func (c *Controller) Volume(ctx context.Context) (types.VolumeSnapshot, error) {
	return c.status.Volume(ctx)
}

// Close releases the controller: queued callers unblock with
// ErrControllerClosed, a running sequence aborts at its next step, and
// cached status is dropped. Idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.status.ClearAll()
		tool.DefaultLogger.Debugf("control: %s controller closed", c.descriptor.ID)
	})
}

// transportCommand wraps the shared boilerplate of single commands against
// the transport service: serialization, service lookup and the
// loaded-URI guard.
func (c *Controller) transportCommand(ctx context.Context, name string, needsURI bool, run func(ctx context.Context, avt types.Service) error) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	avt, ok := c.descriptor.ServiceByKeyword(types.ServiceKeywordAVTransport)
	if !ok {
		return c.protocolError("device has no transport service")
	}
	if needsURI && !c.hasLoadedURI() {
		return c.protocolError("no media loaded")
	}
	if err := run(ctx, avt); err != nil {
		c.failState(fmt.Sprintf("%s failed: %v", name, err))
		return err
	}
	return nil
}

// acquire takes the per-device command slot, honoring ctx and shutdown.
func (c *Controller) acquire(ctx context.Context) error {
	select {
	case <-c.closed:
		return ErrControllerClosed
	default:
	}
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrControllerClosed
	}
	select {
	case <-c.closed:
		<-c.gate
		return ErrControllerClosed
	default:
	}
	return nil
}

func (c *Controller) release() {
	<-c.gate
}

// commandContext derives a context that also ends when the controller
// closes, so teardown aborts in-flight transport calls.
func (c *Controller) commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (c *Controller) hasLoadedURI() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uriLoaded
}

func (c *Controller) markURILoaded(mediaURL string) {
	c.mu.Lock()
	c.uriLoaded = true
	c.currentURI = mediaURL
	c.mu.Unlock()
}

// setState records a new state and publishes the transition when it is an
// actual change.
func (c *Controller) setState(next types.PlaybackState) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	if next != types.StateError {
		c.lastErrReason = ""
	}
	c.mu.Unlock()
	if prev == next {
		return
	}
	tool.DefaultLogger.Debugf("control: %s state %s -> %s", c.descriptor.ID, prev, next)
	c.publish(types.Event{
		Kind:     types.EventPlaybackState,
		DeviceID: c.descriptor.ID,
		Data:     map[string]any{"state": string(next), "previous": string(prev)},
	})
}

// failState moves to ERROR with a reason and publishes the error event.
func (c *Controller) failState(reason string) {
	c.mu.Lock()
	prev := c.state
	c.state = types.StateError
	c.lastErrReason = reason
	c.mu.Unlock()
	tool.DefaultLogger.Warnf("control: %s: %s", c.descriptor.ID, reason)
	if prev != types.StateError {
		c.publish(types.Event{
			Kind:     types.EventPlaybackState,
			DeviceID: c.descriptor.ID,
			Data:     map[string]any{"state": string(types.StateError), "previous": string(prev)},
		})
	}
	c.publish(types.Event{
		Kind:     types.EventPlaybackError,
		DeviceID: c.descriptor.ID,
		Data:     map[string]any{"reason": reason},
	})
}

// protocolError aborts an operation for a reason retrying cannot fix.
func (c *Controller) protocolError(reason string) error {
	c.failState(reason)
	return errors.New(reason)
}

func (c *Controller) publish(evt types.Event) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(evt)
}

// fetchProgress polls transport state and position. Poll failures never
// mutate playback state; only successful polls update it.
func (c *Controller) fetchProgress(ctx context.Context) (types.ProgressSnapshot, error) {
	if err := c.acquire(ctx); err != nil {
		return types.ProgressSnapshot{}, err
	}
	defer c.release()

	avt, ok := c.descriptor.ServiceByKeyword(types.ServiceKeywordAVTransport)
	if !ok {
		return types.ProgressSnapshot{}, errors.New("device has no transport service")
	}

	info, err := c.soap.GetTransportInfo(ctx, avt)
	if err != nil {
		return types.ProgressSnapshot{}, err
	}
	mapped, known := mapTransportState(info.State)
	if known {
		if mapped == types.StateStopped {
			if prev, has := c.status.LastProgress(); has && prev.Playing && prev.DurationMs > 0 {
				projected := prev.PositionMs + c.now().Sub(prev.CapturedAt).Milliseconds()
				if projected >= prev.DurationMs-completionSlackMs {
					mapped = types.StateCompleted
				}
			}
		}
		c.setState(mapped)
	}

	pos, err := c.soap.GetPositionInfo(ctx, avt)
	if err != nil {
		return types.ProgressSnapshot{}, err
	}
	posMs, err := tool.ParseClock(pos.RelTime)
	if err != nil {
		posMs = 0
	}
	durMs, err := tool.ParseClock(pos.TrackDuration)
	if err != nil {
		durMs = 0
	}
	snap := types.ProgressSnapshot{
		PositionMs: posMs,
		DurationMs: durMs,
		Playing:    known && mapped == types.StatePlaying,
		CapturedAt: c.now(),
	}
	if snap.DurationMs > 0 && snap.PositionMs > snap.DurationMs {
		snap.PositionMs = snap.DurationMs
	}
	return snap, nil
}

// fetchVolume polls the rendering control service. A failed mute read
// degrades to unmuted rather than failing the whole snapshot.
func (c *Controller) fetchVolume(ctx context.Context) (types.VolumeSnapshot, error) {
	if err := c.acquire(ctx); err != nil {
		return types.VolumeSnapshot{}, err
	}
	defer c.release()

	rcs, ok := c.descriptor.ServiceByKeyword(types.ServiceKeywordRenderingControl)
	if !ok {
		return types.VolumeSnapshot{}, errors.New("device has no rendering control service")
	}
	level, err := c.soap.GetVolume(ctx, rcs)
	if err != nil {
		return types.VolumeSnapshot{}, err
	}
	muted, err := c.soap.GetMute(ctx, rcs)
	if err != nil {
		tool.DefaultLogger.Debugf("control: %s mute read failed: %v", c.descriptor.ID, err)
		muted = false
	}
	return types.VolumeSnapshot{Level: level, Muted: muted, CapturedAt: c.now()}, nil
}

// mapTransportState converts a device-reported transport state. Unknown
// strings report false so odd vendor states never clobber ours.
func mapTransportState(raw string) (types.PlaybackState, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	raw = strings.ReplaceAll(raw, " ", "_")
	switch raw {
	case "PLAYING":
		return types.StatePlaying, true
	case "PAUSED", "PAUSED_PLAYBACK", "PAUSED_RECORDING":
		return types.StatePaused, true
	case "STOPPED", "NO_MEDIA_PRESENT":
		return types.StateStopped, true
	case "TRANSITIONING":
		return types.StateTransitioning, true
	case "BUFFERING":
		return types.StateBuffering, true
	default:
		return "", false
	}
}

func (c *Controller) defaultWait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrControllerClosed
	case <-timer.C:
		return nil
	}
}
