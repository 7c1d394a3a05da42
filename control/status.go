package control

import (
	"context"
	"sync"
	"time"

	"github.com/moyoez/dlnacast-go/types"
)

const (
	progressTTL = 5 * time.Second
	volumeTTL   = 10 * time.Second
	// refreshNumerator/refreshDenominator: past 80% of a snapshot's TTL a
	// read still serves cache but kicks off a background refresh.
	refreshNumerator   = 4
	refreshDenominator = 5
)

type progressFlight struct {
	done     chan struct{}
	cancel   context.CancelFunc
	snapshot types.ProgressSnapshot
	err      error
}

type volumeFlight struct {
	done     chan struct{}
	cancel   context.CancelFunc
	snapshot types.VolumeSnapshot
	err      error
}

// StatusCache holds one device's progress and volume snapshots. Reads inside
// the TTL are served from cache, progress interpolated forward while
// playing. At most one refresh per snapshot kind is in flight at any time;
// concurrent stale reads join the running refresh instead of duplicating it.
type StatusCache struct {
	mu sync.Mutex

	progress    types.ProgressSnapshot
	hasProgress bool
	volume      types.VolumeSnapshot
	hasVolume   bool

	pflight *progressFlight
	vflight *volumeFlight

	refreshProgress func(ctx context.Context) (types.ProgressSnapshot, error)
	refreshVolume   func(ctx context.Context) (types.VolumeSnapshot, error)

	now func() time.Time
}

func NewStatusCache(
	refreshProgress func(ctx context.Context) (types.ProgressSnapshot, error),
	refreshVolume func(ctx context.Context) (types.VolumeSnapshot, error),
) *StatusCache {
	return &StatusCache{
		refreshProgress: refreshProgress,
		refreshVolume:   refreshVolume,
		now:             time.Now,
	}
}

// Progress returns the device's playback position. Fresh cache hits return
// immediately; stale or missing snapshots wait for one shared refresh.
func (sc *StatusCache) Progress(ctx context.Context) (types.ProgressSnapshot, error) {
	sc.mu.Lock()
	now := sc.now()
	if sc.hasProgress {
		age := now.Sub(sc.progress.CapturedAt)
		if age < progressTTL {
			snap := interpolateProgress(sc.progress, now)
			if age >= refreshAge(progressTTL) && sc.pflight == nil {
				sc.pflight = sc.startProgressRefreshLocked()
			}
			sc.mu.Unlock()
			return snap, nil
		}
	}
	fl := sc.pflight
	if fl == nil {
		fl = sc.startProgressRefreshLocked()
		sc.pflight = fl
	}
	sc.mu.Unlock()

	select {
	case <-fl.done:
		return fl.snapshot, fl.err
	case <-ctx.Done():
		return types.ProgressSnapshot{}, ctx.Err()
	}
}

// Volume returns the device's volume state, same caching contract as
// Progress but without interpolation.
func (sc *StatusCache) Volume(ctx context.Context) (types.VolumeSnapshot, error) {
	sc.mu.Lock()
	now := sc.now()
	if sc.hasVolume {
		age := now.Sub(sc.volume.CapturedAt)
		if age < volumeTTL {
			snap := sc.volume
			if age >= refreshAge(volumeTTL) && sc.vflight == nil {
				sc.vflight = sc.startVolumeRefreshLocked()
			}
			sc.mu.Unlock()
			return snap, nil
		}
	}
	fl := sc.vflight
	if fl == nil {
		fl = sc.startVolumeRefreshLocked()
		sc.vflight = fl
	}
	sc.mu.Unlock()

	select {
	case <-fl.done:
		return fl.snapshot, fl.err
	case <-ctx.Done():
		return types.VolumeSnapshot{}, ctx.Err()
	}
}

// LastProgress returns the cached snapshot as captured, no interpolation.
func (sc *StatusCache) LastProgress() (types.ProgressSnapshot, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.progress, sc.hasProgress
}

// StoreVolumeLevel records a volume level just set on the device, keeping
// the cached mute flag.
func (sc *StatusCache) StoreVolumeLevel(level int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	muted := sc.hasVolume && sc.volume.Muted
	sc.volume = types.VolumeSnapshot{Level: level, Muted: muted, CapturedAt: sc.now()}
	sc.hasVolume = true
}

// StoreMuted records a mute state just set on the device, keeping the
// cached level.
func (sc *StatusCache) StoreMuted(muted bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	level := 0
	if sc.hasVolume {
		level = sc.volume.Level
	}
	sc.volume = types.VolumeSnapshot{Level: level, Muted: muted, CapturedAt: sc.now()}
	sc.hasVolume = true
}

// ClearProgress drops the progress snapshot and cancels its refresh.
func (sc *StatusCache) ClearProgress() {
	sc.mu.Lock()
	sc.hasProgress = false
	sc.progress = types.ProgressSnapshot{}
	fl := sc.pflight
	sc.pflight = nil
	sc.mu.Unlock()
	if fl != nil {
		fl.cancel()
	}
}

// ClearAll drops both snapshots and cancels in-flight refreshes. Used when
// switching media and on teardown.
func (sc *StatusCache) ClearAll() {
	sc.mu.Lock()
	sc.hasProgress = false
	sc.progress = types.ProgressSnapshot{}
	sc.hasVolume = false
	sc.volume = types.VolumeSnapshot{}
	pf, vf := sc.pflight, sc.vflight
	sc.pflight = nil
	sc.vflight = nil
	sc.mu.Unlock()
	if pf != nil {
		pf.cancel()
	}
	if vf != nil {
		vf.cancel()
	}
}

// startProgressRefreshLocked spawns the refresh goroutine; sc.mu must be
// held. The result is stored only while this flight is still the registered
// one, so a ClearAll during the fetch wins.
func (sc *StatusCache) startProgressRefreshLocked() *progressFlight {
	ctx, cancel := context.WithCancel(context.Background())
	fl := &progressFlight{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		snap, err := sc.refreshProgress(ctx)
		sc.mu.Lock()
		if sc.pflight == fl {
			sc.pflight = nil
			if err == nil {
				sc.progress = snap
				sc.hasProgress = true
			}
		}
		sc.mu.Unlock()
		fl.snapshot, fl.err = snap, err
		close(fl.done)
	}()
	return fl
}

func (sc *StatusCache) startVolumeRefreshLocked() *volumeFlight {
	ctx, cancel := context.WithCancel(context.Background())
	fl := &volumeFlight{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		snap, err := sc.refreshVolume(ctx)
		sc.mu.Lock()
		if sc.vflight == fl {
			sc.vflight = nil
			if err == nil {
				sc.volume = snap
				sc.hasVolume = true
			}
		}
		sc.mu.Unlock()
		fl.snapshot, fl.err = snap, err
		close(fl.done)
	}()
	return fl
}

func refreshAge(ttl time.Duration) time.Duration {
	return ttl * refreshNumerator / refreshDenominator
}

// interpolateProgress projects a playing snapshot forward to now, capped at
// the track duration when the duration is known.
func interpolateProgress(snap types.ProgressSnapshot, now time.Time) types.ProgressSnapshot {
	if !snap.Playing {
		return snap
	}
	elapsed := now.Sub(snap.CapturedAt)
	if elapsed <= 0 {
		return snap
	}
	pos := snap.PositionMs + elapsed.Milliseconds()
	if snap.DurationMs > 0 && pos > snap.DurationMs {
		pos = snap.DurationMs
	}
	snap.PositionMs = pos
	return snap
}
