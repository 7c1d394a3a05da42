package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/moyoez/dlnacast-go/types"
)

// fakeClock is a controllable time source shared between the cache and the
// snapshots a test feeds it.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// statusFakes counts refresh calls and returns whatever snapshot the test
// last configured.
type statusFakes struct {
	mu            sync.Mutex
	progressCalls int
	volumeCalls   int
	progress      types.ProgressSnapshot
	progressErr   error
	volume        types.VolumeSnapshot
	volumeErr     error
	block         chan struct{} // when set, refreshes wait here or for ctx
}

func (f *statusFakes) refreshProgress(ctx context.Context) (types.ProgressSnapshot, error) {
	f.mu.Lock()
	f.progressCalls++
	snap, err, block := f.progress, f.progressErr, f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.ProgressSnapshot{}, ctx.Err()
		}
	}
	return snap, err
}

func (f *statusFakes) refreshVolume(ctx context.Context) (types.VolumeSnapshot, error) {
	f.mu.Lock()
	f.volumeCalls++
	snap, err, block := f.volume, f.volumeErr, f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.VolumeSnapshot{}, ctx.Err()
		}
	}
	return snap, err
}

func (f *statusFakes) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progressCalls, f.volumeCalls
}

func newTestStatusCache(fakes *statusFakes, clock *fakeClock) *StatusCache {
	sc := NewStatusCache(fakes.refreshProgress, fakes.refreshVolume)
	sc.now = clock.Now
	return sc
}

func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestVolumeServedFromCacheWithinTTL tests that reads inside the TTL hit the
// cache and the first read past it refreshes exactly once
func TestVolumeServedFromCacheWithinTTL(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{}
	fakes.volume = types.VolumeSnapshot{Level: 30, CapturedAt: clock.Now()}
	sc := newTestStatusCache(fakes, clock)

	first, err := sc.Volume(context.Background())
	if err != nil {
		t.Fatalf("Volume failed: %v", err)
	}
	if first.Level != 30 {
		t.Errorf("level = %d", first.Level)
	}

	clock.Advance(3 * time.Second)
	second, err := sc.Volume(context.Background())
	if err != nil {
		t.Fatalf("cached Volume failed: %v", err)
	}
	if second != first {
		t.Errorf("cached read should be identical: %+v vs %+v", second, first)
	}
	if _, vc := fakes.counts(); vc != 1 {
		t.Errorf("Expected 1 refresh, got %d", vc)
	}

	// Past the TTL the read blocks on exactly one new refresh.
	fakes.mu.Lock()
	fakes.volume = types.VolumeSnapshot{Level: 55, CapturedAt: clock.Now().Add(volumeTTL + time.Second)}
	fakes.mu.Unlock()
	clock.Advance(volumeTTL + time.Second)

	third, err := sc.Volume(context.Background())
	if err != nil {
		t.Fatalf("stale Volume failed: %v", err)
	}
	if third.Level != 55 {
		t.Errorf("Expected refreshed level 55, got %d", third.Level)
	}
	if _, vc := fakes.counts(); vc != 2 {
		t.Errorf("Expected 2 refreshes, got %d", vc)
	}
}

// TestVolumeNearTTLRefreshesInBackground tests the serve-stale-and-refresh
// window at 80% of the TTL
func TestVolumeNearTTLRefreshesInBackground(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{}
	fakes.volume = types.VolumeSnapshot{Level: 30, CapturedAt: clock.Now()}
	sc := newTestStatusCache(fakes, clock)

	if _, err := sc.Volume(context.Background()); err != nil {
		t.Fatalf("Volume failed: %v", err)
	}

	fakes.mu.Lock()
	fakes.volume = types.VolumeSnapshot{Level: 45, CapturedAt: clock.Now().Add(8500 * time.Millisecond)}
	fakes.mu.Unlock()
	clock.Advance(8500 * time.Millisecond) // inside TTL, past the refresh threshold

	snap, err := sc.Volume(context.Background())
	if err != nil {
		t.Fatalf("near-TTL Volume failed: %v", err)
	}
	if snap.Level != 30 {
		t.Errorf("near-TTL read should serve the cached level, got %d", snap.Level)
	}

	waitForCondition(t, time.Second, func() bool {
		_, vc := fakes.counts()
		return vc == 2
	})
	waitForCondition(t, time.Second, func() bool {
		got, err := sc.Volume(context.Background())
		return err == nil && got.Level == 45
	})
	if _, vc := fakes.counts(); vc != 2 {
		t.Errorf("Expected exactly 2 refreshes, got %d", vc)
	}
}

// TestProgressInterpolatesWhilePlaying tests forward projection of a playing
// snapshot between polls
func TestProgressInterpolatesWhilePlaying(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{}
	fakes.progress = types.ProgressSnapshot{
		PositionMs: 10000,
		DurationMs: 60000,
		Playing:    true,
		CapturedAt: clock.Now(),
	}
	sc := newTestStatusCache(fakes, clock)

	first, err := sc.Progress(context.Background())
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if first.PositionMs != 10000 {
		t.Errorf("position = %d", first.PositionMs)
	}

	clock.Advance(2 * time.Second)
	second, err := sc.Progress(context.Background())
	if err != nil {
		t.Fatalf("cached Progress failed: %v", err)
	}
	if second.PositionMs != 12000 {
		t.Errorf("Expected interpolated position 12000, got %d", second.PositionMs)
	}
	if second.DurationMs != 60000 || !second.Playing {
		t.Errorf("interpolation changed more than the position: %+v", second)
	}
	if pc, _ := fakes.counts(); pc != 1 {
		t.Errorf("interpolated read should not refresh, got %d calls", pc)
	}
}

// TestProgressInterpolationCapsAtDuration tests that projection never
// overshoots the track end
func TestProgressInterpolationCapsAtDuration(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{}
	fakes.progress = types.ProgressSnapshot{
		PositionMs: 59500,
		DurationMs: 60000,
		Playing:    true,
		CapturedAt: clock.Now(),
	}
	sc := newTestStatusCache(fakes, clock)

	if _, err := sc.Progress(context.Background()); err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	clock.Advance(2 * time.Second)
	snap, err := sc.Progress(context.Background())
	if err != nil {
		t.Fatalf("cached Progress failed: %v", err)
	}
	if snap.PositionMs != 60000 {
		t.Errorf("Expected position capped at 60000, got %d", snap.PositionMs)
	}
}

// TestProgressPausedIsNotInterpolated tests that a paused snapshot stays put
func TestProgressPausedIsNotInterpolated(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{}
	fakes.progress = types.ProgressSnapshot{
		PositionMs: 5000,
		DurationMs: 60000,
		Playing:    false,
		CapturedAt: clock.Now(),
	}
	sc := newTestStatusCache(fakes, clock)

	if _, err := sc.Progress(context.Background()); err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	clock.Advance(2 * time.Second)
	snap, err := sc.Progress(context.Background())
	if err != nil {
		t.Fatalf("cached Progress failed: %v", err)
	}
	if snap.PositionMs != 5000 {
		t.Errorf("paused position moved to %d", snap.PositionMs)
	}
}

// TestConcurrentStaleReadsShareOneRefresh tests refresh coalescing
func TestConcurrentStaleReadsShareOneRefresh(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{block: make(chan struct{})}
	fakes.progress = types.ProgressSnapshot{PositionMs: 7000, CapturedAt: clock.Now()}
	sc := newTestStatusCache(fakes, clock)

	const readers = 5
	var wg sync.WaitGroup
	results := make([]types.ProgressSnapshot, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = sc.Progress(context.Background())
		}(i)
	}

	waitForCondition(t, time.Second, func() bool {
		pc, _ := fakes.counts()
		return pc == 1
	})
	close(fakes.block)
	wg.Wait()

	for i := 0; i < readers; i++ {
		if errs[i] != nil {
			t.Fatalf("reader %d failed: %v", i, errs[i])
		}
		if results[i].PositionMs != 7000 {
			t.Errorf("reader %d got %d", i, results[i].PositionMs)
		}
	}
	if pc, _ := fakes.counts(); pc != 1 {
		t.Errorf("Expected a single shared refresh, got %d", pc)
	}
}

// TestClearAllCancelsInFlightRefresh tests that teardown aborts a hanging poll
func TestClearAllCancelsInFlightRefresh(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{block: make(chan struct{})}
	sc := newTestStatusCache(fakes, clock)

	done := make(chan error, 1)
	go func() {
		_, err := sc.Progress(context.Background())
		done <- err
	}()

	waitForCondition(t, time.Second, func() bool {
		pc, _ := fakes.counts()
		return pc == 1
	})
	sc.ClearAll()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after ClearAll")
	}
	if _, has := sc.LastProgress(); has {
		t.Error("cache should be empty after ClearAll")
	}
}

// TestRefreshErrorIsNotCached tests that a failed poll does not poison the
// cache and the next read retries
func TestRefreshErrorIsNotCached(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{progressErr: errors.New("device busy")}
	sc := newTestStatusCache(fakes, clock)

	if _, err := sc.Progress(context.Background()); err == nil {
		t.Fatal("Expected refresh error")
	}
	if _, has := sc.LastProgress(); has {
		t.Error("failed refresh should not populate the cache")
	}

	fakes.mu.Lock()
	fakes.progressErr = nil
	fakes.progress = types.ProgressSnapshot{PositionMs: 1000, CapturedAt: clock.Now()}
	fakes.mu.Unlock()

	snap, err := sc.Progress(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if snap.PositionMs != 1000 {
		t.Errorf("position = %d", snap.PositionMs)
	}
	if pc, _ := fakes.counts(); pc != 2 {
		t.Errorf("Expected 2 refresh calls, got %d", pc)
	}
}

// TestStoreVolumeWriteThrough tests that set-volume and set-mute results are
// served without polling the device
func TestStoreVolumeWriteThrough(t *testing.T) {
	clock := newFakeClock()
	fakes := &statusFakes{}
	sc := newTestStatusCache(fakes, clock)

	sc.StoreMuted(true)
	sc.StoreVolumeLevel(50)

	snap, err := sc.Volume(context.Background())
	if err != nil {
		t.Fatalf("Volume failed: %v", err)
	}
	if snap.Level != 50 {
		t.Errorf("level = %d", snap.Level)
	}
	if !snap.Muted {
		t.Error("StoreVolumeLevel lost the mute flag")
	}
	if _, vc := fakes.counts(); vc != 0 {
		t.Errorf("write-through read should not poll, got %d calls", vc)
	}

	sc.StoreMuted(false)
	snap, _ = sc.Volume(context.Background())
	if snap.Level != 50 || snap.Muted {
		t.Errorf("StoreMuted lost the level: %+v", snap)
	}
}
