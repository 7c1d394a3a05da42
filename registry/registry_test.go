package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moyoez/dlnacast-go/control"
	"github.com/moyoez/dlnacast-go/notify"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

func rendererDescriptor(location, name string) *types.Descriptor {
	return &types.Descriptor{
		ID:           tool.DeviceIDFromLocation(location),
		Location:     location,
		FriendlyName: name,
		Address:      tool.HostOfURL(location) + ":49152",
		DeviceType:   types.DeviceTypeMediaRenderer,
		Services: []types.Service{
			{Type: types.ServiceTypeAVTransport, ControlURL: "http://10.0.0.9:49152/avt"},
			{Type: types.ServiceTypeRenderingControl, ControlURL: "http://10.0.0.9:49152/rcs"},
		},
	}
}

func setupRegistry(t *testing.T) (*Registry, *notify.Bus) {
	t.Helper()
	bus := notify.NewBus()
	t.Cleanup(bus.Close)
	r := NewRegistry(nil, bus)
	t.Cleanup(r.Close)
	return r, bus
}

// drainEvents empties everything the bus already delivered. Publication is
// synchronous, so calling this right after an operation sees its events.
func drainEvents(sub *notify.Subscription) []types.Event {
	var events []types.Event
	for {
		select {
		case evt := <-sub.C():
			events = append(events, evt)
		default:
			return events
		}
	}
}

func countKind(events []types.Event, kind string) int {
	n := 0
	for _, evt := range events {
		if evt.Kind == kind {
			n++
		}
	}
	return n
}

// TestUpsertDeduplicatesByLocation tests that repeated advertisements of the
// same description URL keep a single entry and only bump last-seen
func TestUpsertDeduplicatesByLocation(t *testing.T) {
	r, bus := setupRegistry(t)
	sub := bus.Subscribe(types.EventDeviceFound, types.EventDeviceListChanged)
	defer sub.Close()

	location := "http://10.0.0.9:49152/desc.xml"
	r.Upsert(rendererDescriptor(location, "Bedroom TV"))
	id := tool.DeviceIDFromLocation(location)

	first, ok := r.Device(id)
	if !ok {
		t.Fatal("device missing after Upsert")
	}
	backdated := time.Now().Add(-time.Hour)
	r.mu.Lock()
	r.entries[id].descriptor.LastSeen = backdated
	r.mu.Unlock()

	r.Upsert(rendererDescriptor(location, "Bedroom TV"))
	if r.Count() != 1 {
		t.Fatalf("Expected 1 device, got %d", r.Count())
	}
	second, _ := r.Device(id)
	if !second.LastSeen.After(backdated) {
		t.Error("refresh did not bump last-seen")
	}
	if !second.FirstSeen.Equal(first.FirstSeen) {
		t.Error("refresh changed first-seen")
	}

	events := drainEvents(sub)
	if n := countKind(events, types.EventDeviceFound); n != 1 {
		t.Errorf("Expected 1 device_found, got %d", n)
	}
	if n := countKind(events, types.EventDeviceListChanged); n != 1 {
		t.Errorf("Expected 1 device_list_changed, got %d", n)
	}
}

// TestUpsertIgnoresInvalid tests the nil and empty-id guards
func TestUpsertIgnoresInvalid(t *testing.T) {
	r, _ := setupRegistry(t)
	r.Upsert(nil)
	r.Upsert(&types.Descriptor{Location: "http://10.0.0.9/desc.xml"})
	if r.Count() != 0 {
		t.Errorf("Expected empty registry, got %d entries", r.Count())
	}
}

// TestRemovePublishesSingleListChange tests that one removal produces exactly
// one device_lost and one device_list_changed
func TestRemovePublishesSingleListChange(t *testing.T) {
	r, bus := setupRegistry(t)
	r.Upsert(rendererDescriptor("http://10.0.0.9:49152/a.xml", "TV A"))
	r.Upsert(rendererDescriptor("http://10.0.0.10:49152/b.xml", "TV B"))

	sub := bus.Subscribe(types.EventDeviceLost, types.EventDeviceListChanged)
	defer sub.Close()

	id := tool.DeviceIDFromLocation("http://10.0.0.9:49152/a.xml")
	if !r.Remove(id) {
		t.Fatal("Remove returned false for a known device")
	}
	if _, ok := r.Device(id); ok {
		t.Error("device still present after Remove")
	}
	if r.Count() != 1 {
		t.Errorf("Expected 1 device left, got %d", r.Count())
	}

	events := drainEvents(sub)
	if n := countKind(events, types.EventDeviceLost); n != 1 {
		t.Errorf("Expected 1 device_lost, got %d", n)
	}
	if n := countKind(events, types.EventDeviceListChanged); n != 1 {
		t.Errorf("Expected 1 device_list_changed, got %d", n)
	}

	if r.Remove(id) {
		t.Error("second Remove reported success")
	}
	if events := drainEvents(sub); len(events) != 0 {
		t.Errorf("no-op Remove published %d events", len(events))
	}
}

// TestRemoveByLocationAndUSN tests both removal lookup paths
func TestRemoveByLocationAndUSN(t *testing.T) {
	r, _ := setupRegistry(t)
	d := rendererDescriptor("http://10.0.0.9:49152/desc.xml", "Bedroom TV")
	d.USN = "uuid:12345678-aaaa::urn:schemas-upnp-org:device:MediaRenderer:1"
	r.Upsert(d)

	if !r.RemoveByLocation("http://10.0.0.9:49152/desc.xml") {
		t.Fatal("RemoveByLocation failed")
	}

	d = rendererDescriptor("http://10.0.0.9:49152/desc.xml", "Bedroom TV")
	d.USN = "uuid:12345678-aaaa::urn:schemas-upnp-org:device:MediaRenderer:1"
	r.Upsert(d)

	if r.RemoveByUSN("") {
		t.Error("empty USN removed something")
	}
	if r.RemoveByUSN("uuid:other") {
		t.Error("unknown USN removed something")
	}
	if !r.RemoveByUSN("uuid:12345678-aaaa::urn:schemas-upnp-org:device:MediaRenderer:1") {
		t.Error("RemoveByUSN failed for a known USN")
	}
	if r.Count() != 0 {
		t.Errorf("Expected empty registry, got %d entries", r.Count())
	}
}

// TestFallbackUpgradeReplacesController tests the one case where an existing
// entry's controller is dropped: a fallback entry resolving fully
func TestFallbackUpgradeReplacesController(t *testing.T) {
	r, bus := setupRegistry(t)
	location := "http://10.0.0.9:49152/desc.xml"

	fallback := &types.Descriptor{
		ID:           tool.DeviceIDFromLocation(location),
		Location:     location,
		FriendlyName: "Media Device (10.0.0.9)",
		Address:      "10.0.0.9:49152",
		Fallback:     true,
	}
	r.Upsert(fallback)
	firstSeen, _ := r.Device(fallback.ID)

	stale, ok := r.Controller(fallback.ID)
	if !ok {
		t.Fatal("controller missing for fallback entry")
	}

	sub := bus.Subscribe(types.EventDeviceFound)
	defer sub.Close()

	resolved := rendererDescriptor(location, "Bedroom TV")
	r.Upsert(resolved)

	fresh, _ := r.Controller(resolved.ID)
	if fresh == stale {
		t.Error("upgrade kept the serviceless controller")
	}
	err := stale.Stop(context.Background())
	if !errors.Is(err, control.ErrControllerClosed) {
		t.Errorf("stale controller not closed, got %v", err)
	}

	got, _ := r.Device(resolved.ID)
	if got.Fallback {
		t.Error("entry still marked fallback after upgrade")
	}
	if got.FriendlyName != "Bedroom TV" {
		t.Errorf("name = %q", got.FriendlyName)
	}
	if !got.FirstSeen.Equal(firstSeen.FirstSeen) {
		t.Error("upgrade lost the original first-seen time")
	}
	if n := countKind(drainEvents(sub), types.EventDeviceFound); n != 1 {
		t.Errorf("Expected upgrade to re-announce the device, got %d events", n)
	}
}

// TestResolvedEntryNotReplacedByRefresh tests that a refresh never swaps a
// resolved descriptor or its controller
func TestResolvedEntryNotReplacedByRefresh(t *testing.T) {
	r, _ := setupRegistry(t)
	location := "http://10.0.0.9:49152/desc.xml"
	r.Upsert(rendererDescriptor(location, "Bedroom TV"))
	id := tool.DeviceIDFromLocation(location)

	c1, _ := r.Controller(id)
	renamed := rendererDescriptor(location, "Renamed TV")
	r.Upsert(renamed)

	c2, _ := r.Controller(id)
	if c1 != c2 {
		t.Error("refresh replaced the controller")
	}
	got, _ := r.Device(id)
	if got.FriendlyName != "Bedroom TV" {
		t.Errorf("refresh replaced the descriptor: %q", got.FriendlyName)
	}
}

// TestControllerCreatedLazily tests controller creation on first use
func TestControllerCreatedLazily(t *testing.T) {
	r, _ := setupRegistry(t)
	location := "http://10.0.0.9:49152/desc.xml"
	r.Upsert(rendererDescriptor(location, "Bedroom TV"))
	id := tool.DeviceIDFromLocation(location)

	r.mu.RLock()
	preCreated := r.entries[id].controller != nil
	r.mu.RUnlock()
	if preCreated {
		t.Error("controller created before first use")
	}

	c1, ok := r.Controller(id)
	if !ok || c1 == nil {
		t.Fatal("Controller failed")
	}
	c2, _ := r.Controller(id)
	if c1 != c2 {
		t.Error("second lookup built a new controller")
	}
	if _, ok := r.Controller("dev_unknown"); ok {
		t.Error("unknown id yielded a controller")
	}
}

// TestDevicesSortsTVFirst tests the stable TV-first, then alphabetical order
func TestDevicesSortsTVFirst(t *testing.T) {
	r, _ := setupRegistry(t)
	r.Upsert(rendererDescriptor("http://10.0.0.11:49152/desc.xml", "Zeta Receiver"))
	r.Upsert(rendererDescriptor("http://10.0.0.12:49152/desc.xml", "Living Room TV"))
	r.Upsert(rendererDescriptor("http://10.0.0.13:49152/desc.xml", "Alpha Receiver"))

	got := r.Devices()
	if len(got) != 3 {
		t.Fatalf("Expected 3 devices, got %d", len(got))
	}
	wantOrder := []string{"Living Room TV", "Alpha Receiver", "Zeta Receiver"}
	for i, want := range wantOrder {
		if got[i].FriendlyName != want {
			t.Errorf("devices[%d] = %q, want %q", i, got[i].FriendlyName, want)
		}
	}

	// Same set, same order on every call.
	again := r.Devices()
	for i := range got {
		if again[i].ID != got[i].ID {
			t.Errorf("order changed between calls at %d", i)
		}
	}
}

// TestDevicesReturnsCopies tests that callers cannot mutate registry state
// through the returned slice
func TestDevicesReturnsCopies(t *testing.T) {
	r, _ := setupRegistry(t)
	location := "http://10.0.0.9:49152/desc.xml"
	r.Upsert(rendererDescriptor(location, "Bedroom TV"))

	list := r.Devices()
	list[0].FriendlyName = "Hacked"
	list[0].Services[0].ControlURL = "http://evil/ctrl"

	got, _ := r.Device(tool.DeviceIDFromLocation(location))
	if got.FriendlyName != "Bedroom TV" {
		t.Error("descriptor mutated through snapshot")
	}
	if got.Services[0].ControlURL != "http://10.0.0.9:49152/avt" {
		t.Error("services mutated through snapshot")
	}
}

// TestTouchByLocation tests last-seen refresh without a full descriptor
func TestTouchByLocation(t *testing.T) {
	r, _ := setupRegistry(t)
	location := "http://10.0.0.9:49152/desc.xml"
	r.Upsert(rendererDescriptor(location, "Bedroom TV"))
	id := tool.DeviceIDFromLocation(location)

	backdated := time.Now().Add(-time.Hour)
	r.mu.Lock()
	r.entries[id].descriptor.LastSeen = backdated
	r.mu.Unlock()

	if !r.TouchByLocation(location) {
		t.Fatal("TouchByLocation failed for a known device")
	}
	got, _ := r.Device(id)
	if !got.LastSeen.After(backdated) {
		t.Error("touch did not bump last-seen")
	}
	if r.TouchByLocation("http://10.0.0.99:49152/other.xml") {
		t.Error("unknown location reported touched")
	}
}

// TestSweepRemovesSilentDevices tests eviction of devices past the silence
// window
func TestSweepRemovesSilentDevices(t *testing.T) {
	r, _ := setupRegistry(t)
	silent := "http://10.0.0.9:49152/a.xml"
	fresh := "http://10.0.0.10:49152/b.xml"
	r.Upsert(rendererDescriptor(silent, "Silent TV"))
	r.Upsert(rendererDescriptor(fresh, "Fresh TV"))

	silentID := tool.DeviceIDFromLocation(silent)
	r.mu.Lock()
	r.entries[silentID].descriptor.LastSeen = time.Now().Add(-10 * time.Minute)
	r.mu.Unlock()

	r.sweepOnce(5*time.Minute, nil)

	if _, ok := r.Device(silentID); ok {
		t.Error("silent device survived the sweep")
	}
	if _, ok := r.Device(tool.DeviceIDFromLocation(fresh)); !ok {
		t.Error("fresh device was swept")
	}
}

// TestSweepProbeKeepsReachable tests that a responding device is kept and
// re-stamped instead of evicted
func TestSweepProbeKeepsReachable(t *testing.T) {
	r, _ := setupRegistry(t)
	location := "http://10.0.0.9:49152/desc.xml"
	r.Upsert(rendererDescriptor(location, "Bedroom TV"))
	id := tool.DeviceIDFromLocation(location)

	backdated := time.Now().Add(-10 * time.Minute)
	r.mu.Lock()
	r.entries[id].descriptor.LastSeen = backdated
	r.mu.Unlock()

	var probedHost string
	r.sweepOnce(5*time.Minute, func(host string) bool {
		probedHost = host
		return true
	})

	if probedHost == "" {
		t.Fatal("probe never ran")
	}
	got, ok := r.Device(id)
	if !ok {
		t.Fatal("reachable device was swept")
	}
	if !got.LastSeen.After(backdated) {
		t.Error("kept device did not get its last-seen bumped")
	}

	// Unreachable on the next sweep: now it goes.
	r.mu.Lock()
	r.entries[id].descriptor.LastSeen = backdated
	r.mu.Unlock()
	r.sweepOnce(5*time.Minute, func(host string) bool { return false })
	if _, ok := r.Device(id); ok {
		t.Error("unreachable device survived the sweep")
	}
}

// TestCloseStopsControllers tests teardown: entries emptied, controllers
// closed, nothing published
func TestCloseStopsControllers(t *testing.T) {
	r, bus := setupRegistry(t)
	location := "http://10.0.0.9:49152/desc.xml"
	r.Upsert(rendererDescriptor(location, "Bedroom TV"))
	c, _ := r.Controller(tool.DeviceIDFromLocation(location))

	sub := bus.Subscribe(types.EventDeviceLost, types.EventDeviceListChanged)
	defer sub.Close()

	r.Close()
	if r.Count() != 0 {
		t.Errorf("Expected empty registry, got %d entries", r.Count())
	}
	if err := c.Stop(context.Background()); !errors.Is(err, control.ErrControllerClosed) {
		t.Errorf("controller not closed, got %v", err)
	}
	if events := drainEvents(sub); len(events) != 0 {
		t.Errorf("Close published %d events", len(events))
	}
}
