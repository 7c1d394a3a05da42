package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moyoez/dlnacast-go/compat"
	"github.com/moyoez/dlnacast-go/control"
	"github.com/moyoez/dlnacast-go/notify"
	"github.com/moyoez/dlnacast-go/soap"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// entry pairs a descriptor with its lazily created controller. The registry
// exclusively owns controller lifecycle; callers only borrow references.
type entry struct {
	descriptor *types.Descriptor
	controller *control.Controller
}

// Registry is the thread-safe store of known devices, keyed by the id
// derived from the description location URL.
type Registry struct {
	soap *soap.Client
	bus  *notify.Bus

	mu      sync.RWMutex
	entries map[string]*entry
	prevIDs map[string]struct{}
}

func NewRegistry(client *soap.Client, bus *notify.Bus) *Registry {
	if client == nil {
		client = soap.NewClient(nil)
	}
	return &Registry{
		soap:    client,
		bus:     bus,
		entries: make(map[string]*entry),
		prevIDs: make(map[string]struct{}),
	}
}

// Upsert inserts descriptor or refreshes the existing entry's last-seen
// time. An existing controller is never replaced by a refresh; the one
// exception is a fallback entry being upgraded by a fully resolved
// descriptor, whose stale serviceless controller is dropped.
func (r *Registry) Upsert(descriptor *types.Descriptor) {
	if descriptor == nil || descriptor.ID == "" {
		return
	}
	now := time.Now()

	r.mu.Lock()
	existing, ok := r.entries[descriptor.ID]
	var staleController *control.Controller
	inserted := false
	upgraded := false
	if !ok {
		if descriptor.FirstSeen.IsZero() {
			descriptor.FirstSeen = now
		}
		descriptor.LastSeen = now
		r.entries[descriptor.ID] = &entry{descriptor: descriptor}
		inserted = true
	} else {
		existing.descriptor.LastSeen = now
		if existing.descriptor.Fallback && !descriptor.Fallback {
			descriptor.FirstSeen = existing.descriptor.FirstSeen
			descriptor.LastSeen = now
			staleController = existing.controller
			existing.descriptor = descriptor
			existing.controller = nil
			upgraded = true
		}
	}
	changed := inserted && r.snapshotChangedLocked()
	r.mu.Unlock()

	if staleController != nil {
		staleController.Close()
	}
	if inserted || upgraded {
		tool.DefaultLogger.Infof("registry: device %s (%s) at %s", descriptor.ID, descriptor.FriendlyName, descriptor.Address)
		r.publish(types.Event{
			Kind:     types.EventDeviceFound,
			DeviceID: descriptor.ID,
			Data: map[string]any{
				"name":     descriptor.FriendlyName,
				"address":  descriptor.Address,
				"fallback": descriptor.Fallback,
			},
		})
	}
	if changed {
		r.publishListChanged()
	}
}

// Remove drops the device, stopping any in-flight command sequencing first.
func (r *Registry) Remove(id string) bool {
	return r.removeMatching(id, nil)
}

// RemoveByLocation drops the device advertised at location.
func (r *Registry) RemoveByLocation(location string) bool {
	return r.Remove(tool.DeviceIDFromLocation(location))
}

// RemoveByUSN drops the device whose descriptor carries usn. Byebye
// notifications identify devices by USN only, so this is the fallback path
// when no location mapping survives for the announcement.
func (r *Registry) RemoveByUSN(usn string) bool {
	if usn == "" {
		return false
	}
	r.mu.RLock()
	id := ""
	for candidate, e := range r.entries {
		if e.descriptor.USN == usn {
			id = candidate
			break
		}
	}
	r.mu.RUnlock()
	if id == "" {
		return false
	}
	return r.removeMatching(id, func(e *entry) bool {
		return e.descriptor.USN == usn
	})
}

// TouchByLocation refreshes last-seen for the device advertised at
// location. Reports whether the device is known.
func (r *Registry) TouchByLocation(location string) bool {
	id := tool.DeviceIDFromLocation(location)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.descriptor.LastSeen = time.Now()
	return true
}

// Controller returns the device's controller, creating it on first use.
func (r *Registry) Controller(id string) (*control.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	if e.controller == nil {
		e.controller = control.NewController(e.descriptor, r.soap, r.bus)
	}
	return e.controller, true
}

// Device returns a copy of one descriptor.
func (r *Registry) Device(id string) (types.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return types.Descriptor{}, false
	}
	return copyDescriptor(e.descriptor), true
}

// Devices returns a sorted snapshot: TV-like renderers first, then
// alphabetically by name. The order is stable so list presentation does not
// jitter between polls.
func (r *Registry) Devices() []types.Descriptor {
	r.mu.RLock()
	list := make([]types.Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, copyDescriptor(e.descriptor))
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		ri, rj := deviceRank(&list[i]), deviceRank(&list[j])
		if ri != rj {
			return ri < rj
		}
		ni, nj := strings.ToLower(list[i].FriendlyName), strings.ToLower(list[j].FriendlyName)
		if ni != nj {
			return ni < nj
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close stops every controller and empties the store. No events are
// published; Close is part of engine teardown.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.prevIDs = make(map[string]struct{})
	r.mu.Unlock()

	for _, e := range entries {
		if e.controller != nil {
			e.controller.Close()
		}
	}
}

// removeMatching removes id when match is nil or returns true for its entry.
func (r *Registry) removeMatching(id string, match func(*entry) bool) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || (match != nil && !match(e)) {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, id)
	changed := r.snapshotChangedLocked()
	controller := e.controller
	descriptor := e.descriptor
	r.mu.Unlock()

	if controller != nil {
		controller.Close()
	}
	tool.DefaultLogger.Infof("registry: device %s (%s) removed", id, descriptor.FriendlyName)
	r.publish(types.Event{
		Kind:     types.EventDeviceLost,
		DeviceID: id,
		Data:     map[string]any{"name": descriptor.FriendlyName},
	})
	if changed {
		r.publishListChanged()
	}
	return true
}

// snapshotChangedLocked compares the current id set against the previous
// published snapshot and records the new one when they differ.
func (r *Registry) snapshotChangedLocked() bool {
	if len(r.entries) == len(r.prevIDs) {
		same := true
		for id := range r.entries {
			if _, ok := r.prevIDs[id]; !ok {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	r.prevIDs = make(map[string]struct{}, len(r.entries))
	for id := range r.entries {
		r.prevIDs[id] = struct{}{}
	}
	return true
}

func (r *Registry) publishListChanged() {
	r.publish(types.Event{
		Kind: types.EventDeviceListChanged,
		Data: map[string]any{"count": r.Count()},
	})
}

func (r *Registry) publish(evt types.Event) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(evt)
}

func deviceRank(d *types.Descriptor) int {
	if compat.IsTVLike(d) {
		return 0
	}
	return 1
}

func copyDescriptor(d *types.Descriptor) types.Descriptor {
	out := *d
	out.Services = append([]types.Service(nil), d.Services...)
	return out
}
