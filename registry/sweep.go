package registry

import (
	"context"
	"time"

	"github.com/moyoez/dlnacast-go/tool"
)

type silentDevice struct {
	id      string
	address string
}

// RunSweeper periodically removes devices whose last advertisement is older
// than silence. When probe is set, each candidate is probed first and a
// responding device gets its last-seen bumped instead of being evicted, so
// one lost datagram does not drop a live renderer. Blocks until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, interval, silence time.Duration, probe func(host string) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(silence, probe)
		}
	}
}

func (r *Registry) sweepOnce(silence time.Duration, probe func(host string) bool) {
	cutoff := time.Now().Add(-silence)

	r.mu.RLock()
	var candidates []silentDevice
	for id, e := range r.entries {
		if !e.descriptor.LastSeen.After(cutoff) {
			candidates = append(candidates, silentDevice{id: id, address: e.descriptor.Address})
		}
	}
	r.mu.RUnlock()

	for _, candidate := range candidates {
		if probe != nil && candidate.address != "" && probe(candidate.address) {
			tool.DefaultLogger.Debugf("registry: %s silent but reachable, keeping", candidate.id)
			r.touchByID(candidate.id)
			continue
		}
		// Re-checked under lock: an advertisement racing the sweep wins.
		if r.removeMatching(candidate.id, func(e *entry) bool {
			return !e.descriptor.LastSeen.After(cutoff)
		}) {
			tool.DefaultLogger.Infof("registry: %s silent past %s, removed", candidate.id, silence)
		}
	}
}

func (r *Registry) touchByID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.descriptor.LastSeen = time.Now()
	}
}
