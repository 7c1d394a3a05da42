package ssdp

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/moyoez/dlnacast-go/desc"
	"github.com/moyoez/dlnacast-go/registry"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

const (
	// resolveConcurrency caps parallel description fetches; resolveRatePPS
	// paces them so a search burst does not stampede the network.
	resolveConcurrency = 8
	resolveRatePPS     = 16
)

// resolver turns advertised locations into registry entries off the receive
// loop. Structural failures degrade to a fallback descriptor; transient
// ones evict the dedup entry so the next advertisement retries.
type resolver struct {
	fetcher  *desc.Fetcher
	registry *registry.Registry
	seen     *seenSet

	sem     chan struct{}
	limiter *rate.Limiter

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

func newResolver(fetcher *desc.Fetcher, reg *registry.Registry, seen *seenSet) *resolver {
	idle := make(chan struct{})
	close(idle)
	return &resolver{
		fetcher:  fetcher,
		registry: reg,
		seen:     seen,
		sem:      make(chan struct{}, resolveConcurrency),
		limiter:  rate.NewLimiter(rate.Limit(resolveRatePPS), resolveRatePPS*2),
		idle:     idle,
	}
}

// Enqueue schedules resolution of location. Never blocks the caller.
func (r *resolver) Enqueue(ctx context.Context, location, usn string) {
	r.begin()
	go func() {
		defer r.end()
		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		case <-ctx.Done():
			return
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		r.resolveOne(ctx, location, usn)
	}()
}

// WaitIdle blocks until no resolution is in flight, the grace period ends,
// or ctx is done. Search uses it so the final device list includes
// responses that arrived near the window's edge.
func (r *resolver) WaitIdle(ctx context.Context, grace time.Duration) {
	r.mu.Lock()
	idle := r.idle
	active := r.active
	r.mu.Unlock()
	if active == 0 {
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (r *resolver) resolveOne(ctx context.Context, location, usn string) {
	descriptor, err := r.fetcher.Fetch(ctx, location)
	if err == nil {
		// Copy before stamping the USN; the fetcher's cached object is
		// shared across resolutions.
		resolved := *descriptor
		resolved.Services = append([]types.Service(nil), descriptor.Services...)
		if usn != "" {
			resolved.USN = usn
		}
		r.registry.Upsert(&resolved)
		return
	}
	if desc.IsStructural(err) {
		tool.DefaultLogger.Warnf("ssdp: %s description unusable, using fallback: %v", location, err)
		r.registry.Upsert(desc.FallbackDescriptor(location, usn))
		return
	}
	tool.DefaultLogger.Debugf("ssdp: %s resolution failed, will retry on next advertisement: %v", location, err)
	r.seen.Evict(location)
}

func (r *resolver) begin() {
	r.mu.Lock()
	r.active++
	if r.active == 1 {
		r.idle = make(chan struct{})
	}
	r.mu.Unlock()
}

func (r *resolver) end() {
	r.mu.Lock()
	r.active--
	if r.active == 0 {
		close(r.idle)
	}
	r.mu.Unlock()
}
