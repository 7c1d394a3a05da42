package desc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

const (
	fetchAttempts    = 3
	fetchBackoffStep = 500 * time.Millisecond
	cacheTTL         = 10 * time.Minute
	cacheCapacity    = 50
	// maxDescriptionBytes bounds the body read; real renderer descriptions
	// are a few KB.
	maxDescriptionBytes = 512 * 1024
)

// structuralError marks failures retrying cannot fix: the location is bad,
// the host does not exist, or the document itself is broken.
type structuralError struct {
	err error
}

func (e *structuralError) Error() string { return e.err.Error() }
func (e *structuralError) Unwrap() error { return e.err }

// Structural wraps err as a structural failure.
func Structural(err error) error {
	if err == nil {
		return nil
	}
	return &structuralError{err: err}
}

// IsStructural reports whether err is a structural failure that must not be
// retried.
func IsStructural(err error) bool {
	var se *structuralError
	return errors.As(err, &se)
}

// Fetcher downloads device description documents and turns them into
// Descriptors. Parsed results are cached by location URL so repeated
// advertisements do not re-fetch; the cache keeps the most recently used
// cacheCapacity entries.
type Fetcher struct {
	client    *http.Client
	userAgent string

	mu     sync.Mutex
	cache  *ttlworker.Cache[string, *types.Descriptor]
	recent []string

	wait func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher. A nil client falls back to the shared
// description client from tool.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = tool.DescriptionHttpClient
	}
	return &Fetcher{
		client:    client,
		userAgent: tool.UserAgent,
		cache:     ttlworker.NewCache[string, *types.Descriptor](cacheTTL),
		wait:      waitFor,
	}
}

// Fetch resolves a description location into a Descriptor. Transient
// failures are retried up to fetchAttempts times with a linearly growing
// delay; structural failures abort immediately so callers can degrade to a
// fallback descriptor instead of hammering a dead URL.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*types.Descriptor, error) {
	if cached := f.cachedDescriptor(location); cached != nil {
		return cached, nil
	}

	parsed, err := url.Parse(location)
	if err != nil {
		return nil, Structural(fmt.Errorf("invalid description location %q: %v", location, err))
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, Structural(fmt.Errorf("unsupported description location %q", location))
	}

	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		body, err := f.download(ctx, location)
		if err == nil {
			descriptor, perr := ParseDescription(location, body)
			if perr != nil {
				return nil, Structural(perr)
			}
			f.storeDescriptor(location, descriptor)
			return descriptor, nil
		}
		if IsStructural(err) {
			tool.DefaultLogger.Debugf("desc: giving up on %s: %v", location, err)
			return nil, err
		}
		lastErr = err
		tool.DefaultLogger.Debugf("desc: attempt %d/%d for %s failed: %v", attempt, fetchAttempts, location, err)
		if attempt < fetchAttempts {
			if werr := f.wait(ctx, time.Duration(attempt)*fetchBackoffStep); werr != nil {
				return nil, werr
			}
		}
	}
	return nil, fmt.Errorf("description fetch failed after %d attempts: %v", fetchAttempts, lastErr)
}

// Forget drops one cached descriptor, forcing the next Fetch to hit the
// network again.
func (f *Fetcher) Forget(location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.Delete(location)
	f.dropLocked(location)
}

// ClearCache empties the descriptor cache.
func (f *Fetcher) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.recent {
		f.cache.Delete(key)
	}
	f.recent = nil
}

func (f *Fetcher) download(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, Structural(fmt.Errorf("failed to create description request: %v", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if isStructuralNetworkError(err) {
			return nil, Structural(err)
		}
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, Structural(fmt.Errorf("description fetch returned %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("description fetch returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes))
}

func (f *Fetcher) cachedDescriptor(location string) *types.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	cached := f.cache.Get(location)
	if cached == nil {
		return nil
	}
	f.touchLocked(location)
	return cached
}

func (f *Fetcher) storeDescriptor(location string, descriptor *types.Descriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.Set(location, descriptor)
	f.touchLocked(location)
	for len(f.recent) > cacheCapacity {
		oldest := f.recent[0]
		f.recent = f.recent[1:]
		f.cache.Delete(oldest)
	}
}

// touchLocked moves location to the most-recent end of the eviction order.
func (f *Fetcher) touchLocked(location string) {
	f.dropLocked(location)
	f.recent = append(f.recent, location)
}

func (f *Fetcher) dropLocked(location string) {
	for i, key := range f.recent {
		if key == location {
			f.recent = append(f.recent[:i], f.recent[i+1:]...)
			return
		}
	}
}

// isStructuralNetworkError reports whether the advertised host can never be
// reached as given, as opposed to a transient condition worth retrying.
func isStructuralNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such host")
}

// waitFor sleeps for d unless ctx ends first.
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FallbackDescriptor builds the minimal descriptor used when a device's
// description cannot be resolved but the device should stay visible.
func FallbackDescriptor(location, usn string) *types.Descriptor {
	host := tool.HostOfURL(location)
	name := "Media Device"
	if host != "" {
		name = fmt.Sprintf("Media Device (%s)", host)
	}
	now := time.Now()
	return &types.Descriptor{
		ID:           tool.DeviceIDFromLocation(location),
		Location:     location,
		USN:          usn,
		FriendlyName: name,
		Manufacturer: "Unknown",
		DeviceType:   types.DeviceTypeMediaRenderer,
		Address:      host,
		Fallback:     true,
		FirstSeen:    now,
		LastSeen:     now,
	}
}
