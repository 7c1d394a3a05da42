package notify

import (
	"sync"
	"time"

	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// subscriptionBuffer is the per-subscriber channel depth. A slow consumer
// loses its oldest pending event, never blocks a publisher.
const subscriptionBuffer = 32

// Bus fans engine events out to subscribers. Subscriptions are explicit
// handles: callers keep the handle and must Close it to unregister, the bus
// never drops a listener on its own.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// Subscription is one subscriber's handle on the bus.
type Subscription struct {
	id    uint64
	bus   *Bus
	kinds map[string]struct{} // empty = all kinds
	ch    chan types.Event

	mu     sync.Mutex
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber for the given event kinds (none =
// every kind) and returns its handle.
func (b *Bus) Subscribe(kinds ...string) *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan types.Event, subscriptionBuffer),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		// Closed bus hands out a dead subscription rather than nil so
		// callers can treat shutdown uniformly.
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to every matching subscriber without blocking.
// Stamps the event time when unset.
func (b *Bus) Publish(evt types.Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.wants(evt.Kind) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.push(evt)
	}
}

// Close tears the bus down, closing every remaining subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeChan()
	}
}

// C returns the receive channel. It is closed when the subscription or the
// bus is closed.
func (s *Subscription) C() <-chan types.Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.closeChan()
}

func (s *Subscription) closeChan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) wants(kind string) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// push is best-effort: a full buffer drops the oldest pending event to make
// room for the new one. The mutex keeps sends ordered against closeChan.
func (s *Subscription) push(evt types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	select {
	case dropped := <-s.ch:
		tool.DefaultLogger.Debugf("notify: slow subscriber, dropped %s event", dropped.Kind)
	default:
	}
	select {
	case s.ch <- evt:
	default:
	}
}
