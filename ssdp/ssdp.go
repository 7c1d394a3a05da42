package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/dlnacast-go/desc"
	"github.com/moyoez/dlnacast-go/notify"
	"github.com/moyoez/dlnacast-go/registry"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

const (
	DefaultMulticastAddress = "239.255.255.250"
	DefaultMulticastPort    = 1900

	readBufferSize = 1024 * 8
	// readTimeout bounds each socket read so loops notice shutdown.
	readTimeout = 2 * time.Second
	// usnIndexTTL keeps the USN to location mapping long enough to serve
	// byebye messages that omit LOCATION.
	usnIndexTTL = 5 * time.Minute
)

// Config selects the discovery group and the interfaces to listen on.
type Config struct {
	MulticastAddress string // default 239.255.255.250
	MulticastPort    int    // default 1900
	NetworkInterface string // interface name, or "*"/"" for all
}

// Engine owns the discovery sockets. One receive loop runs per joined
// interface; accepted advertisements flow through the dedup set into the
// resolver pool, which feeds the registry.
type Engine struct {
	groupAddr *net.UDPAddr
	ifaceSel  string
	userAgent string

	registry *registry.Registry
	fetcher  *desc.Fetcher
	bus      *notify.Bus

	seen     *seenSet
	resolver *resolver
	usnIndex *ttlworker.Cache[string, string]

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	conns   []engineConn
	wg      sync.WaitGroup
}

type engineConn struct {
	conn  *net.UDPConn
	iface string
}

func NewEngine(cfg Config, reg *registry.Registry, fetcher *desc.Fetcher, bus *notify.Bus) (*Engine, error) {
	if cfg.MulticastAddress == "" {
		cfg.MulticastAddress = DefaultMulticastAddress
	}
	if cfg.MulticastPort <= 0 {
		cfg.MulticastPort = DefaultMulticastPort
	}
	groupAddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.MulticastAddress, strconv.Itoa(cfg.MulticastPort)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve discovery group address: %v", err)
	}
	seen := newSeenSet()
	return &Engine{
		groupAddr: groupAddr,
		ifaceSel:  cfg.NetworkInterface,
		userAgent: tool.UserAgent,
		registry:  reg,
		fetcher:   fetcher,
		bus:       bus,
		seen:      seen,
		resolver:  newResolver(fetcher, reg, seen),
		usnIndex:  ttlworker.NewCache[string, string](usnIndexTTL),
	}, nil
}

// Start joins the discovery group on every selected interface and begins
// the receive loops. It fails only when no socket can be opened at all;
// individual interface failures are logged and skipped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return errors.New("discovery engine already shut down")
	}
	if e.started {
		return nil
	}

	interfaces, err := tool.MulticastInterfaces(e.ifaceSel)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	var conns []engineConn
	for _, iface := range interfaces {
		name := "default"
		if iface != nil {
			name = iface.Name
		}
		conn, err := net.ListenMulticastUDP("udp4", iface, e.groupAddr)
		if err != nil {
			tool.DefaultLogger.Errorf("ssdp: failed to join %s on interface %s: %v", e.groupAddr, name, err)
			continue
		}
		if err := conn.SetReadBuffer(readBufferSize); err != nil {
			tool.DefaultLogger.Errorf("Failed to set read buffer: %v", err)
		}
		tool.DefaultLogger.Infof("ssdp: listening on %s (interface: %s)", e.groupAddr, name)
		conns = append(conns, engineConn{conn: conn, iface: name})
	}
	if len(conns) == 0 {
		cancel()
		return fmt.Errorf("failed to join discovery group %s on any interface", e.groupAddr)
	}

	e.ctx, e.cancel, e.conns = ctx, cancel, conns
	e.started = true
	for _, ec := range conns {
		e.wg.Add(1)
		go e.receiveLoop(ctx, ec.conn, ec.iface)
	}
	return nil
}

// Shutdown stops the receive loops, leaves the multicast group by closing
// the sockets, and clears the dedup state. Safe to call repeatedly.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	cancel, conns := e.cancel, e.conns
	e.cancel, e.conns = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ec := range conns {
		if err := ec.conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close multicast UDP connection: %v", err)
		}
	}
	e.wg.Wait()
	e.seen.Clear()
	tool.DefaultLogger.Info("ssdp: discovery engine stopped")
}

// receiveLoop reads the multicast socket with a bounded deadline so it can
// notice shutdown between datagrams.
func (e *Engine) receiveLoop(ctx context.Context, conn *net.UDPConn, ifaceName string) {
	defer e.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			tool.DefaultLogger.Errorf("ssdp: failed to set read deadline on %s: %v", ifaceName, err)
			return
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			tool.DefaultLogger.Errorf("ssdp: read error on interface %s: %v", ifaceName, err)
			return
		}
		e.handleDatagram(ctx, buf[:n], from)
	}
}

func (e *Engine) handleDatagram(ctx context.Context, data []byte, from *net.UDPAddr) {
	msg, ok := ParseMessage(data)
	if !ok {
		return
	}
	switch msg.Kind {
	case KindByebye:
		e.handleByebye(msg)
	case KindSearchResponse, KindAlive:
		e.handleAlive(ctx, msg, from)
	}
}

// handleAlive treats search responses and alive notifications identically:
// both are evidence the device exists at its advertised location.
func (e *Engine) handleAlive(ctx context.Context, msg Message, from *net.UDPAddr) {
	location := strings.TrimSpace(msg.Location)
	if location == "" {
		return
	}
	if msg.USN != "" {
		e.usnIndex.Set(msg.USN, location)
	}
	if e.seen.Seen(location) {
		e.registry.TouchByLocation(location)
		return
	}
	if from != nil {
		tool.DefaultLogger.Debugf("ssdp: advertisement from %s: %s", from.IP, location)
	}
	e.resolver.Enqueue(ctx, location, msg.USN)
}

// handleByebye removes the device. Byebye datagrams frequently omit
// LOCATION, so the USN index built from earlier advertisements backs it up,
// and a registry scan by USN covers announcements the index has expired.
func (e *Engine) handleByebye(msg Message) {
	location := strings.TrimSpace(msg.Location)
	if location == "" && msg.USN != "" {
		location = e.usnIndex.Get(msg.USN)
	}
	if msg.USN != "" {
		e.usnIndex.Delete(msg.USN)
	}
	if location == "" {
		if e.registry.RemoveByUSN(msg.USN) {
			tool.DefaultLogger.Infof("ssdp: device %s said byebye", msg.USN)
		}
		return
	}
	e.seen.Evict(location)
	if e.registry.RemoveByLocation(location) {
		e.fetcher.Forget(location)
		tool.DefaultLogger.Infof("ssdp: device at %s said byebye", location)
	}
}

func (e *Engine) publish(evt types.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(evt)
}

// runningContext returns the engine lifetime context when running.
func (e *Engine) runningContext() (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopped {
		return nil, errors.New("discovery engine not running")
	}
	return e.ctx, nil
}
