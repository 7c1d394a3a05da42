package ssdp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

const (
	defaultSearchWindow = 5 * time.Second
	// searchRepeat: datagrams get lost, so each target is searched twice.
	searchRepeat = 2
	// searchRatePPS paces outgoing search datagrams across interfaces.
	searchRatePPS = 20
	// resolveGrace extends the window slightly so descriptions fetched for
	// late responses still make the final device list.
	resolveGrace = 2 * time.Second
)

// Search sends one datagram per search target on every selected interface,
// then collects unicast responses until the window closes. Results flow
// through the same resolution path as unsolicited advertisements; when
// Search returns, the registry holds everything found so far. A short
// window is not an error, only fewer devices.
func (e *Engine) Search(ctx context.Context, window time.Duration) error {
	engineCtx, err := e.runningContext()
	if err != nil {
		return err
	}
	if window <= 0 {
		window = defaultSearchWindow
	}

	searchID := tool.GenerateRandomUUID()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-engineCtx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	interfaces, err := tool.MulticastInterfaces(e.ifaceSel)
	if err != nil {
		return err
	}

	e.publish(types.Event{
		Kind:     types.EventSearchStarted,
		SearchID: searchID,
		Data:     map[string]any{"window_ms": window.Milliseconds()},
	})
	tool.DefaultLogger.Infof("ssdp: search %s started (window %s, %d interfaces)", searchID, window, len(interfaces))

	deadline := time.Now().Add(window)
	limiter := rate.NewLimiter(rate.Limit(searchRatePPS), searchRatePPS)

	var wg sync.WaitGroup
	for _, iface := range interfaces {
		var bindIP net.IP
		name := "default"
		if iface != nil {
			ip, ok := tool.InterfaceIPv4(iface)
			if !ok {
				continue
			}
			bindIP = ip
			name = iface.Name
		}
		wg.Add(1)
		go func(bindIP net.IP, name string) {
			defer wg.Done()
			e.searchOnInterface(ctx, bindIP, name, deadline, limiter)
		}(bindIP, name)
	}
	wg.Wait()

	// Let in-flight description fetches land before declaring the result.
	e.resolver.WaitIdle(ctx, resolveGrace)

	found := e.registry.Count()
	e.publish(types.Event{
		Kind:     types.EventSearchFinished,
		SearchID: searchID,
		Data:     map[string]any{"devices": found},
	})
	tool.DefaultLogger.Infof("ssdp: search %s finished, %d devices known", searchID, found)
	return ctx.Err()
}

// searchOnInterface opens a short-lived socket bound to the interface
// address, fires the search rounds, and reads unicast responses until the
// deadline. Responses go through the shared datagram handler.
func (e *Engine) searchOnInterface(ctx context.Context, bindIP net.IP, ifaceName string, deadline time.Time, limiter *rate.Limiter) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: bindIP})
	if err != nil {
		tool.DefaultLogger.Errorf("ssdp: failed to open search socket on %s: %v", ifaceName, err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close search socket: %v", err)
		}
	}()

	host := e.groupAddr.String()
	for round := 0; round < searchRepeat; round++ {
		for _, target := range searchTargets {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			payload := BuildSearchRequest(target, host, e.userAgent)
			if _, err := conn.WriteToUDP(payload, e.groupAddr); err != nil {
				if tool.IsAddrNotAvailableError(err) {
					tool.DefaultLogger.Warnf("IP address not available, please check your network environment and try again: %v", err)
					return
				}
				tool.DefaultLogger.Debugf("ssdp: failed to send search on %s: %v", ifaceName, err)
			}
		}
	}

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		step := readTimeout
		if remaining < step {
			step = remaining
		}
		if err := conn.SetReadDeadline(time.Now().Add(step)); err != nil {
			tool.DefaultLogger.Errorf("ssdp: failed to set read deadline on search socket: %v", err)
			return
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if ctx.Err() == nil {
				tool.DefaultLogger.Debugf("ssdp: search read error on %s: %v", ifaceName, err)
			}
			return
		}
		e.handleDatagram(ctx, buf[:n], from)
	}
}
