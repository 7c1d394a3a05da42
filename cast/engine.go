package cast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moyoez/dlnacast-go/control"
	"github.com/moyoez/dlnacast-go/desc"
	"github.com/moyoez/dlnacast-go/notify"
	"github.com/moyoez/dlnacast-go/registry"
	"github.com/moyoez/dlnacast-go/share"
	"github.com/moyoez/dlnacast-go/soap"
	"github.com/moyoez/dlnacast-go/ssdp"
	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

const (
	sweepInterval = time.Minute
	probeTimeout  = 500 * time.Millisecond
)

// ErrUnknownDevice is returned for commands addressing a device id the
// registry does not hold.
var ErrUnknownDevice = errors.New("unknown device id")

// Engine is the handle the application constructs once at startup and
// passes to every caller. It owns the event bus, the registry, the media
// share store and the discovery engine; there is no process-wide instance.
type Engine struct {
	cfg types.AppConfig

	bus       *notify.Bus
	fetcher   *desc.Fetcher
	registry  *registry.Registry
	discovery *ssdp.Engine
	shares    *share.Store

	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
}

func NewEngine(cfg types.AppConfig) (*Engine, error) {
	bus := notify.NewBus()
	fetcher := desc.NewFetcher(nil)
	soapClient := soap.NewClient(nil)
	reg := registry.NewRegistry(soapClient, bus)
	discovery, err := ssdp.NewEngine(ssdp.Config{
		MulticastAddress: cfg.MulticastAddress,
		MulticastPort:    cfg.MulticastPort,
		NetworkInterface: cfg.NetworkInterface,
	}, reg, fetcher, bus)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		bus:       bus,
		fetcher:   fetcher,
		registry:  reg,
		discovery: discovery,
		shares:    share.NewStore(time.Duration(cfg.ShareTTLMin) * time.Minute),
	}, nil
}

// Start joins the discovery group and starts the liveness sweeper. Devices
// silent past the configured timeout are swept; with probing enabled a
// device that still answers ICMP survives the sweep.
func (e *Engine) Start() error {
	var err error
	e.startOnce.Do(func() {
		if err = e.discovery.Start(); err != nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel

		var probe func(host string) bool
		if e.cfg.ProbeBeforeEvict {
			probe = func(host string) bool {
				return tool.QuickICMPProbe(host, probeTimeout)
			}
		}
		go e.registry.RunSweeper(ctx, sweepInterval, e.deviceTimeout(), probe)
		tool.DefaultLogger.Infof("cast: engine started (device timeout %s)", e.deviceTimeout())
	})
	return err
}

// Close tears the engine down: discovery stops, controllers close, the bus
// closes every remaining subscription. Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.discovery.Shutdown()
		e.registry.Close()
		e.fetcher.ClearCache()
		e.bus.Close()
		tool.DefaultLogger.Info("cast: engine closed")
	})
}

// Search runs one discovery round. onFound, when set, is called for every
// device found while the window is open; the returned slice is the single
// final result. A timeout only means fewer devices, never an error.
func (e *Engine) Search(ctx context.Context, window time.Duration, onFound func(types.Descriptor)) ([]types.Descriptor, error) {
	if window <= 0 {
		window = time.Duration(e.cfg.SearchTimeoutSec) * time.Second
	}

	var sub *notify.Subscription
	var wg sync.WaitGroup
	if onFound != nil {
		sub = e.bus.Subscribe(types.EventDeviceFound)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for evt := range sub.C() {
				if device, ok := e.registry.Device(evt.DeviceID); ok {
					onFound(device)
				}
			}
		}()
	}

	err := e.discovery.Search(ctx, window)

	if sub != nil {
		sub.Close()
		wg.Wait()
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return e.registry.Devices(), nil
}

// Devices returns the sorted snapshot of known devices.
func (e *Engine) Devices() []types.Descriptor {
	return e.registry.Devices()
}

// Device returns one descriptor by id.
func (e *Engine) Device(id string) (types.Descriptor, bool) {
	return e.registry.Device(id)
}

// Forget drops a device by hand, same path as a byebye.
func (e *Engine) Forget(id string) bool {
	if device, ok := e.registry.Device(id); ok {
		e.fetcher.Forget(device.Location)
	}
	return e.registry.Remove(id)
}

// Subscribe registers an event listener. The caller owns the handle and
// must Close it.
func (e *Engine) Subscribe(kinds ...string) *notify.Subscription {
	return e.bus.Subscribe(kinds...)
}

// Config returns the engine's configuration snapshot.
func (e *Engine) Config() types.AppConfig {
	return e.cfg
}

func (e *Engine) deviceTimeout() time.Duration {
	if e.cfg.DeviceTimeoutSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(e.cfg.DeviceTimeoutSec) * time.Second
}

func (e *Engine) controller(id string) (*control.Controller, error) {
	controller, ok := e.registry.Controller(id)
	if !ok {
		return nil, ErrUnknownDevice
	}
	return controller, nil
}
