package tool

import (
	"flag"

	"github.com/moyoez/dlnacast-go/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Flags {
	var cfg types.Flags
	flag.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	flag.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path")
	flag.IntVar(&cfg.UsePort, "usePort", 0, "override local API/media port")
	flag.StringVar(&cfg.UseAlias, "useAlias", "", "specify client alias sent in search requests")
	flag.StringVar(&cfg.UseAdvertiseHost, "useAdvertiseHost", "", "override the host renderers fetch shared media from")
	flag.StringVar(&cfg.UseReferNetworkInterface, "useReferNetworkInterface", "*", "specify network interface (e.g., 'en0', 'eth0') or '*' for all interfaces")
	flag.StringVar(&cfg.UseMultcastAddress, "useMultcastAddress", "", "override SSDP multicast address")
	flag.IntVar(&cfg.UseMultcastPort, "useMultcastPort", 0, "override SSDP multicast port")
	flag.IntVar(&cfg.UseSearchTimeout, "useSearchTimeout", 0, "default search window in seconds")
	flag.IntVar(&cfg.UseDeviceTimeout, "useDeviceTimeout", 0, "silence timeout in seconds before a device is swept")
	flag.BoolVar(&cfg.SkipProbe, "skipProbe", false, "evict silent devices without an ICMP probe")
	flag.Parse()
	return cfg
}

// MergeFlags applies non-zero flag overrides onto the loaded config.
func MergeFlags(cfg types.AppConfig, flags types.Flags) types.AppConfig {
	if flags.UsePort > 0 {
		cfg.Port = flags.UsePort
	}
	if flags.UseAlias != "" {
		cfg.Alias = flags.UseAlias
	}
	if flags.UseAdvertiseHost != "" {
		cfg.AdvertiseHost = flags.UseAdvertiseHost
	}
	if flags.UseReferNetworkInterface != "" {
		cfg.NetworkInterface = flags.UseReferNetworkInterface
	}
	if flags.UseMultcastAddress != "" {
		cfg.MulticastAddress = flags.UseMultcastAddress
	}
	if flags.UseMultcastPort > 0 {
		cfg.MulticastPort = flags.UseMultcastPort
	}
	if flags.UseSearchTimeout > 0 {
		cfg.SearchTimeoutSec = flags.UseSearchTimeout
	}
	if flags.UseDeviceTimeout > 0 {
		cfg.DeviceTimeoutSec = flags.UseDeviceTimeout
	}
	if flags.SkipProbe {
		cfg.ProbeBeforeEvict = false
	}
	return cfg
}
