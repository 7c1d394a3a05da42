package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Alias            string `yaml:"alias"`            // client id announced in M-SEARCH USER-AGENT
	Port             int    `yaml:"port"`             // local API + media server port
	AdvertiseHost    string `yaml:"advertiseHost"`    // host renderers use to reach shared media; empty = auto-detect
	NetworkInterface string `yaml:"networkInterface"` // interface name or "*" for all
	MulticastAddress string `yaml:"multicastAddress"`
	MulticastPort    int    `yaml:"multicastPort"`
	SearchTimeoutSec int    `yaml:"searchTimeoutSec"` // default per-search window
	DeviceTimeoutSec int    `yaml:"deviceTimeoutSec"` // silence timeout before a device is swept
	ProbeBeforeEvict bool   `yaml:"probeBeforeEvict"` // ICMP-probe silent devices before removal
	ShareTTLMin      int    `yaml:"shareTTLMin"`      // media share token lifetime
}

// ConfigResponse is the full config as returned by the settings API.
type ConfigResponse struct {
	Alias            string `json:"alias"`
	Port             int    `json:"port"`
	AdvertiseHost    string `json:"advertiseHost"`
	NetworkInterface string `json:"networkInterface"`
	MulticastAddress string `json:"multicastAddress"`
	MulticastPort    int    `json:"multicastPort"`
	SearchTimeoutSec int    `json:"searchTimeoutSec"`
	DeviceTimeoutSec int    `json:"deviceTimeoutSec"`
	ProbeBeforeEvict bool   `json:"probeBeforeEvict"`
	ShareTTLMin      int    `json:"shareTTLMin"`
}

// ConfigPatchRequest carries a partial config update. Nil fields are left
// unchanged.
type ConfigPatchRequest struct {
	Alias            *string `json:"alias"`
	Port             *int    `json:"port"`
	AdvertiseHost    *string `json:"advertiseHost"`
	NetworkInterface *string `json:"networkInterface"`
	MulticastAddress *string `json:"multicastAddress"`
	MulticastPort    *int    `json:"multicastPort"`
	SearchTimeoutSec *int    `json:"searchTimeoutSec"`
	DeviceTimeoutSec *int    `json:"deviceTimeoutSec"`
	ProbeBeforeEvict *bool   `json:"probeBeforeEvict"`
	ShareTTLMin      *int    `json:"shareTTLMin"`
}

// Flags holds runtime overrides from CLI flags
type Flags struct {
	Log                      string
	UseConfigPath            string
	UsePort                  int
	UseAlias                 string
	UseAdvertiseHost         string
	UseReferNetworkInterface string // fixes when using virtual network interface. e.g. Clash TUN.
	UseMultcastAddress       string
	UseMultcastPort          int
	UseSearchTimeout         int
	UseDeviceTimeout         int
	SkipProbe                bool // if true, silent devices are evicted without an ICMP probe.
}
