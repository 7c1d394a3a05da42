package tool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/dlnacast-go/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Alias:            "cast-" + GenerateShortID(), // shows up in M-SEARCH USER-AGENT, keep it short.
		Port:             8738,
		AdvertiseHost:    "", // auto-detect from the selected interface.
		NetworkInterface: "*",
		MulticastAddress: "", // empty = standard SSDP group.
		MulticastPort:    0,
		SearchTimeoutSec: 5,
		DeviceTimeoutSec: 300, // renderers silent for 5 minutes get swept.
		ProbeBeforeEvict: true,
		ShareTTLMin:      360,
	}
}

func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := defaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file doesn't exist, create with default values
			if writeErr := writeConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			CurrentConfig = cfg
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}

	var configChanged bool
	if cfg.Alias == "" {
		cfg.Alias = defaultConfig().Alias
		DefaultLogger.Infof("Generated client alias: %s", cfg.Alias)
		configChanged = true
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultConfig().Port
		configChanged = true
	}
	if cfg.SearchTimeoutSec <= 0 {
		cfg.SearchTimeoutSec = defaultConfig().SearchTimeoutSec
		configChanged = true
	}
	if cfg.DeviceTimeoutSec <= 0 {
		cfg.DeviceTimeoutSec = defaultConfig().DeviceTimeoutSec
		configChanged = true
	}
	if cfg.ShareTTLMin <= 0 {
		cfg.ShareTTLMin = defaultConfig().ShareTTLMin
		configChanged = true
	}

	if configChanged {
		if writeErr := writeConfig(path, cfg); writeErr != nil {
			DefaultLogger.Warnf("Failed to update config file: %v", writeErr)
		}
	}

	CurrentConfig = cfg
	return cfg, nil
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}

// PersistAppConfig updates the in-memory config and writes it back to the
// config file (settings API path).
func PersistAppConfig(cfg *types.AppConfig) {
	if cfg == nil {
		return
	}
	CurrentConfig = *cfg
	if err := writeConfig(ConfigPath, CurrentConfig); err != nil {
		DefaultLogger.Warnf("Failed to persist config: %v", err)
	}
}
