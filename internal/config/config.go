package config

// Configuration loading and validation for bacscan

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/tturner/bacscan/internal/bacclient"
	"github.com/tturner/bacscan/internal/errors"
)

// NetworkConfig holds the BACnet/IP datalink settings.
type NetworkConfig struct {
	Port      int    `yaml:"port"`
	Interface string `yaml:"interface,omitempty"`

	// BBMD settings for running as a foreign device on a routed
	// network. Discovery stays on the local broadcast domain when
	// bbmd_address is empty.
	BBMDAddress    string `yaml:"bbmd_address,omitempty"`
	BBMDPort       int    `yaml:"bbmd_port,omitempty"`
	BBMDTTLSeconds int    `yaml:"bbmd_ttl_seconds,omitempty"`
}

// DiscoveryConfig holds the Who-Is session settings.
type DiscoveryConfig struct {
	DeviceIDMin   uint32 `yaml:"device_id_min"`
	DeviceIDMax   uint32 `yaml:"device_id_max"`
	APDUTimeoutMs int    `yaml:"apdu_timeout_ms"`
	IdleTimeoutMs int    `yaml:"idle_timeout_ms"`
	CacheCapacity int    `yaml:"cache_capacity"`
}

// Config represents the client configuration.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// CreateDefaultConfig creates a default client configuration.
func CreateDefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Port:           bacclient.DefaultUDPPort,
			BBMDPort:       bacclient.DefaultUDPPort,
			BBMDTTLSeconds: 60000,
		},
		Discovery: DiscoveryConfig{
			DeviceIDMin:   0,
			DeviceIDMax:   bacclient.MaxInstance,
			APDUTimeoutMs: 3000,
			IdleTimeoutMs: 100,
			CacheCapacity: bacclient.DefaultCacheCapacity,
		},
	}
}

// WriteDefaultConfig writes a default configuration to a file.
func WriteDefaultConfig(path string) error {
	cfg := CreateDefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig loads a configuration from a YAML file.
// If the file doesn't exist and autoCreate is true, it will create a
// default config file.
func LoadConfig(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if autoCreate {
				if err := WriteDefaultConfig(path); err != nil {
					return nil, fmt.Errorf("create default config: %w", err)
				}
				data, err = os.ReadFile(path)
				if err != nil {
					return nil, errors.WrapConfigError(
						fmt.Errorf("read created config file: %w", err),
						path,
					)
				}
			} else {
				return nil, errors.WrapConfigError(
					fmt.Errorf("config file not found: %s", path),
					path,
				)
			}
		} else {
			return nil, errors.WrapConfigError(
				fmt.Errorf("read config file: %w", err),
				path,
			)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills unset fields with the standard values. A zero
// device_id_max means the full instance range, not an empty one.
func applyDefaults(cfg *Config) {
	if cfg.Network.Port == 0 {
		cfg.Network.Port = bacclient.DefaultUDPPort
	}
	if cfg.Network.BBMDPort == 0 {
		cfg.Network.BBMDPort = bacclient.DefaultUDPPort
	}
	if cfg.Network.BBMDTTLSeconds == 0 {
		cfg.Network.BBMDTTLSeconds = 60000
	}
	if cfg.Discovery.DeviceIDMax == 0 {
		cfg.Discovery.DeviceIDMax = bacclient.MaxInstance
	}
	if cfg.Discovery.APDUTimeoutMs == 0 {
		cfg.Discovery.APDUTimeoutMs = 3000
	}
	if cfg.Discovery.IdleTimeoutMs == 0 {
		cfg.Discovery.IdleTimeoutMs = 100
	}
	if cfg.Discovery.CacheCapacity == 0 {
		cfg.Discovery.CacheCapacity = bacclient.DefaultCacheCapacity
	}
}

// Environment variables recognized by ApplyEnvOverrides. These mirror
// the tuning knobs BACnet tooling conventionally reads from the
// environment, so the scanner drops into existing deployments.
const (
	EnvPort        = "BACNET_IP_PORT"
	EnvInterface   = "BACNET_IFACE"
	EnvAPDUTimeout = "BACNET_APDU_TIMEOUT"
	EnvBBMDAddress = "BACNET_BBMD_ADDRESS"
	EnvBBMDPort    = "BACNET_BBMD_PORT"
	EnvBBMDTTL     = "BACNET_BBMD_TIMETOLIVE"
)

// ApplyEnvOverrides applies environment variable overrides on top of
// the loaded configuration and returns the names of the variables that
// took effect. Numeric values accept decimal or 0x-prefixed hex.
// Malformed or out-of-range values fall back rather than fail: an
// oversized BBMD port means the standard port, an oversized TTL is
// clamped to the 16-bit maximum.
func ApplyEnvOverrides(cfg *Config) []string {
	var applied []string

	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.ParseInt(v, 0, 32); err == nil && port > 0 && port <= 0xFFFF {
			cfg.Network.Port = int(port)
			applied = append(applied, EnvPort)
		}
	}
	if v := os.Getenv(EnvInterface); v != "" {
		cfg.Network.Interface = v
		applied = append(applied, EnvInterface)
	}
	if v := os.Getenv(EnvAPDUTimeout); v != "" {
		if ms, err := strconv.ParseInt(v, 0, 32); err == nil && ms > 0 {
			cfg.Discovery.APDUTimeoutMs = int(ms)
			applied = append(applied, EnvAPDUTimeout)
		}
	}
	if v := os.Getenv(EnvBBMDAddress); v != "" {
		cfg.Network.BBMDAddress = v
		applied = append(applied, EnvBBMDAddress)
	}
	if v := os.Getenv(EnvBBMDPort); v != "" {
		if port, err := strconv.ParseInt(v, 0, 32); err == nil && port > 0 {
			if port > 0xFFFF {
				port = bacclient.DefaultUDPPort
			}
			cfg.Network.BBMDPort = int(port)
			applied = append(applied, EnvBBMDPort)
		}
	}
	if v := os.Getenv(EnvBBMDTTL); v != "" {
		if ttl, err := strconv.ParseInt(v, 0, 32); err == nil && ttl > 0 {
			if ttl > 0xFFFF {
				ttl = 0xFFFF
			}
			cfg.Network.BBMDTTLSeconds = int(ttl)
			applied = append(applied, EnvBBMDTTL)
		}
	}

	return applied
}

// ValidateConfig validates a client configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.Network.Port <= 0 || cfg.Network.Port > 0xFFFF {
		return fmt.Errorf("network.port must be between 1 and 65535, got %d", cfg.Network.Port)
	}
	if cfg.Network.BBMDPort <= 0 || cfg.Network.BBMDPort > 0xFFFF {
		return fmt.Errorf("network.bbmd_port must be between 1 and 65535, got %d", cfg.Network.BBMDPort)
	}
	if cfg.Network.BBMDTTLSeconds < 0 || cfg.Network.BBMDTTLSeconds > 0xFFFF {
		return fmt.Errorf("network.bbmd_ttl_seconds must be between 0 and 65535, got %d", cfg.Network.BBMDTTLSeconds)
	}
	if cfg.Discovery.DeviceIDMin > cfg.Discovery.DeviceIDMax {
		return fmt.Errorf("discovery.device_id_min %d exceeds device_id_max %d",
			cfg.Discovery.DeviceIDMin, cfg.Discovery.DeviceIDMax)
	}
	if cfg.Discovery.DeviceIDMax > bacclient.MaxInstance {
		return fmt.Errorf("discovery.device_id_max must be at most %d, got %d",
			bacclient.MaxInstance, cfg.Discovery.DeviceIDMax)
	}
	if cfg.Discovery.APDUTimeoutMs < 0 {
		return fmt.Errorf("discovery.apdu_timeout_ms must be >= 0")
	}
	if cfg.Discovery.IdleTimeoutMs <= 0 {
		return fmt.Errorf("discovery.idle_timeout_ms must be > 0")
	}
	if cfg.Discovery.CacheCapacity <= 0 {
		return fmt.Errorf("discovery.cache_capacity must be > 0")
	}
	return nil
}
