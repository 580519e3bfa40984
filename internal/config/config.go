// Package config loads and validates the agent's TOML configuration file,
// matching the external surface spec.md §6 names. Grounded on the
// teacher's own internal/config package, which loads gastown's town/crew
// configuration the same way: github.com/BurntSushi/toml into a plain
// struct, followed by an explicit Validate pass.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mtconnect-org/agent/internal/adapter"
)

// AdapterConfig is one `[[adapters]]` TOML table entry.
type AdapterConfig struct {
	Name                string   `toml:"name"`
	Host                string   `toml:"host"`
	Port                int      `toml:"port"`
	Device              string   `toml:"device"`
	PreserveUUID        bool     `toml:"preserve_uuid"`
	FilterDuplicates    bool     `toml:"filter_duplicates"`
	AutoAvailable       bool     `toml:"auto_available"`
	IgnoreTimestamps    bool     `toml:"ignore_timestamps"`
	ConversionRequired  bool     `toml:"conversion_required"`
	RelativeTime        bool     `toml:"relative_time"`
	UpcaseDataItemValue bool     `toml:"upcase_data_item_value"`
	AdditionalDevices   []string `toml:"additional_devices"`
}

// Config is the full agent configuration surface (spec.md §6).
type Config struct {
	Port                int             `toml:"port"`
	ServerIP            string          `toml:"server_ip"`
	BufferSize          uint            `toml:"buffer_size"` // exponent: capacity = 2^BufferSize
	MaxAssets           int             `toml:"max_assets"`
	CheckpointFrequency uint64          `toml:"checkpoint_frequency"`
	LegacyTimeoutSec    int             `toml:"legacy_timeout"`
	ReconnectIntervalMs int             `toml:"reconnect_interval_ms"`
	AllowPut            bool            `toml:"allow_put"`
	AllowPutFrom        []string        `toml:"allow_put_from"`
	Adapters            []AdapterConfig `toml:"adapters"`
}

// Load parses a TOML file at path into a Config with defaults applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a Config with spec.md §4.5's documented defaults.
func Default() *Config {
	return &Config{
		Port:                5000,
		ServerIP:            "0.0.0.0",
		BufferSize:          17, // 2^17 = 131072, cppagent's historical default
		MaxAssets:           1024,
		CheckpointFrequency: 1000,
		LegacyTimeoutSec:    int(adapter.DefaultLegacyTimeout / time.Second),
		ReconnectIntervalMs: int(adapter.DefaultReconnectInterval / time.Millisecond),
	}
}

// Validate checks the configuration against the documented ranges and
// invariants; a fatal model-load/config error per spec.md §7 rule 6.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.ServerIP != "" {
		if ip := net.ParseIP(c.ServerIP); ip == nil && c.ServerIP != "0.0.0.0" {
			return fmt.Errorf("config: server_ip %q is not a valid address", c.ServerIP)
		}
	}
	if c.BufferSize == 0 || c.BufferSize > 32 {
		return fmt.Errorf("config: buffer_size %d out of range (1..32)", c.BufferSize)
	}
	if c.MaxAssets <= 0 {
		return fmt.Errorf("config: max_assets must be positive")
	}
	if c.CheckpointFrequency == 0 {
		return fmt.Errorf("config: checkpoint_frequency must be positive")
	}
	if len(c.Adapters) == 0 {
		return fmt.Errorf("config: at least one adapter must be configured")
	}
	seen := make(map[string]bool)
	for _, a := range c.Adapters {
		if a.Name == "" {
			return fmt.Errorf("config: adapter missing name")
		}
		if seen[a.Name] {
			return fmt.Errorf("config: duplicate adapter name %q", a.Name)
		}
		seen[a.Name] = true
		if a.Host == "" {
			return fmt.Errorf("config: adapter %q missing host", a.Name)
		}
		if a.Port <= 0 || a.Port > 65535 {
			return fmt.Errorf("config: adapter %q port %d out of range", a.Name, a.Port)
		}
		if a.Device == "" {
			return fmt.Errorf("config: adapter %q missing device", a.Name)
		}
	}
	return nil
}

// BufferCapacity returns 2^BufferSize.
func (c *Config) BufferCapacity() uint64 {
	return uint64(1) << c.BufferSize
}

// LegacyTimeout and ReconnectInterval convert the TOML millisecond/second
// fields into time.Duration for internal/adapter.
func (c *Config) LegacyTimeout() time.Duration {
	return time.Duration(c.LegacyTimeoutSec) * time.Second
}

func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMs) * time.Millisecond
}

// ToAdapterConfig builds an internal/adapter.Config from one TOML entry,
// applying the agent-wide reconnect/legacy-timeout defaults.
func (c *Config) ToAdapterConfig(a AdapterConfig) adapter.Config {
	return adapter.Config{
		Name:                a.Name,
		Host:                a.Host,
		Port:                a.Port,
		Device:              a.Device,
		PreserveUUID:        a.PreserveUUID,
		FilterDuplicates:    a.FilterDuplicates,
		AutoAvailable:       a.AutoAvailable,
		IgnoreTimestamps:    a.IgnoreTimestamps,
		ConversionRequired:  a.ConversionRequired,
		RelativeTime:        a.RelativeTime,
		UpcaseDataItemValue: a.UpcaseDataItemValue,
		AdditionalDevices:   a.AdditionalDevices,
		ReconnectInterval:   c.ReconnectInterval(),
		LegacyTimeout:       c.LegacyTimeout(),
	}
}
