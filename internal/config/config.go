// Package config loads the TOML configuration shared by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/peder1981/p2p-presence/internal/storage"
)

// Transport kinds.
const (
	TransportMulticast = "multicast"
	TransportMemory    = "memory"
)

// Config holds the application configuration loaded from TOML.
type Config struct {
	Presence  PresenceConfig  `toml:"presence"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
	MDNS      MDNSConfig      `toml:"mdns"`
}

// PresenceConfig selects the channel and the liveness timing.
type PresenceConfig struct {
	Channel        string `toml:"channel"`
	RegistrationID string `toml:"registrationId"`
	// Durations are written as strings, e.g. "5s".
	HeartbeatInterval time.Duration `toml:"heartbeatInterval"`
	StaleAfter        time.Duration `toml:"staleAfter"`
}

// TransportConfig selects the broadcast medium.
type TransportConfig struct {
	Kind string `toml:"kind"`
	// Group is the multicast group address, host:port.
	Group string `toml:"group"`
	// Interface pins multicast to one network interface by name.
	Interface string `toml:"interface"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// MDNSConfig controls advertising the running instance over mDNS.
type MDNSConfig struct {
	Enabled  bool   `toml:"enabled"`
	Instance string `toml:"instance"`
}

// NewDefaultConfig returns a Config populated with default values.
func NewDefaultConfig() Config {
	return Config{
		Presence: PresenceConfig{
			Channel:           "lobby",
			HeartbeatInterval: 5 * time.Second,
			StaleAfter:        15 * time.Second,
		},
		Transport: TransportConfig{
			Kind:  TransportMulticast,
			Group: "239.255.77.77:7777",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{},
		MDNS: MDNSConfig{
			Enabled: false,
		},
	}
}

// DefaultConfigPath returns the XDG default path for the config file.
func DefaultConfigPath() (string, error) {
	return storage.ConfigFile("config.toml")
}

// Load reads the configuration from the given path (TOML).
// If path is empty, it uses the XDG default. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	if info, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	} else if info.IsDir() {
		return &cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error
	if c.Presence.Channel == "" {
		errs = append(errs, errors.New("presence.channel is required"))
	}
	if c.Presence.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("presence.heartbeatInterval must be positive"))
	}
	if c.Presence.StaleAfter <= c.Presence.HeartbeatInterval {
		errs = append(errs, errors.New("presence.staleAfter must exceed presence.heartbeatInterval"))
	}
	switch c.Transport.Kind {
	case TransportMulticast:
		if c.Transport.Group == "" {
			errs = append(errs, errors.New("transport.group is required for multicast"))
		}
	case TransportMemory:
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q is not one of %q, %q",
			c.Transport.Kind, TransportMulticast, TransportMemory))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
