package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fogtrack/internal/clients/wireless"
	"fogtrack/internal/lib/filter"
	"fogtrack/internal/lib/sharing"
)

// Config represents the complete server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracking TrackingConfig `yaml:"tracking"`
	Sharing  SharingConfig  `yaml:"sharing"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// TrackingConfig holds the fix-processing pipeline settings
type TrackingConfig struct {
	// DiscRadiusMiles is the radius revealed around each accepted fix.
	DiscRadiusMiles float64 `yaml:"disc_radius_miles"`
	// DiscSteps is the vertex count of the disc polygon approximation.
	DiscSteps int `yaml:"disc_steps"`
	// MinDistanceMiles is the live significance threshold.
	MinDistanceMiles float64 `yaml:"min_distance_miles"`
	// ManualMinDistanceMiles is the tighter threshold for manual offsets.
	ManualMinDistanceMiles float64 `yaml:"manual_min_distance_miles"`
	// FilterStrategy selects "last_point" or "neighborhood".
	FilterStrategy string `yaml:"filter_strategy"`
}

// PeerConfig names a known exchange peer for transports without radio
// discovery (websocket peers are configured, not scanned).
type PeerConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SharingConfig holds peer-exchange settings
type SharingConfig struct {
	ChunkSize       int           `yaml:"chunk_size"`
	WriteDelay      time.Duration `yaml:"write_delay"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	// MTUHint is requested from the link on connect; transports that can
	// carry larger frames honor it and chunk sizing follows the result.
	MTUHint    int          `yaml:"mtu_hint"`
	KnownPeers []PeerConfig `yaml:"known_peers"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Path: "fogtrack.db",
		},
		Tracking: TrackingConfig{
			DiscRadiusMiles:        0.1,
			DiscSteps:              18,
			MinDistanceMiles:       filter.DefaultMinDistanceMiles,
			ManualMinDistanceMiles: filter.ManualMinDistanceMiles,
			FilterStrategy:         "last_point",
		},
		Sharing: SharingConfig{
			ChunkSize:       sharing.DefaultChunkSize,
			WriteDelay:      sharing.DefaultWriteDelay,
			PollInterval:    sharing.DefaultPollInterval,
			MaxPollAttempts: sharing.DefaultMaxPollAttempts,
			ConnectTimeout:  10 * time.Second,
			MTUHint:         wireless.DefaultMTU,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tracking.DiscRadiusMiles <= 0 {
		return fmt.Errorf("tracking.disc_radius_miles must be positive")
	}
	if c.Tracking.MinDistanceMiles <= 0 {
		return fmt.Errorf("tracking.min_distance_miles must be positive")
	}
	switch c.Tracking.FilterStrategy {
	case "last_point", "neighborhood":
	default:
		return fmt.Errorf("tracking.filter_strategy must be last_point or neighborhood, got %q", c.Tracking.FilterStrategy)
	}
	return nil
}

// SharingOptions maps config onto the transfer protocol options.
func (c *Config) SharingOptions() sharing.Options {
	return sharing.Options{
		ChunkSize:       c.Sharing.ChunkSize,
		WriteDelay:      c.Sharing.WriteDelay,
		PollInterval:    c.Sharing.PollInterval,
		MaxPollAttempts: c.Sharing.MaxPollAttempts,
	}
}

// NewFilter constructs the configured significance filter.
func (c *TrackingConfig) NewFilter() filter.Filter {
	if c.FilterStrategy == "neighborhood" {
		return filter.NewNeighborhoodFilter(c.MinDistanceMiles)
	}
	return filter.NewLastPointFilter(c.MinDistanceMiles)
}
