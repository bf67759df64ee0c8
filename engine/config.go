package engine

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/vidmesh/mpfec/scheduler"
)

// PathConfig describes one statically configured remote endpoint.
type PathConfig struct {
	IP   string `toml:"ip"`
	Port int    `toml:"port"`
}

// Config is the engine's full startup configuration (spec.md §6). Width,
// height, fps and bitrate_kbps are passed through untouched for an
// external encoder and are not interpreted by the core.
type Config struct {
	Width           int          `toml:"width"`
	Height          int          `toml:"height"`
	FPS             int          `toml:"fps"`
	BitrateKbps     int          `toml:"bitrate_kbps"`
	PayloadSize     int          `toml:"payload_size"`
	K               uint16       `toml:"k"`
	R               uint16       `toml:"r"`
	JitterWindowMs  int          `toml:"jitter_window_ms"`
	FlushIntervalMs int          `toml:"flush_interval_ms"`
	Paths           []PathConfig `toml:"paths"`
	SchedulerStrategy string     `toml:"scheduler_strategy"`
	ReceiveQueueCapacity int     `toml:"receive_queue_capacity"`
	LogLevel        string       `toml:"log_level"`
}

// DefaultConfig returns the spec.md §6 defaults with an empty path set;
// callers must supply Paths before Validate succeeds.
func DefaultConfig() Config {
	return Config{
		PayloadSize:          1000,
		K:                    8,
		R:                    2,
		JitterWindowMs:       50,
		FlushIntervalMs:      25,
		SchedulerStrategy:    "adaptive",
		ReceiveQueueCapacity: 1024,
		LogLevel:             "info",
	}
}

// LoadConfig reads and parses a TOML configuration file, applying
// DefaultConfig for any field left unset, then validating the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: loading config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for the fatal-at-startup conditions
// spec.md §7's ConfigurationError covers.
func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrConfiguration, c.K)
	}
	if int(c.K)+int(c.R) > 256 {
		return fmt.Errorf("%w: k+r must be <= 256, got %d", ErrConfiguration, int(c.K)+int(c.R))
	}
	if c.PayloadSize <= 0 {
		return fmt.Errorf("%w: payload_size must be > 0, got %d", ErrConfiguration, c.PayloadSize)
	}
	if len(c.Paths) == 0 {
		return fmt.Errorf("%w: at least one path must be configured", ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(c.Paths))
	for _, p := range c.Paths {
		if p.IP == "" || p.Port <= 0 || p.Port > 65535 {
			return fmt.Errorf("%w: invalid path %s:%d", ErrConfiguration, p.IP, p.Port)
		}
		key := fmt.Sprintf("%s:%d", p.IP, p.Port)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate path %s", ErrConfiguration, key)
		}
		seen[key] = struct{}{}
	}
	if _, err := parseStrategy(c.SchedulerStrategy); err != nil {
		return err
	}
	if c.JitterWindowMs <= 0 {
		return fmt.Errorf("%w: jitter_window_ms must be > 0, got %d", ErrConfiguration, c.JitterWindowMs)
	}
	if c.FlushIntervalMs <= 0 {
		return fmt.Errorf("%w: flush_interval_ms must be > 0, got %d", ErrConfiguration, c.FlushIntervalMs)
	}
	return nil
}

func parseStrategy(s string) (scheduler.Strategy, error) {
	switch s {
	case "", "adaptive":
		return scheduler.Adaptive, nil
	case "round_robin":
		return scheduler.RoundRobin, nil
	case "weighted_round_robin":
		return scheduler.WeightedRoundRobin, nil
	case "lowest_rtt":
		return scheduler.LowestRTT, nil
	case "lowest_loss":
		return scheduler.LowestLoss, nil
	default:
		return 0, fmt.Errorf("%w: unknown scheduler_strategy %q", ErrConfiguration, s)
	}
}
