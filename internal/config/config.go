package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Name        string `toml:"name"`
	BindAddress string `toml:"bind_address"`
}

type NetworkConfig struct {
	TickRate          time.Duration `toml:"tick_rate"`
	CommandQueueSize  int           `toml:"command_queue_size"`
	OutboxSize        int           `toml:"outbox_size"`
	ConnectTimeout    time.Duration `toml:"connect_timeout"`
	ReadTimeout       time.Duration `toml:"read_timeout"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	MaxMessageSize    int64         `toml:"max_message_size"`
	CommandsPerSecond int           `toml:"commands_per_second"` // 0 = unlimited
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"

	// File enables a rolling log file when non-empty. Console output is
	// used otherwise.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration. Load layers the TOML file
// on top of these values, so a config file only needs the overrides.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "driftsync",
			BindAddress: "0.0.0.0:3000",
		},
		Network: NetworkConfig{
			TickRate:          50 * time.Millisecond,
			CommandQueueSize:  128,
			OutboxSize:        128,
			ConnectTimeout:    5 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Second,
			MaxMessageSize:    4096,
			CommandsPerSecond: 120,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}
