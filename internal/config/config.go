// Package config loads avstreamd's server configuration: built-in
// defaults, an optional YAML file, and environment variable overrides,
// via spf13/viper. Grounded on
// References/orion-prototipe/internal/config/config.go's Load+Validate
// shape, re-expressed against viper instead of a bare yaml.Unmarshal
// since the spec's settings are flat scalars well suited to viper's
// defaults/env/file layering. Config also carries gopkg.in/yaml.v3
// struct tags (the on-disk format orion-prototipe/internal/config/config.go
// itself uses) so Dump can write out the running configuration for an
// operator to save as a starting file, independent of viper's own
// load-side bookkeeping.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every setting named in the external interface: listen
// address/port, connection limits, socket buffer sizes and timeouts,
// heartbeat cadence, and worker pool size.
type Config struct {
	Port           int    `mapstructure:"port" yaml:"port"`
	ListenAddr     string `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	ListenBacklog  int    `mapstructure:"listen_backlog" yaml:"listen_backlog"`

	RecvBufferSize int `mapstructure:"recv_buffer_size" yaml:"recv_buffer_size"`
	SendBufferSize int `mapstructure:"send_buffer_size" yaml:"send_buffer_size"`

	RecvTimeoutMS int `mapstructure:"recv_timeout_ms" yaml:"recv_timeout_ms"`
	SendTimeoutMS int `mapstructure:"send_timeout_ms" yaml:"send_timeout_ms"`

	HeartbeatIntervalMS int `mapstructure:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int `mapstructure:"heartbeat_timeout_ms" yaml:"heartbeat_timeout_ms"`

	ThreadPoolSize int `mapstructure:"thread_pool_size" yaml:"thread_pool_size"`
}

// RecvTimeout returns RecvTimeoutMS as a time.Duration; 0 means no
// timeout.
func (c Config) RecvTimeout() time.Duration {
	return time.Duration(c.RecvTimeoutMS) * time.Millisecond
}

// SendTimeout returns SendTimeoutMS as a time.Duration; 0 means no
// timeout.
func (c Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

// HeartbeatInterval returns HeartbeatIntervalMS as a time.Duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

// HeartbeatTimeout returns HeartbeatTimeoutMS as a time.Duration.
func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMS) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8888)
	v.SetDefault("listen_addr", "0.0.0.0")
	v.SetDefault("max_connections", 100)
	v.SetDefault("listen_backlog", 128)
	v.SetDefault("recv_buffer_size", 64*1024)
	v.SetDefault("send_buffer_size", 64*1024)
	v.SetDefault("recv_timeout_ms", 0)
	v.SetDefault("send_timeout_ms", 0)
	v.SetDefault("heartbeat_interval_ms", 15_000)
	v.SetDefault("heartbeat_timeout_ms", 45_000)
	v.SetDefault("thread_pool_size", 8)
}

// Load builds a Config from, in increasing precedence: built-in defaults,
// a YAML file at path (if path is non-empty; a file that cannot be read is
// an error), and AVSTREAMD_-prefixed environment variables. An empty path
// is valid -- the server runs on defaults plus environment overrides alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("avstreamd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Dump renders cfg as YAML, in the same field names Load accepts from a
// config file, for the CLI's `config dump` command to print a starting
// point an operator can save and edit.
func Dump(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return out, nil
}

// Validate checks invariants the external interface relies on: a port in
// the valid TCP range, a non-empty listen address, positive buffer sizes
// and worker pool size, and non-negative connection limit and timeouts.
func Validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range [1, 65535]", cfg.Port)
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("max_connections must be >= 0")
	}
	if cfg.RecvBufferSize <= 0 {
		return fmt.Errorf("recv_buffer_size must be > 0")
	}
	if cfg.SendBufferSize <= 0 {
		return fmt.Errorf("send_buffer_size must be > 0")
	}
	if cfg.ThreadPoolSize <= 0 {
		return fmt.Errorf("thread_pool_size must be > 0")
	}
	if cfg.RecvTimeoutMS < 0 || cfg.SendTimeoutMS < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	return nil
}
