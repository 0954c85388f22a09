package config

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of environment variables read by Load
const EnvPrefix = "POOLSERVER"

// DefaultPoolSize is the number of workers when none is configured
const DefaultPoolSize = 4

// ErrInvalidConfig is wrapped by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all server configuration.
type Config struct {
	Host     string `config:"host"`
	Port     int    `config:"port"`
	PoolSize int    `config:"pool.size"`

	ReadTimeout  time.Duration `config:"read.timeout"`
	WriteTimeout time.Duration `config:"write.timeout"`
	IdleTimeout  time.Duration `config:"idle.timeout"`

	MaxHeaderBytes int   `config:"max.header.bytes"`
	MaxBodyBytes   int64 `config:"max.body.bytes"`

	// MaxConnections caps accepted connections that are queued or being
	// served; 0 means no limit
	MaxConnections int `config:"max.connections"`

	// KeepAlive lets a worker serve several requests on one connection
	KeepAlive bool `config:"keep.alive"`

	// Runtime tuning applied by the app at startup; 0 keeps the Go default
	GCPercent   int   `config:"gc.percent"`
	MemoryLimit int64 `config:"memory.limit"`

	Env string `config:"env"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Port:           8080,
		PoolSize:       DefaultPoolSize,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    5 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   10 << 20,
		Env:            "development",
	}
}

// Load starts from Default, applies the JSON file at path (if not empty)
// and then POOLSERVER_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	m := NewManager()
	if path != "" {
		if err := m.LoadFromJSON(path); err != nil {
			return cfg, err
		}
	}
	m.LoadFromEnv(EnvPrefix)

	if err := m.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration can start a server
func (c Config) Validate() error {
	if c.PoolSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "pool size must be positive, got %d", c.PoolSize)
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "port %d out of range", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "timeouts must not be negative")
	}
	if c.MaxHeaderBytes < 0 || c.MaxBodyBytes < 0 || c.MaxConnections < 0 {
		return errors.Wrap(ErrInvalidConfig, "limits must not be negative")
	}
	if c.GCPercent < 0 || c.MemoryLimit < 0 {
		return errors.Wrap(ErrInvalidConfig, "runtime tuning must not be negative")
	}
	return nil
}

// Addr returns the listen address
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
