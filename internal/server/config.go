// Package server implements the TCP side of parley: the listener, the
// per-connection reader goroutines, the dispatch queue, and the worker pool
// that decodes frames and routes commands into the hub.
package server

import (
	"net"
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines per-connection frame rate limiting.
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames a connection may send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration:
// 100 frames per second with burst of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Config holds the immutable startup configuration. It is read once at Start;
// changing it afterwards has no effect.
type Config struct {
	// Addr is the interface to listen on.
	Addr string
	// Port is the TCP port to listen on; 0 picks a free port.
	Port int
	// Workers is the size of the worker pool draining the dispatch queue.
	Workers int
	// Format pins every connection to one wire format: "json", "binary",
	// or "" for per-connection auto-detection.
	Format string
	// QueueSize is the dispatch queue capacity.
	QueueSize int
	// WSAddr, when non-empty, enables the WebSocket gateway on that
	// address (e.g. ":8080").
	WSAddr string
	// RateLimit configures per-connection rate limiting. Nil means
	// DefaultRateLimitConfig.
	RateLimit *RateLimitConfig
}

// NewConfig returns a Config populated with defaults: 127.0.0.1:10125,
// 4 workers, auto-detected format, no WebSocket gateway.
func NewConfig() *Config {
	return &Config{
		Addr:      "127.0.0.1",
		Port:      10125,
		Workers:   4,
		QueueSize: 256,
		RateLimit: DefaultRateLimitConfig(),
	}
}

// NewConfigFromEnv builds a Config from environment variables, falling back
// to defaults for anything unset:
//
//	PARLEY_ADDR     listen interface
//	PARLEY_PORT     listen port
//	PARLEY_WORKERS  worker pool size
//	PARLEY_FORMAT   pinned wire format ("json" or "binary")
//	PARLEY_WS_ADDR  WebSocket gateway address
func NewConfigFromEnv() *Config {
	cfg := NewConfig()

	if addr := os.Getenv("PARLEY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if port := os.Getenv("PARLEY_PORT"); port != "" {
		cfg.Port = parseIntValue(port, cfg.Port)
	}
	if workers := os.Getenv("PARLEY_WORKERS"); workers != "" {
		cfg.Workers = parseIntValue(workers, cfg.Workers)
	}
	if format := os.Getenv("PARLEY_FORMAT"); format != "" {
		cfg.Format = format
	}
	if wsAddr := os.Getenv("PARLEY_WS_ADDR"); wsAddr != "" {
		cfg.WSAddr = wsAddr
	}

	return cfg
}

// sanitize fills zero values with defaults so a partially populated Config is
// still usable.
func (c *Config) sanitize() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RateLimit == nil {
		c.RateLimit = DefaultRateLimitConfig()
	}
}

func (c *Config) listenAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}
