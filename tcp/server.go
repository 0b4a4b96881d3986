// Package tcp is the public entry point for running a parley chat server: it
// composes the hub, the dispatch table, the TCP listener, and the optional
// WebSocket gateway behind the parley.ChatServer interface.
package tcp

import (
	"context"
	"log/slog"

	"github.com/luciancaetano/parley"
	"github.com/luciancaetano/parley/internal/hub"
	"github.com/luciancaetano/parley/internal/server"
	"github.com/luciancaetano/parley/internal/websocket"
)

// Config holds the immutable startup configuration; see the field docs in
// the internal server package.
type Config = server.Config

// RateLimitConfig defines per-connection frame rate limiting.
type RateLimitConfig = server.RateLimitConfig

// NewConfig returns a Config populated with defaults (127.0.0.1:10125,
// 4 workers, auto-detected wire format).
func NewConfig() *Config {
	return server.NewConfig()
}

// NewConfigFromEnv builds a Config from PARLEY_* environment variables,
// falling back to defaults.
func NewConfigFromEnv() *Config {
	return server.NewConfigFromEnv()
}

// DefaultRateLimitConfig returns the default rate limit configuration
// (100 frames/second, burst 200).
func DefaultRateLimitConfig() *RateLimitConfig {
	return server.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return server.NoRateLimit()
}

// New creates a chat server for the given configuration, logging through
// log. A nil log uses slog.Default(). The server owns one room registry
// shared by the TCP listener and, when cfg.WSAddr is set, the WebSocket
// gateway; a CSShutdown command on either transport stops both.
func New(cfg *Config, log *slog.Logger) parley.ChatServer {
	if log == nil {
		log = slog.Default()
	}

	cs := &chatServer{cfg: cfg, log: log}

	h := hub.New(log)
	d := hub.NewDispatcher(h, log, func() {
		// Called from a worker; Stop waits for workers, so detach.
		go cs.Stop(context.Background())
	})

	cs.core = server.New(cfg, h, d, log)
	if cfg.WSAddr != "" {
		cs.gateway = websocket.NewGateway(cfg, h, d, log)
	}
	return cs
}

type chatServer struct {
	cfg     *Config
	log     *slog.Logger
	core    *server.Server
	gateway *websocket.Gateway
}

// Start brings up the TCP listener and, if configured, the WebSocket
// gateway. If the gateway fails to bind, the TCP listener is shut down
// again and the error is returned.
func (cs *chatServer) Start(ctx context.Context) error {
	if err := cs.core.Start(ctx); err != nil {
		return err
	}

	if cs.gateway != nil {
		if err := cs.gateway.Start(ctx, cs.cfg.Format); err != nil {
			cs.core.Stop(ctx)
			return err
		}
	}
	return nil
}

// Stop shuts both listeners down and drains the pipeline. Idempotent.
func (cs *chatServer) Stop(ctx context.Context) error {
	var firstErr error
	if cs.gateway != nil {
		if err := cs.gateway.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if err := cs.core.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Addr returns the bound TCP listener address.
func (cs *chatServer) Addr() string {
	return cs.core.Addr()
}
