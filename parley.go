package parley

import "context"

// ChatServer is a running chat server instance: one TCP listener, an optional
// WebSocket gateway, a worker pool, and the shared room registry.
//
// All client messages are length-prefixed frames in either the Text (JSON) or
// Binary (envelope + payload) format; see the package documentation for the
// wire layout.
//
// Example usage:
//
//	import "github.com/luciancaetano/parley/tcp"
//
//	cfg := tcp.NewConfigFromEnv()
//	server := tcp.New(cfg, nil) // nil logs through slog.Default()
//
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop(context.Background())
type ChatServer interface {
	// Start binds the listener(s), launches the worker pool, and begins
	// accepting connections. It returns once the server is accepting, or an
	// error if the address cannot be bound or the server is already running.
	Start(ctx context.Context) error

	// Stop shuts the server down: the listeners close, every live connection
	// is torn down, queued-but-undispatched frames are dropped, and the
	// workers exit. Stop waits for the pipeline to drain until ctx expires.
	// Stopping an already-stopped server is a no-op.
	Stop(ctx context.Context) error

	// Addr returns the address the TCP listener is bound to, in "ip:port"
	// form. It is only valid after Start has returned successfully; this is
	// how callers discover the real port when configured with port 0.
	Addr() string
}

// Client represents one connected chat participant, regardless of transport.
//
// A client's display name defaults to its remote "ip:port" until it renames
// itself with CSName. The negotiated wire format is fixed on the client's
// first frame and never changes for the lifetime of the connection.
type Client interface {
	// ID returns a unique identifier for the connection, generated at accept
	// time and constant until teardown.
	ID() string

	// RemoteAddr returns the client's remote network address ("ip:port").
	RemoteAddr() string

	// Name returns the client's current display name.
	Name() string

	// IsAlive reports whether the connection has not yet been torn down.
	IsAlive() bool
}
