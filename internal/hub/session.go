// Package hub owns the shared chat state: the room table, the membership map,
// the broadcast engine, and the command dispatch table. It is transport
// agnostic; the TCP server and the WebSocket gateway both feed it through the
// Session interface.
package hub

import (
	"github.com/luciancaetano/parley/internal/protocol"
)

// Session is one connected participant. Implementations are owned by their
// transport; the hub only ever holds them in member lists and pushes events
// through Deliver.
type Session interface {
	// ID returns the connection's unique identifier.
	ID() string

	// Name returns the current display name.
	Name() string

	// Rename sets the display name and returns the previous one.
	Rename(name string) (old string)

	// Deliver encodes ev in the session's negotiated format and writes it
	// synchronously. A non-nil error means the connection is unusable.
	Deliver(ev protocol.Event) error

	// Evict runs the transport's full teardown: deregistration, room
	// cleanup (via Hub.Drop), and socket close. It must be idempotent and
	// must not be called with the hub's lock held.
	Evict()
}
