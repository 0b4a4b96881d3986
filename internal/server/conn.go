package server

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/parley"
	"github.com/luciancaetano/parley/internal/protocol"
)

const writeWait = 10 * time.Second

// Conn is one accepted TCP connection. It implements hub.Session; the server
// owns it exclusively and destroys it on disconnect or fatal I/O error.
type Conn struct {
	id         string
	sock       net.Conn
	remoteAddr string
	server     *Server

	nameMu sync.RWMutex
	name   string

	// enc is the negotiated encoding, set exactly once. It is read by
	// Deliver from other connections' workers during broadcasts, hence
	// atomic rather than guarded by proc.
	enc atomic.Uint32

	// proc serializes decoding and dispatch for this connection: frames
	// from one connection may land on different workers, but only the
	// worker holding proc applies them.
	proc    sync.Mutex
	decoder *protocol.Decoder
	stream  []byte // undelivered bytes awaiting a complete frame; guarded by proc

	// inMu guards inbuf. The reader appends here before queueing a work
	// token, so within-connection byte order is fixed before any worker
	// can race for proc.
	inMu  sync.Mutex
	inbuf []byte

	writeMu sync.Mutex
	closed  atomic.Bool

	limiter *rate.Limiter
}

func newConn(sock net.Conn, s *Server) *Conn {
	var limiter *rate.Limiter
	if rl := s.cfg.RateLimit; rl != nil && rl.Enabled {
		limiter = rate.NewLimiter(rl.MessagesPerSecond, rl.Burst)
	}

	addr := sock.RemoteAddr().String()
	return &Conn{
		id:         uuid.New().String(),
		sock:       sock,
		remoteAddr: addr,
		server:     s,
		name:       addr,
		decoder:    protocol.NewDecoder(s.pinned),
		limiter:    limiter,
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer's "ip:port" address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Name returns the current display name, which defaults to the remote
// address until the client renames itself.
func (c *Conn) Name() string {
	c.nameMu.RLock()
	defer c.nameMu.RUnlock()
	return c.name
}

// Rename sets the display name and returns the previous one.
func (c *Conn) Rename(name string) string {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()
	old := c.name
	c.name = name
	return old
}

// IsAlive reports whether the connection has not been torn down.
func (c *Conn) IsAlive() bool { return !c.closed.Load() }

func (c *Conn) encoding() protocol.Encoding {
	return protocol.Encoding(c.enc.Load())
}

func (c *Conn) setEncoding(enc protocol.Encoding) {
	c.enc.CompareAndSwap(uint32(protocol.EncodingUnset), uint32(enc))
}

// feed appends freshly read bytes to the receive buffer. Called only by the
// connection's reader, before the work token is queued.
func (c *Conn) feed(data []byte) {
	c.inMu.Lock()
	c.inbuf = append(c.inbuf, data...)
	c.inMu.Unlock()
}

// takeInput removes and returns everything the reader has buffered so far.
func (c *Conn) takeInput() []byte {
	c.inMu.Lock()
	data := c.inbuf
	c.inbuf = nil
	c.inMu.Unlock()
	return data
}

// allow reports whether the connection is within its frame rate budget.
func (c *Conn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Deliver encodes ev in the connection's negotiated format, frames it, and
// writes it synchronously with a write deadline. Binary events go out as two
// separate writes (envelope, then payload). A connection whose format is
// still unset is addressed in Text; the only event that can reach it is the
// detection-failure notice.
//
// An event that cannot be encoded (an oversized chat fattened past the frame
// bound, say) is dropped with a nil return: a Deliver error means the
// recipient's socket is dead and gets the recipient evicted, which an encode
// failure must never cause.
func (c *Conn) Deliver(ev protocol.Event) error {
	if c.closed.Load() {
		return errors.New(parley.ErrConnectionClosed)
	}

	enc := c.encoding()
	if enc == protocol.EncodingUnset {
		enc = protocol.EncodingText
	}

	frames, err := protocol.EncodeEvent(enc, ev)
	if err != nil {
		c.server.log.Warn(parley.ErrFailedToEncode, "clientId", c.id, "error", err)
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, frame := range frames {
		c.sock.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := c.sock.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

// Evict runs the server's full teardown for this connection. Idempotent.
func (c *Conn) Evict() {
	c.server.teardown(c)
}
