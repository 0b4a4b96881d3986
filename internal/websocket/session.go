package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/parley"
	"github.com/luciancaetano/parley/internal/protocol"
)

// session is one WebSocket participant; it implements hub.Session. Its
// decoder is touched only by the session's read pump.
type session struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	gateway    *Gateway

	nameMu sync.RWMutex
	name   string

	enc     atomic.Uint32
	decoder *protocol.Decoder

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}

	limiter *rate.Limiter
}

func newSession(conn *websocket.Conn, remoteAddr string, g *Gateway) *session {
	var limiter *rate.Limiter
	if rl := g.rateLimit; rl != nil && rl.Enabled {
		limiter = rate.NewLimiter(rl.MessagesPerSecond, rl.Burst)
	}

	return &session{
		id:         uuid.New().String(),
		conn:       conn,
		remoteAddr: remoteAddr,
		gateway:    g,
		name:       remoteAddr,
		decoder:    protocol.NewDecoder(g.pinned),
		done:       make(chan struct{}),
		limiter:    limiter,
	}
}

// ID returns the session's unique identifier.
func (s *session) ID() string { return s.id }

// RemoteAddr returns the peer's address.
func (s *session) RemoteAddr() string { return s.remoteAddr }

// Name returns the current display name.
func (s *session) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.name
}

// Rename sets the display name and returns the previous one.
func (s *session) Rename(name string) string {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	old := s.name
	s.name = name
	return old
}

// IsAlive reports whether the session has not been torn down.
func (s *session) IsAlive() bool { return !s.closed.Load() }

func (s *session) encoding() protocol.Encoding {
	return protocol.Encoding(s.enc.Load())
}

func (s *session) setEncoding(enc protocol.Encoding) {
	s.enc.CompareAndSwap(uint32(protocol.EncodingUnset), uint32(enc))
}

func (s *session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Deliver encodes ev in the session's negotiated format and writes it: one
// text message for Text, two binary messages (envelope, payload) for Binary.
//
// An event that cannot be encoded is dropped with a nil return; a Deliver
// error means a dead peer and gets the session evicted, which an encode
// failure must never cause.
func (s *session) Deliver(ev protocol.Event) error {
	if s.closed.Load() {
		return errors.New(parley.ErrConnectionClosed)
	}

	enc := s.encoding()
	if enc == protocol.EncodingUnset {
		enc = protocol.EncodingText
	}

	switch enc {
	case protocol.EncodingText:
		payload, err := protocol.EncodeText(ev)
		if err != nil {
			s.gateway.log.Warn(parley.ErrFailedToEncode, "clientId", s.id, "error", err)
			return nil
		}
		return s.write(websocket.TextMessage, payload)

	default:
		envelope, payload, err := protocol.EncodeBinaryEvent(ev)
		if err != nil {
			s.gateway.log.Warn(parley.ErrFailedToEncode, "clientId", s.id, "error", err)
			return nil
		}
		if err := s.write(websocket.BinaryMessage, envelope); err != nil {
			return err
		}
		return s.write(websocket.BinaryMessage, payload)
	}
}

func (s *session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// Evict runs the gateway's full teardown for this session. Idempotent.
func (s *session) Evict() {
	s.gateway.teardown(s)
}

func (s *session) closeWithCode(code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage, message, deadline)
	s.writeMu.Unlock()
}

// pinger keeps the connection alive: the read deadline is refreshed by the
// peer's pongs.
func (s *session) pinger() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
