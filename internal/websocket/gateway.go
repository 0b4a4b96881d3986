// Package websocket is the optional WebSocket ingress: browser clients speak
// the same two wire formats through the same hub, with the WebSocket
// transport supplying the message delimiting that the 2-byte length prefix
// supplies on TCP. One WebSocket message carries exactly one frame payload.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/parley"
	"github.com/luciancaetano/parley/internal/hub"
	"github.com/luciancaetano/parley/internal/protocol"
	"github.com/luciancaetano/parley/internal/server"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// A frame payload can never exceed the 2-byte length bound of the TCP
	// transport, so clamp WebSocket messages to the same limit.
	maxMessageSize = protocol.MaxFramePayload
)

// Gateway accepts WebSocket connections on its own address and feeds each
// message through the shared detection, decoding, and dispatch pipeline.
type Gateway struct {
	addr       string
	log        *slog.Logger
	hub        *hub.Hub
	dispatcher *hub.Dispatcher
	pinned     protocol.Encoding
	rateLimit  *server.RateLimitConfig

	mu         sync.Mutex
	running    bool
	httpServer *http.Server
	upgrader   websocket.Upgrader

	sessions sync.Map // id -> *session
}

// NewGateway creates a Gateway sharing the server's hub, dispatcher, pinned
// format, and rate limit settings. Nothing listens until Start.
func NewGateway(cfg *server.Config, h *hub.Hub, d *hub.Dispatcher, log *slog.Logger) *Gateway {
	return &Gateway{
		addr:       cfg.WSAddr,
		log:        log,
		hub:        h,
		dispatcher: d,
		rateLimit:  cfg.RateLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start begins serving the /ws endpoint. It returns once the listener is
// up, or the bind error if the address is unusable.
func (g *Gateway) Start(ctx context.Context, format string) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return errors.New(parley.ErrServerAlreadyRunning)
	}

	pinned, err := protocol.ParseEncoding(format)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	g.pinned = pinned

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleUpgrade)
	g.httpServer = &http.Server{Addr: g.addr, Handler: mux}
	g.running = true
	g.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Surface immediate bind errors before declaring the gateway up.
	select {
	case err := <-errChan:
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
		return err
	case <-time.After(100 * time.Millisecond):
		g.log.Info("websocket gateway listening", "addr", g.addr, "format", g.pinned.String())
		return nil
	}
}

// Stop tears down every session and shuts the HTTP listener down.
// Stopping a stopped gateway is a no-op.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	g.mu.Unlock()

	g.sessions.Range(func(_, value any) bool {
		g.teardown(value.(*session))
		return true
	})

	return g.httpServer.Shutdown(ctx)
}

func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	s := newSession(conn, r.RemoteAddr, g)
	g.sessions.Store(s.id, s)
	g.log.Info("websocket client connected", "clientId", s.id, "remoteAddr", s.remoteAddr)

	go s.pinger()
	go g.readPump(s)
}

// readPump drives one session: each WebSocket message is one frame payload,
// run through the session's decoder and dispatched in arrival order. A
// single reader per session makes the per-connection serialization lock of
// the TCP path unnecessary here.
func (g *Gateway) readPump(s *session) {
	defer g.teardown(s)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.log.Warn("websocket read failed", "clientId", s.id, "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !s.allow() {
			g.log.Warn("rate limit exceeded", "clientId", s.id, "remoteAddr", s.remoteAddr)
			s.closeWithCode(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		if !g.applyFrame(s, frame) {
			return
		}
	}
}

// applyFrame mirrors the TCP worker's frame handling: recoverable decode
// errors notice the client, detection failure is fatal. It returns false
// when the session is finished.
func (g *Gateway) applyFrame(s *session, frame []byte) bool {
	cmd, err := s.decoder.Decode(frame)
	s.setEncoding(s.decoder.Encoding())

	switch {
	case errors.Is(err, protocol.ErrDetectFailed):
		g.log.Warn("format detection failed", "clientId", s.id, "remoteAddr", s.remoteAddr)
		if derr := s.Deliver(protocol.SystemNotice{Text: parley.ErrFormatDetection}); derr != nil {
			g.log.Debug("detection notice failed", "clientId", s.id, "error", derr)
		}
		return false

	case errors.Is(err, protocol.ErrUnknownKind):
		g.log.Warn("unknown command", "clientId", s.id, "error", err)
		g.notice(s, parley.ErrUnknownCommand)

	case err != nil:
		g.log.Warn("malformed frame", "clientId", s.id, "error", err)
		g.notice(s, parley.ErrInvalidMessageFormat)

	case cmd != nil:
		g.dispatcher.Dispatch(s, cmd)
	}
	return s.IsAlive()
}

func (g *Gateway) notice(s *session, text string) {
	if err := s.Deliver(protocol.SystemNotice{Text: text}); err != nil {
		g.teardown(s)
	}
}

// teardown removes the session from the gateway and its room and closes the
// connection. Idempotent.
func (g *Gateway) teardown(s *session) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	g.sessions.Delete(s.id)
	g.hub.Drop(s)
	close(s.done)
	s.conn.Close()
	g.log.Info("websocket client disconnected", "clientId", s.id, "remoteAddr", s.remoteAddr, "name", s.Name())
}
