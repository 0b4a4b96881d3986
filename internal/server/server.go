package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/luciancaetano/parley"
	"github.com/luciancaetano/parley/internal/hub"
	"github.com/luciancaetano/parley/internal/protocol"
)

const readChunkSize = 4096

// Server accepts TCP connections and drives them through the frame pipeline:
// reader goroutines feed connection buffers and enqueue work tokens, the
// worker pool decodes complete frames and routes commands into the hub.
type Server struct {
	cfg        *Config
	log        *slog.Logger
	hub        *hub.Hub
	dispatcher *hub.Dispatcher
	pinned     protocol.Encoding

	mu       sync.Mutex
	running  bool
	listener net.Listener

	conns sync.Map // id -> *Conn
	queue chan *Conn
	quit  chan struct{}
	wg    sync.WaitGroup
}

// New creates a Server around an existing hub and dispatcher. Nothing
// listens until Start.
func New(cfg *Config, h *hub.Hub, d *hub.Dispatcher, log *slog.Logger) *Server {
	cfg.sanitize()
	return &Server{
		cfg:        cfg,
		log:        log,
		hub:        h,
		dispatcher: d,
	}
}

// Start binds the listener and launches the worker pool and accept loop. It
// returns once the server is accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New(parley.ErrServerAlreadyRunning)
	}

	pinned, err := protocol.ParseEncoding(s.cfg.Format)
	if err != nil {
		return err
	}
	s.pinned = pinned

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.listenAddr())
	if err != nil {
		return err
	}

	s.listener = listener
	s.queue = make(chan *Conn, s.cfg.QueueSize)
	s.quit = make(chan struct{})
	s.running = true

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("server listening", "addr", listener.Addr().String(), "workers", s.cfg.Workers, "format", s.pinned.String())
	return nil
}

// Stop shuts the server down: the listener closes, every live connection is
// torn down, queued-but-undispatched work is dropped, and the pipeline
// drains. Stop waits until the workers and readers have exited or ctx
// expires. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	listener := s.listener
	s.mu.Unlock()

	close(s.quit)
	listener.Close()

	s.conns.Range(func(_, value any) bool {
		s.teardown(value.(*Conn))
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("server stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("server stop timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// Addr returns the bound listener address. Only valid after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		sock, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		c := newConn(sock, s)
		s.conns.Store(c.id, c)
		s.log.Info("client connected", "clientId", c.id, "remoteAddr", c.remoteAddr)

		s.wg.Add(1)
		go s.readLoop(c)
	}
}

// readLoop pulls available bytes off the socket into the connection's
// receive buffer and enqueues a work token. It never interprets payloads.
// EOF (orderly peer close) and read errors both end in teardown.
func (s *Server) readLoop(c *Conn) {
	defer s.wg.Done()

	buf := make([]byte, readChunkSize)
	for {
		n, err := c.sock.Read(buf)
		if n > 0 {
			c.feed(buf[:n])
			select {
			case s.queue <- c:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			s.teardown(c)
			return
		}
	}
}

func (s *Server) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.quit:
			return
		case c := <-s.queue:
			// Drop still-queued work once shutdown has begun.
			select {
			case <-s.quit:
				return
			default:
			}
			s.process(c)
		}
	}
}

// process drains complete frames from c's buffers under the connection's
// serialization lock and dispatches the decoded commands in arrival order.
func (s *Server) process(c *Conn) {
	c.proc.Lock()
	defer c.proc.Unlock()

	c.stream = append(c.stream, c.takeInput()...)
	for {
		frame, rest, ok := protocol.NextFrame(c.stream)
		if !ok {
			return
		}
		c.stream = rest

		if !c.allow() {
			s.log.Warn("rate limit exceeded", "clientId", c.id, "remoteAddr", c.remoteAddr)
			s.teardown(c)
			return
		}

		if !s.applyFrame(c, frame) {
			return
		}
	}
}

// applyFrame decodes one frame and routes the result. It returns false when
// the connection was torn down and processing must stop.
func (s *Server) applyFrame(c *Conn, frame []byte) bool {
	cmd, err := c.decoder.Decode(frame)
	c.setEncoding(c.decoder.Encoding())

	switch {
	case errors.Is(err, protocol.ErrDetectFailed):
		s.log.Warn("format detection failed", "clientId", c.id, "remoteAddr", c.remoteAddr)
		if derr := c.Deliver(protocol.SystemNotice{Text: parley.ErrFormatDetection}); derr != nil {
			s.log.Debug("detection notice failed", "clientId", c.id, "error", derr)
		}
		s.teardown(c)
		return false

	case errors.Is(err, protocol.ErrUnknownKind):
		s.log.Warn("unknown command", "clientId", c.id, "error", err)
		s.notice(c, parley.ErrUnknownCommand)

	case err != nil:
		s.log.Warn("malformed frame", "clientId", c.id, "format", c.encoding().String(), "error", err)
		s.notice(c, parley.ErrInvalidMessageFormat)

	case cmd != nil:
		s.dispatcher.Dispatch(c, cmd)
	}
	// cmd == nil with no error is a consumed binary envelope; the payload
	// frame is still outstanding.
	return c.IsAlive()
}

func (s *Server) notice(c *Conn, text string) {
	if err := c.Deliver(protocol.SystemNotice{Text: text}); err != nil {
		s.teardown(c)
	}
}

// teardown removes the connection from every registry, announces the
// departure to its room, deletes the room if it emptied, and closes the
// socket. Idempotent: tearing down an already-removed connection is a no-op.
func (s *Server) teardown(c *Conn) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	s.conns.Delete(c.id)
	s.hub.Drop(c)
	c.sock.Close()
	s.log.Info("client disconnected", "clientId", c.id, "remoteAddr", c.remoteAddr, "name", c.Name())
}
