// Package parley implements a multi-room TCP chat server with runtime wire-format negotiation.
//
// Every message on the wire is a frame: a 2-byte big-endian length prefix followed by
// exactly that many payload bytes. Inside a frame the payload is encoded in one of two
// interchangeable formats, fixed per connection on its first frame:
//
//   - Text: a single JSON object carrying a "type" discriminator plus the command fields.
//   - Binary: two consecutive frames per message — a 4-byte big-endian kind tag
//     (the envelope) followed by a compact binary payload for that kind.
//
// # Architecture
//
// An accept loop registers each connection and starts a reader that feeds raw bytes into
// the connection's private receive buffer before enqueuing a work token on the dispatch
// queue. A fixed pool of workers drains the queue; a worker takes the connection's lock,
// strips complete frames off the buffer, decodes them with the connection's negotiated
// format, and routes each command through the dispatch table to the room engine. Frames
// from one connection are always applied in arrival order; frames from different
// connections proceed in parallel.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/parley/tcp"
//	)
//
//	cfg := tcp.NewConfig()
//	cfg.Addr = "127.0.0.1"
//	cfg.Port = 10125
//	cfg.Workers = 4
//
//	server := tcp.New(cfg, nil) // nil logs through slog.Default()
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Commands
//
// Client to server: CSName, CSRooms, CSCreateRoom, CSJoinRoom, CSLeaveRoom, CSChat,
// CSShutdown. Server to client: SCRoomsResult, SCChat, SCSystemMessage. A connection
// belongs to at most one room at a time; a room is deleted the moment its last member
// leaves or disconnects.
//
// # Format Detection
//
// Detection runs once per connection. The first frame is tried as a JSON object with a
// "type" field; on success the connection speaks Text and the frame is dispatched
// immediately. Otherwise the frame is tried as a binary envelope naming a known command
// kind; on success the connection speaks Binary and the next frame is decoded as that
// command's payload. If neither succeeds the server sends a format-error notice and
// closes the connection. Starting the server pinned to one format ("json" or "binary")
// skips detection for every connection. Once fixed, a connection's format never changes.
//
// # Rate Limiting
//
// Each connection has an independent token-bucket limiter (default 100 frames/second,
// burst 200). A connection that exceeds its budget is disconnected.
//
// # WebSocket Gateway
//
// An optional second listener accepts WebSocket connections and runs each message
// through the same detection, decoding, and room pipeline; the WebSocket transport
// supplies the message delimiting that the length prefix supplies on TCP.
//
// # Important
//
//   - Outbound writes are synchronous with a 10s deadline; a stalled peer is evicted,
//     not waited for.
//   - CSShutdown stops the whole server: queued-but-undispatched frames are dropped
//     and every connection is closed.
package parley
