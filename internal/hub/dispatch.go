package hub

import (
	"fmt"
	"log/slog"

	"github.com/luciancaetano/parley"
	"github.com/luciancaetano/parley/internal/protocol"
)

type handlerFunc func(s Session, cmd *protocol.Command)

// Dispatcher routes decoded commands to their handlers. The dispatch table is
// fixed at construction and shared by every worker; handlers are stateless,
// all shared state lives in the Hub.
type Dispatcher struct {
	hub        *Hub
	log        *slog.Logger
	onShutdown func()
	handlers   map[protocol.Kind]handlerFunc
}

// NewDispatcher builds the dispatch table. onShutdown is invoked when a
// CSShutdown command arrives; it must be safe to call from a worker and more
// than once.
func NewDispatcher(h *Hub, log *slog.Logger, onShutdown func()) *Dispatcher {
	d := &Dispatcher{hub: h, log: log, onShutdown: onShutdown}
	d.handlers = map[protocol.Kind]handlerFunc{
		protocol.CSName:       d.handleName,
		protocol.CSRooms:      d.handleRooms,
		protocol.CSCreateRoom: d.handleCreateRoom,
		protocol.CSJoinRoom:   d.handleJoinRoom,
		protocol.CSLeaveRoom:  d.handleLeaveRoom,
		protocol.CSChat:       d.handleChat,
		protocol.CSShutdown:   d.handleShutdown,
	}
	return d
}

// Dispatch routes one command. Unknown kinds get a system notice; the
// connection stays open.
func (d *Dispatcher) Dispatch(s Session, cmd *protocol.Command) {
	handler, ok := d.handlers[cmd.Kind]
	if !ok {
		d.notice(s, parley.ErrUnknownCommand)
		return
	}
	handler(s, cmd)
}

// notice sends a system notice to one session, evicting it on write failure.
func (d *Dispatcher) notice(s Session, text string) {
	if err := s.Deliver(protocol.SystemNotice{Text: text}); err != nil {
		d.log.Warn("notice failed", "clientId", s.ID(), "error", err)
		s.Evict()
	}
}

func (d *Dispatcher) handleName(s Session, cmd *protocol.Command) {
	// An absent or empty name keeps the current one; the announcement is
	// still sent.
	newName := cmd.Name
	if newName == "" {
		newName = s.Name()
	}
	old := s.Rename(newName)

	d.log.Info("member renamed", "clientId", s.ID(), "from", old, "to", newName)

	text := fmt.Sprintf("[%s] is now known as [%s]", old, newName)
	if !d.hub.NotifyRoom(s, text) {
		d.notice(s, text)
	}
}

func (d *Dispatcher) handleRooms(s Session, _ *protocol.Command) {
	result := protocol.RoomsResult{Rooms: d.hub.Snapshot()}
	if err := s.Deliver(result); err != nil {
		d.log.Warn("rooms result failed", "clientId", s.ID(), "error", err)
		s.Evict()
	}
}

func (d *Dispatcher) handleCreateRoom(s Session, cmd *protocol.Command) {
	title := cmd.Title
	if title == "" {
		title = parley.DefaultRoomTitle
	}

	if _, err := d.hub.Create(s, title); err != nil {
		d.notice(s, err.Error())
		return
	}
	d.notice(s, fmt.Sprintf("entered room [%s]", title))
}

func (d *Dispatcher) handleJoinRoom(s Session, cmd *protocol.Command) {
	title, err := d.hub.Join(s, cmd.RoomID)
	if err != nil {
		d.notice(s, err.Error())
		return
	}
	d.notice(s, fmt.Sprintf("entered room [%s]", title))
}

func (d *Dispatcher) handleLeaveRoom(s Session, _ *protocol.Command) {
	title, err := d.hub.Leave(s)
	if err != nil {
		d.notice(s, err.Error())
		return
	}
	d.notice(s, fmt.Sprintf("left room [%s]", title))
}

func (d *Dispatcher) handleChat(s Session, cmd *protocol.Command) {
	if err := d.hub.Broadcast(s, cmd.Text); err != nil {
		d.notice(s, err.Error())
	}
}

func (d *Dispatcher) handleShutdown(s Session, _ *protocol.Command) {
	d.log.Info("shutdown requested", "clientId", s.ID(), "name", s.Name())
	d.onShutdown()
}
