package hub

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/luciancaetano/parley"
	"github.com/luciancaetano/parley/internal/protocol"
)

// Room precondition violations. Handlers turn these into SCSystemMessage
// notices; state is unchanged and the connection stays open.
var (
	ErrAlreadyInRoom = errors.New(parley.ErrAlreadyInRoom)
	ErrNoSuchRoom    = errors.New(parley.ErrNoSuchRoom)
	ErrNotInRoom     = errors.New(parley.ErrNotInRoom)
)

// Room is a named group of sessions. The member list keeps join order, which
// is also broadcast delivery order.
type Room struct {
	ID      uint32
	Title   string
	members []Session
}

// Hub is the process-wide room registry. One mutex covers the room table and
// the membership map, so membership changes and member-list snapshots never
// interleave inconsistently. Invariants:
//
//   - a room id is present in the table iff the room has at least one member
//   - a session belongs to at most one room
//   - a session appears in a room's member list iff the membership map agrees
//
// Room ids come from a monotonic counter, so an id is never reissued within
// the server's lifetime.
type Hub struct {
	mu         sync.Mutex
	rooms      map[uint32]*Room
	membership map[string]uint32 // session id -> room id
	nextID     uint32
	log        *slog.Logger
}

// New creates an empty Hub.
func New(log *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uint32]*Room),
		membership: make(map[string]uint32),
		log:        log,
	}
}

// Create allocates a new room with s as its sole member and returns its id.
// Fails with ErrAlreadyInRoom if s is already a member somewhere.
func (h *Hub) Create(s Session, title string) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.membership[s.ID()]; ok {
		return 0, ErrAlreadyInRoom
	}

	h.nextID++
	room := &Room{ID: h.nextID, Title: title, members: []Session{s}}
	h.rooms[room.ID] = room
	h.membership[s.ID()] = room.ID

	h.log.Info("room created", "room", room.ID, "title", title, "clientId", s.ID())
	return room.ID, nil
}

// Join adds s to the room's member list, announces the arrival to the other
// members, and returns the room title. Fails with ErrAlreadyInRoom or
// ErrNoSuchRoom without state change.
func (h *Hub) Join(s Session, roomID uint32) (string, error) {
	h.mu.Lock()

	if _, ok := h.membership[s.ID()]; ok {
		h.mu.Unlock()
		return "", ErrAlreadyInRoom
	}
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return "", ErrNoSuchRoom
	}

	room.members = append(room.members, s)
	h.membership[s.ID()] = roomID
	title := room.Title

	announcement := protocol.SystemNotice{Text: fmt.Sprintf("[%s] entered the room", s.Name())}
	failed := deliverLocked(room, s, announcement)
	h.mu.Unlock()

	h.log.Info("member joined", "room", roomID, "clientId", s.ID(), "name", s.Name())
	h.evict(failed)
	return title, nil
}

// Leave removes s from its room, announces the departure to the remaining
// members, deletes the room if it emptied, and returns the room title. Fails
// with ErrNotInRoom.
func (h *Hub) Leave(s Session) (string, error) {
	h.mu.Lock()

	roomID, ok := h.membership[s.ID()]
	if !ok {
		h.mu.Unlock()
		return "", ErrNotInRoom
	}

	title, failed := h.removeLocked(s, roomID)
	h.mu.Unlock()

	h.log.Info("member left", "room", roomID, "clientId", s.ID(), "name", s.Name())
	h.evict(failed)
	return title, nil
}

// Drop is the disconnect path: like Leave, but belonging to no room is not an
// error and s itself receives nothing.
func (h *Hub) Drop(s Session) {
	h.mu.Lock()

	roomID, ok := h.membership[s.ID()]
	if !ok {
		h.mu.Unlock()
		return
	}

	_, failed := h.removeLocked(s, roomID)
	h.mu.Unlock()

	h.log.Info("member dropped", "room", roomID, "clientId", s.ID(), "name", s.Name())
	h.evict(failed)
}

// removeLocked takes s out of its room, announces the departure to the
// remaining members, and deletes the room when the last member is gone.
func (h *Hub) removeLocked(s Session, roomID uint32) (title string, failed []Session) {
	delete(h.membership, s.ID())
	room, ok := h.rooms[roomID]
	if !ok {
		return "", nil
	}

	for i, member := range room.members {
		if member.ID() == s.ID() {
			room.members = append(room.members[:i], room.members[i+1:]...)
			break
		}
	}

	if len(room.members) == 0 {
		delete(h.rooms, roomID)
		h.log.Info("room deleted", "room", roomID, "title", room.Title)
	} else {
		announcement := protocol.SystemNotice{Text: fmt.Sprintf("[%s] left the room", s.Name())}
		failed = deliverLocked(room, s, announcement)
	}
	return room.Title, failed
}

// Broadcast fans a chat line out to every member of s's room except s,
// attributed to s's current display name. Fails with ErrNotInRoom.
func (h *Hub) Broadcast(s Session, text string) error {
	h.mu.Lock()

	roomID, ok := h.membership[s.ID()]
	if !ok {
		h.mu.Unlock()
		return ErrNotInRoom
	}

	var failed []Session
	if room, ok := h.rooms[roomID]; ok {
		failed = deliverLocked(room, s, protocol.ChatEvent{Member: s.Name(), Text: text})
	}
	h.mu.Unlock()

	h.evict(failed)
	return nil
}

// NotifyRoom sends a system notice to every member of s's room, s included.
// It reports whether s was in a room at all; when not, nothing is sent and
// the caller decides what to tell s.
func (h *Hub) NotifyRoom(s Session, text string) bool {
	h.mu.Lock()

	roomID, ok := h.membership[s.ID()]
	if !ok {
		h.mu.Unlock()
		return false
	}

	var failed []Session
	if room, ok := h.rooms[roomID]; ok {
		failed = deliverLocked(room, nil, protocol.SystemNotice{Text: text})
	}
	h.mu.Unlock()

	h.evict(failed)
	return true
}

// Snapshot returns the current room list: id, title, and member display names
// in join order.
func (h *Hub) Snapshot() []protocol.RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := make([]protocol.RoomInfo, 0, len(h.rooms))
	for _, room := range h.rooms {
		members := make([]string, 0, len(room.members))
		for _, m := range room.members {
			members = append(members, m.Name())
		}
		rooms = append(rooms, protocol.RoomInfo{RoomID: room.ID, Title: room.Title, Members: members})
	}
	return rooms
}

// Stats returns the current room and member counts.
func (h *Hub) Stats() (rooms, members int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms), len(h.membership)
}

// deliverLocked pushes ev to every member of room except the excluded sender,
// in member-list order. A failed push never aborts the fan-out; the failed
// members are returned for eviction once the hub lock is released.
func deliverLocked(room *Room, except Session, ev protocol.Event) (failed []Session) {
	for _, member := range room.members {
		if except != nil && member.ID() == except.ID() {
			continue
		}
		if err := member.Deliver(ev); err != nil {
			failed = append(failed, member)
		}
	}
	return failed
}

// evict runs transport teardown for members whose push failed. Must be called
// without the hub lock held: Evict re-enters the hub through Drop.
func (h *Hub) evict(failed []Session) {
	for _, s := range failed {
		h.log.Warn("evicting unresponsive member", "clientId", s.ID(), "name", s.Name())
		s.Evict()
	}
}
