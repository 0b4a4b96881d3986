package hub

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/luciancaetano/parley/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession records delivered events; Evict mimics the transports by
// dropping the session from the hub.
type fakeSession struct {
	id  string
	hub *Hub

	mu      sync.Mutex
	name    string
	events  []protocol.Event
	failing bool
	evicted bool
}

func newFakeSession(h *Hub, id string) *fakeSession {
	return &fakeSession{id: id, name: id, hub: h}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

func (f *fakeSession) Rename(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.name
	f.name = name
	return old
}

func (f *fakeSession) Deliver(ev protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("dead socket")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSession) Evict() {
	f.mu.Lock()
	if f.evicted {
		f.mu.Unlock()
		return
	}
	f.evicted = true
	f.mu.Unlock()
	f.hub.Drop(f)
}

func (f *fakeSession) received() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Event(nil), f.events...)
}

func (f *fakeSession) lastNotice(t *testing.T) string {
	t.Helper()
	events := f.received()
	for i := len(events) - 1; i >= 0; i-- {
		if n, ok := events[i].(protocol.SystemNotice); ok {
			return n.Text
		}
	}
	t.Fatalf("session %s received no SystemNotice (events: %v)", f.id, events)
	return ""
}

// TestCreateRoom tests that creating a room records the creator as sole member
func TestCreateRoom(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")

	roomID, err := h.Create(alice, "lobby")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rooms := h.Snapshot()
	if len(rooms) != 1 {
		t.Fatalf("room count = %d, want 1", len(rooms))
	}
	if rooms[0].RoomID != roomID || rooms[0].Title != "lobby" {
		t.Errorf("room = %+v, want id %d title lobby", rooms[0], roomID)
	}
	if len(rooms[0].Members) != 1 || rooms[0].Members[0] != "alice" {
		t.Errorf("members = %v, want [alice]", rooms[0].Members)
	}
}

// TestCreateWhileInRoom tests the already-in-a-room precondition
func TestCreateWhileInRoom(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")

	if _, err := h.Create(alice, "lobby"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := h.Create(alice, "den"); !errors.Is(err, ErrAlreadyInRoom) {
		t.Errorf("second Create() error = %v, want ErrAlreadyInRoom", err)
	}
	if rooms, _ := h.Stats(); rooms != 1 {
		t.Errorf("room count = %d, want 1 (state must be unchanged)", rooms)
	}
}

// TestJoinRoom tests joining and the join announcement to existing members
func TestJoinRoom(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")
	bob := newFakeSession(h, "bob")

	roomID, err := h.Create(alice, "lobby")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	title, err := h.Join(bob, roomID)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if title != "lobby" {
		t.Errorf("title = %q, want lobby", title)
	}

	if got := alice.lastNotice(t); got != "[bob] entered the room" {
		t.Errorf("announcement = %q, want join announcement naming bob", got)
	}
	if len(bob.received()) != 0 {
		t.Errorf("joiner received its own announcement: %v", bob.received())
	}
}

// TestJoinErrors tests join preconditions
func TestJoinErrors(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")
	bob := newFakeSession(h, "bob")

	roomID, _ := h.Create(alice, "lobby")

	if _, err := h.Join(bob, roomID+99); !errors.Is(err, ErrNoSuchRoom) {
		t.Errorf("Join(missing) error = %v, want ErrNoSuchRoom", err)
	}
	if _, err := h.Join(alice, roomID); !errors.Is(err, ErrAlreadyInRoom) {
		t.Errorf("Join(while in room) error = %v, want ErrAlreadyInRoom", err)
	}
}

// TestLeaveRoom tests departure announcement and room deletion when emptied
func TestLeaveRoom(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")
	bob := newFakeSession(h, "bob")

	roomID, _ := h.Create(alice, "lobby")
	if _, err := h.Join(bob, roomID); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	if _, err := h.Leave(bob); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if got := alice.lastNotice(t); got != "[bob] left the room" {
		t.Errorf("announcement = %q, want leave announcement naming bob", got)
	}
	if rooms, _ := h.Stats(); rooms != 1 {
		t.Fatalf("room count = %d, want 1 (alice still inside)", rooms)
	}

	// Last member out deletes the room.
	if _, err := h.Leave(alice); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if rooms, members := h.Stats(); rooms != 0 || members != 0 {
		t.Errorf("Stats() = %d rooms %d members, want 0/0", rooms, members)
	}

	if _, err := h.Leave(alice); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Leave(again) error = %v, want ErrNotInRoom", err)
	}
}

// TestBroadcastExcludesSender tests chat fan-out and sender exclusion
func TestBroadcastExcludesSender(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")
	bob := newFakeSession(h, "bob")
	carol := newFakeSession(h, "carol")

	roomID, _ := h.Create(alice, "lobby")
	h.Join(bob, roomID)
	h.Join(carol, roomID)

	if err := h.Broadcast(alice, "hi"); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	want := protocol.ChatEvent{Member: "alice", Text: "hi"}
	for _, member := range []*fakeSession{bob, carol} {
		events := member.received()
		found := false
		for _, ev := range events {
			if ev == protocol.Event(want) {
				found = true
			}
		}
		if !found {
			t.Errorf("%s did not receive the chat event: %v", member.id, events)
		}
	}

	for _, ev := range alice.received() {
		if _, ok := ev.(protocol.ChatEvent); ok {
			t.Error("sender received its own chat broadcast")
		}
	}
}

// TestBroadcastNotInRoom tests the chat precondition
func TestBroadcastNotInRoom(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")

	if err := h.Broadcast(alice, "hello?"); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Broadcast() error = %v, want ErrNotInRoom", err)
	}
}

// TestDropCleansUp tests the disconnect path
func TestDropCleansUp(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")
	bob := newFakeSession(h, "bob")

	roomID, _ := h.Create(alice, "lobby")
	h.Join(bob, roomID)

	h.Drop(alice)
	if got := bob.lastNotice(t); got != "[alice] left the room" {
		t.Errorf("announcement = %q, want leave announcement naming alice", got)
	}

	// Dropping a session that is in no room is a no-op.
	h.Drop(alice)

	h.Drop(bob)
	if rooms, members := h.Stats(); rooms != 0 || members != 0 {
		t.Errorf("Stats() = %d rooms %d members, want 0/0", rooms, members)
	}
}

// TestFailedPushEvicts tests that a dead member is evicted mid-broadcast
// without aborting delivery to the rest
func TestFailedPushEvicts(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")
	bob := newFakeSession(h, "bob")
	carol := newFakeSession(h, "carol")

	roomID, _ := h.Create(alice, "lobby")
	h.Join(bob, roomID)
	h.Join(carol, roomID)

	bob.mu.Lock()
	bob.failing = true
	bob.mu.Unlock()

	if err := h.Broadcast(alice, "anyone?"); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	bob.mu.Lock()
	evicted := bob.evicted
	bob.mu.Unlock()
	if !evicted {
		t.Error("dead member was not evicted")
	}

	found := false
	for _, ev := range carol.received() {
		if chat, ok := ev.(protocol.ChatEvent); ok && chat.Text == "anyone?" {
			found = true
		}
	}
	if !found {
		t.Error("delivery to remaining members was aborted by the dead one")
	}

	if _, members := h.Stats(); members != 2 {
		t.Errorf("member count = %d, want 2 after eviction", members)
	}
}

// TestRoomIDsAreNotReused tests the monotonic id counter
func TestRoomIDsAreNotReused(t *testing.T) {
	t.Parallel()

	h := New(testLogger())

	var seen []uint32
	for i := 0; i < 3; i++ {
		s := newFakeSession(h, fmt.Sprintf("s%d", i))
		id, err := h.Create(s, "temp")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		seen = append(seen, id)
		if _, err := h.Leave(s); err != nil {
			t.Fatalf("Leave() error = %v", err)
		}
	}

	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Errorf("room ids not monotonic: %v", seen)
		}
	}
}

// TestNotifyRoom tests rename-style notices reaching every member
func TestNotifyRoom(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	alice := newFakeSession(h, "alice")
	bob := newFakeSession(h, "bob")

	if h.NotifyRoom(alice, "nope") {
		t.Error("NotifyRoom() = true for a session in no room")
	}

	roomID, _ := h.Create(alice, "lobby")
	h.Join(bob, roomID)

	if !h.NotifyRoom(alice, "announcement") {
		t.Fatal("NotifyRoom() = false, want true")
	}
	if got := alice.lastNotice(t); got != "announcement" {
		t.Errorf("alice notice = %q; the notifying member must receive it too", got)
	}
	if got := bob.lastNotice(t); got != "announcement" {
		t.Errorf("bob notice = %q", got)
	}
}
