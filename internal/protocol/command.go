package protocol

// Command is the decoded form of a client-to-server message, shared by both
// wire formats. The Text and Binary decoders translate into this one
// representation before routing; only the fields relevant to Kind are set.
type Command struct {
	Kind   Kind
	Name   string // CSName
	Title  string // CSCreateRoom
	RoomID uint32 // CSJoinRoom
	Text   string // CSChat
}

// Event is a server-originated message. The set of implementations is closed:
// RoomsResult, ChatEvent, and SystemNotice. Encoding switches exhaustively on
// the concrete type, so an unsupported event is unrepresentable rather than a
// runtime fallback.
type Event interface {
	EventKind() Kind
}

// RoomInfo is one entry of a RoomsResult snapshot.
type RoomInfo struct {
	RoomID  uint32
	Title   string
	Members []string
}

// RoomsResult answers a CSRooms command with a snapshot of every live room.
type RoomsResult struct {
	Rooms []RoomInfo
}

// ChatEvent carries one chat line, attributed to the sending member's display
// name at the moment the command was applied.
type ChatEvent struct {
	Member string
	Text   string
}

// SystemNotice is a server-generated text notice: join/leave announcements,
// rename announcements, and error notices.
type SystemNotice struct {
	Text string
}

// EventKind returns SCRoomsResult.
func (RoomsResult) EventKind() Kind { return SCRoomsResult }

// EventKind returns SCChat.
func (ChatEvent) EventKind() Kind { return SCChat }

// EventKind returns SCSystemMessage.
func (SystemNotice) EventKind() Kind { return SCSystemMessage }
